// Package client talks to the civic complaint API. When a mirror is
// attached, selected writes fall back to it while the server is
// unreachable and task reads are served from it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"civicconnect-be/mirror"

	"go.uber.org/zap"
)

// ErrUnavailable wraps transport failures.
var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// IsUnavailable reports whether err means the server could not serve the
// request at all: a transport failure or a 5xx answer.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// IsRetryable reports whether a queued write that failed with err should
// stay queued for a later pass: the server is unavailable or is throttling.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return IsUnavailable(err) || errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

const (
	metaToken  = "token"
	metaUserID = "user_id"
)

type Client struct {
	baseURL string
	http    *http.Client
	mirror  *mirror.Mirror
	log     *zap.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithMirror(m *mirror.Mirror) Option { return func(c *Client) { c.mirror = m } }
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithSession sets the bearer token and the caller's user id.
func WithSession(token, userID string) Option {
	return func(c *Client) { c.token, c.userID = token, userID }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadSession restores the token saved by a previous login.
func (c *Client) LoadSession(ctx context.Context) (bool, error) {
	if c.mirror == nil {
		return false, nil
	}
	token, ok, err := c.mirror.GetMeta(ctx, metaToken)
	if err != nil || !ok {
		return false, err
	}
	userID, _, err := c.mirror.GetMeta(ctx, metaUserID)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.token, c.userID = token, userID
	c.mu.Unlock()
	return true, nil
}

func (c *Client) HasSession() bool {
	token, _ := c.session()
	return token != ""
}

func (c *Client) session() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.userID
}

func (c *Client) setSession(ctx context.Context, auth *AuthResponse) error {
	c.mu.Lock()
	c.token, c.userID = auth.Token, auth.User.ID
	c.mu.Unlock()
	if c.mirror == nil {
		return nil
	}
	if err := c.mirror.SetMeta(ctx, metaToken, auth.Token); err != nil {
		return err
	}
	return c.mirror.SetMeta(ctx, metaUserID, auth.User.ID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, _ := c.session(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		if msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &out); err != nil {
		return nil, err
	}
	return &out, c.setSession(ctx, &out)
}

// Login authenticates and remembers the session in the mirror if any.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, c.setSession(ctx, &out)
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListComplaints(ctx context.Context, status, category string) ([]Complaint, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if category != "" {
		q.Set("category", category)
	}
	path := "/api/complaints"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Complaint
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetComplaint(ctx context.Context, id string) (*Complaint, error) {
	var out Complaint
	if err := c.do(ctx, http.MethodGet, "/api/complaints/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComplaint files a complaint. If the server is unreachable and a
// mirror is attached, the complaint is stored under a local id, queued,
// and queued is true.
func (c *Client) CreateComplaint(ctx context.Context, in NewComplaint) (complaint *Complaint, queued bool, err error) {
	var out Complaint
	err = c.do(ctx, http.MethodPost, "/api/complaints", in, &out)
	if err == nil {
		c.remember(ctx, out)
		return &out, false, nil
	}
	if c.mirror == nil || !IsUnavailable(err) {
		return nil, false, err
	}

	_, userID := c.session()
	now := time.Now().UTC()
	local := Complaint{
		ID:           mirror.NewLocalID(),
		Title:        in.Title,
		Description:  in.Description,
		LocationText: in.LocationText,
		Town:         in.Town,
		Coords:       in.Coords,
		Category:     in.Category,
		Status:       "Pending",
		CreatedBy:    userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if local.Category == "" {
		local.Category = "General"
	}
	rec, rerr := toRecord(local, true)
	if rerr != nil {
		return nil, false, rerr
	}
	if rerr := c.mirror.PutComplaint(ctx, rec); rerr != nil {
		return nil, false, rerr
	}
	if _, rerr := c.mirror.Enqueue(ctx, mirror.OpCreateComplaint, local.ID, in); rerr != nil {
		return nil, false, rerr
	}
	c.log.Warn("server unavailable; complaint queued", zap.String("local_id", local.ID), zap.Error(err))
	return &local, true, nil
}

// UpdateComplaint patches a complaint. Offline, and for records that only
// exist locally, the change is applied to the mirror and queued.
func (c *Client) UpdateComplaint(ctx context.Context, id string, fields map[string]any) (complaint *Complaint, queued bool, err error) {
	if !mirror.IsLocalID(id) {
		var out Complaint
		err = c.do(ctx, http.MethodPatch, "/api/complaints/"+url.PathEscape(id), fields, &out)
		if err == nil {
			c.remember(ctx, out)
			return &out, false, nil
		}
		if c.mirror == nil || !IsUnavailable(err) {
			return nil, false, err
		}
	} else if c.mirror == nil {
		return nil, false, fmt.Errorf("local complaint %s without a mirror", id)
	}

	local, lerr := c.applyLocally(ctx, id, fields)
	if lerr != nil {
		return nil, false, lerr
	}
	if _, lerr := c.mirror.Enqueue(ctx, mirror.OpUpdateComplaint, id, fields); lerr != nil {
		return nil, false, lerr
	}
	c.log.Warn("complaint update queued", zap.String("id", id), zap.Error(err))
	return local, true, nil
}

// applyLocally overlays fields onto the mirrored copy of id.
func (c *Client) applyLocally(ctx context.Context, id string, fields map[string]any) (*Complaint, error) {
	doc := map[string]any{"id": id}
	isLocal := mirror.IsLocalID(id)
	rec, err := c.mirror.GetComplaint(ctx, id)
	switch {
	case err == nil:
		if err := json.Unmarshal(rec.Body, &doc); err != nil {
			return nil, fmt.Errorf("decode mirrored complaint: %w", err)
		}
		isLocal = rec.Local
	case !errors.Is(err, mirror.ErrNotFound):
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	doc["updatedAt"] = time.Now().UTC()

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Complaint
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("apply fields: %w", err)
	}
	rec, err = toRecord(out, isLocal)
	if err != nil {
		return nil, err
	}
	if err := c.mirror.PutComplaint(ctx, rec); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Upvote(ctx context.Context, id string) (int, error) {
	var out struct {
		Upvotes int `json:"upvotes"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/complaints/"+url.PathEscape(id)+"/upvote", nil, &out); err != nil {
		return 0, err
	}
	return out.Upvotes, nil
}

func (c *Client) DeleteComplaint(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/complaints/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	if c.mirror != nil {
		return c.mirror.DeleteComplaint(ctx, id)
	}
	return nil
}

// Tasks lists the caller's tasks. When the server is unreachable the
// mirror answers and stale is true.
func (c *Client) Tasks(ctx context.Context, status string) (tasks []Complaint, stale bool, err error) {
	path := "/api/employee/tasks"
	if status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}
	var out []Complaint
	err = c.do(ctx, http.MethodGet, path, nil, &out)
	if err == nil {
		c.refreshTasks(ctx, status, out)
		return out, false, nil
	}
	if c.mirror == nil || !IsUnavailable(err) {
		return nil, false, err
	}

	_, userID := c.session()
	recs, lerr := c.mirror.ListComplaints(ctx, userID, status)
	if lerr != nil {
		return nil, false, lerr
	}
	tasks, lerr = fromRecords(recs)
	if lerr != nil {
		return nil, false, lerr
	}
	return tasks, true, nil
}

// Task fetches one of the caller's tasks, falling back to the mirror.
func (c *Client) Task(ctx context.Context, id string) (task *Complaint, stale bool, err error) {
	var out Complaint
	err = c.do(ctx, http.MethodGet, "/api/employee/tasks/"+url.PathEscape(id), nil, &out)
	if err == nil {
		c.remember(ctx, out)
		return &out, false, nil
	}
	if c.mirror == nil || !IsUnavailable(err) {
		return nil, false, err
	}

	_, userID := c.session()
	rec, lerr := c.mirror.GetComplaint(ctx, id)
	if errors.Is(lerr, mirror.ErrNotFound) || (lerr == nil && rec.AssignedTo != userID) {
		return nil, false, &APIError{Status: http.StatusNotFound, Message: "Task not found"}
	}
	if lerr != nil {
		return nil, false, lerr
	}
	var local Complaint
	if err := json.Unmarshal(rec.Body, &local); err != nil {
		return nil, false, err
	}
	return &local, true, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id string, update TaskStatusUpdate) (*Complaint, error) {
	var out Complaint
	if err := c.do(ctx, http.MethodPut, "/api/employee/tasks/"+url.PathEscape(id)+"/status", update, &out); err != nil {
		return nil, err
	}
	c.remember(ctx, out)
	return &out, nil
}

func (c *Client) SetDuty(ctx context.Context, onDuty bool) (bool, error) {
	var out struct {
		IsOnDuty bool `json:"isOnDuty"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/employee/duty", map[string]bool{"isOnDuty": onDuty}, &out); err != nil {
		return false, err
	}
	return out.IsOnDuty, nil
}

// UpdateLocation reports the caller's position, queueing it offline.
func (c *Client) UpdateLocation(ctx context.Context, loc Location) (queued bool, err error) {
	err = c.do(ctx, http.MethodPut, "/api/employee/location", loc, nil)
	if err == nil {
		return false, nil
	}
	if c.mirror == nil || !IsUnavailable(err) {
		return false, err
	}
	if _, lerr := c.mirror.Enqueue(ctx, mirror.OpUpdateLocation, "", loc); lerr != nil {
		return false, lerr
	}
	return true, nil
}

func (c *Client) TaskStats(ctx context.Context) (*TaskStats, error) {
	var out TaskStats
	if err := c.do(ctx, http.MethodGet, "/api/employee/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Trends(ctx context.Context, groupBy, from, to string) ([]Bucket, error) {
	q := url.Values{}
	for k, v := range map[string]string{"groupBy": groupBy, "from": from, "to": to} {
		if v != "" {
			q.Set(k, v)
		}
	}
	var out []Bucket
	if err := c.do(ctx, http.MethodGet, "/api/analytics/trends?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TopAreas(ctx context.Context, limit int) ([]Bucket, error) {
	path := "/api/analytics/top-areas"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out []Bucket
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// remember copies a server record into the mirror unless a local write
// for it is still queued.
func (c *Client) remember(ctx context.Context, complaint Complaint) {
	if c.mirror == nil {
		return
	}
	pending, err := c.mirror.HasPending(ctx, complaint.ID)
	if err == nil && pending {
		return
	}
	rec, err := toRecord(complaint, false)
	if err == nil {
		err = c.mirror.PutComplaint(ctx, rec)
	}
	if err != nil {
		c.log.Warn("mirror write failed", zap.String("id", complaint.ID), zap.Error(err))
	}
}

func (c *Client) refreshTasks(ctx context.Context, status string, tasks []Complaint) {
	if c.mirror == nil {
		return
	}
	if status != "" {
		for _, t := range tasks {
			c.remember(ctx, t)
		}
		return
	}
	_, userID := c.session()
	recs := make([]mirror.Record, 0, len(tasks))
	for _, t := range tasks {
		rec, err := toRecord(t, false)
		if err != nil {
			c.log.Warn("skip unmirrorable task", zap.String("id", t.ID), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if err := c.mirror.ReplaceAssigned(ctx, userID, recs); err != nil {
		c.log.Warn("mirror refresh failed", zap.Error(err))
	}
}

func toRecord(c Complaint, local bool) (mirror.Record, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return mirror.Record{}, fmt.Errorf("encode complaint: %w", err)
	}
	rec := mirror.Record{
		ID:        c.ID,
		Status:    c.Status,
		Body:      body,
		Local:     local,
		UpdatedAt: c.UpdatedAt,
	}
	if c.AssignedTo != nil {
		rec.AssignedTo = *c.AssignedTo
	}
	return rec, nil
}

func fromRecords(recs []mirror.Record) ([]Complaint, error) {
	out := make([]Complaint, 0, len(recs))
	for _, r := range recs {
		var c Complaint
		if err := json.Unmarshal(r.Body, &c); err != nil {
			return nil, fmt.Errorf("decode mirrored complaint %s: %w", r.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}
