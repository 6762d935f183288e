// Package memstore keeps users and complaints in process memory. It honors
// the same contracts as the Mongo store and backs handler tests and the
// STORE_DRIVER=memory development mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"civicconnect-be/models"
	"civicconnect-be/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu         sync.RWMutex
	users      map[primitive.ObjectID]models.User
	complaints map[primitive.ObjectID]models.Complaint
	now        func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      map[primitive.ObjectID]models.User{},
		complaints: map[primitive.ObjectID]models.Complaint{},
		now:        time.Now,
	}
}

func cloneComplaint(c models.Complaint) models.Complaint {
	if c.Coords != nil {
		c.Coords = append([]float64(nil), c.Coords...)
	}
	c.UpvotedBy = append([]primitive.ObjectID{}, c.UpvotedBy...)
	if c.AssignedTo != nil {
		id := *c.AssignedTo
		c.AssignedTo = &id
	}
	if c.DueDate != nil {
		d := *c.DueDate
		c.DueDate = &d
	}
	if c.TargetLocation != nil {
		tl := *c.TargetLocation
		if tl.Coords != nil {
			tl.Coords = append([]float64(nil), tl.Coords...)
		}
		c.TargetLocation = &tl
	}
	return c
}

func cloneUser(u models.User) models.User {
	if u.CurrentLocation != nil {
		loc := *u.CurrentLocation
		u.CurrentLocation = &loc
	}
	return u
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = models.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrDuplicateEmail
		}
		if u.EmpID != "" && existing.EmpID == u.EmpID {
			return store.ErrDuplicateEmpID
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = cloneUser(*u)
	return nil
}

func (s *Store) FindUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *Store) FindUsersByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindEmployeeByCode(_ context.Context, code string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email := models.NormalizeEmail(code)
	for _, u := range s.users {
		if u.Role != models.RoleEmployee {
			continue
		}
		if (u.EmpID != "" && u.EmpID == code) || u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEmployees(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.User{}
	for _, u := range s.users {
		if u.Role == models.RoleEmployee {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SetDuty(_ context.Context, id primitive.ObjectID, onDuty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsOnDuty = onDuty
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *Store) SetLocation(_ context.Context, id primitive.ObjectID, loc models.GeoPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.CurrentLocation = &loc
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *Store) CreateComplaint(_ context.Context, c *models.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	s.complaints[c.ID] = cloneComplaint(*c)
	return nil
}

func (s *Store) FindComplaint(_ context.Context, id primitive.ObjectID) (*models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.complaints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneComplaint(c)
	return &out, nil
}

func matches(c models.Complaint, f store.ComplaintFilter) bool {
	if f.Town != "" && c.Town != f.Town {
		return false
	}
	if f.CreatedBy != nil && c.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && !c.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	return true
}

func (s *Store) ListComplaints(_ context.Context, f store.ComplaintFilter) ([]models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Complaint{}
	for _, c := range s.complaints {
		if matches(c, f) {
			out = append(out, cloneComplaint(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateComplaintFields(_ context.Context, id primitive.ObjectID, set bson.M) (*models.Complaint, error) {
	if err := store.CheckComplaintUpdate(set); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.complaints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneComplaint(current)
	if err := applySet(&next, set); err != nil {
		return nil, err
	}
	s.complaints[id] = cloneComplaint(next)
	return &next, nil
}

// applySet is the in-memory counterpart of $set for the fields handlers
// write. Values must carry the model's Go types.
func applySet(c *models.Complaint, set bson.M) error {
	for k, v := range set {
		var ok bool
		switch k {
		case "title":
			c.Title, ok = v.(string)
		case "description":
			c.Description, ok = v.(string)
		case "locationText":
			c.LocationText, ok = v.(string)
		case "town":
			c.Town, ok = v.(string)
		case "category":
			c.Category, ok = v.(string)
		case "remarks":
			c.Remarks, ok = v.(string)
		case "proofName":
			c.ProofName, ok = v.(string)
		case "coords":
			c.Coords, ok = v.([]float64)
		case "status":
			c.Status, ok = v.(models.Status)
		case "assignedTo":
			c.AssignedTo, ok = v.(*primitive.ObjectID)
		case "priority":
			c.Priority, ok = v.(models.Priority)
		case "dueDate":
			c.DueDate, ok = v.(*time.Time)
		case "estimatedHours":
			c.EstimatedHours, ok = v.(float64)
		case "actualHours":
			c.ActualHours, ok = v.(float64)
		case "targetLocation":
			c.TargetLocation, ok = v.(*models.TargetLocation)
		case "updatedAt":
			c.UpdatedAt, ok = v.(time.Time)
		default:
			return fmt.Errorf("memstore: unsupported field %q", k)
		}
		if !ok {
			return fmt.Errorf("memstore: field %q has type %T", k, v)
		}
	}
	return nil
}

func (s *Store) DeleteComplaint(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.complaints[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.complaints, id)
	return nil
}

func (s *Store) Upvote(_ context.Context, id, userID primitive.ObjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if c.HasUpvoted(userID) {
		return 0, store.ErrAlreadyUpvoted
	}
	c.UpvotedBy = append(c.UpvotedBy, userID)
	c.Upvotes++
	c.UpdatedAt = s.now()
	s.complaints[id] = c
	return c.Upvotes, nil
}

func groupCount(keys []string) []store.Bucket {
	counts := map[string]int64{}
	for _, k := range keys {
		counts[k]++
	}
	out := make([]store.Bucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, store.Bucket{ID: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func (s *Store) CountByCategory(_ context.Context) ([]store.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.complaints))
	for _, c := range s.complaints {
		keys = append(keys, c.Category)
	}
	return groupCount(keys), nil
}

func (s *Store) CountByStatus(_ context.Context, f store.ComplaintFilter) ([]store.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for _, c := range s.complaints {
		if matches(c, f) {
			keys = append(keys, string(c.Status))
		}
	}
	return store.SortStatusBuckets(groupCount(keys)), nil
}

func (s *Store) Trends(_ context.Context, q store.TrendQuery) ([]store.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layout := q.GroupBy.Layout()
	keys := []string{}
	for _, c := range s.complaints {
		if !inWindow(c.CreatedAt, q.From, q.To) {
			continue
		}
		if q.Category != "" && c.Category != q.Category {
			continue
		}
		if q.Town != "" && c.Town != q.Town {
			continue
		}
		keys = append(keys, c.CreatedAt.UTC().Format(layout))
	}
	return groupCount(keys), nil
}

func (s *Store) TopAreas(_ context.Context, q store.AreaQuery) ([]store.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for _, c := range s.complaints {
		if inWindow(c.CreatedAt, q.From, q.To) {
			keys = append(keys, c.Town)
		}
	}
	out := groupCount(keys)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
