package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civicconnect-be/cache"
	"civicconnect-be/controllers"
	"civicconnect-be/metrics"
	"civicconnect-be/middlewares"
	"civicconnect-be/models"
	"civicconnect-be/store"
	"civicconnect-be/store/memstore"
	"civicconnect-be/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const adminKey = "let-me-in"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	deps   *controllers.Deps
	issuer *utils.TokenIssuer
}

type serverOption func(*controllers.Deps, *Options)

func withStrictTransitions(d *controllers.Deps, _ *Options) { d.StrictTaskTransitions = true }

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	st := memstore.New()
	issuer := utils.NewTokenIssuer("test-secret", time.Hour)
	deps := &controllers.Deps{
		Users:          st,
		Complaints:     st,
		Issuer:         issuer,
		Log:            zap.NewNop(),
		AdminSignupKey: adminKey,
		RequestTimeout: time.Second,
	}
	o := Options{}
	for _, opt := range opts {
		opt(deps, &o)
	}
	m := metrics.New()
	deps.Metrics = m
	return &testServer{t: t, router: NewRouter(deps, m, o), store: st, deps: deps, issuer: issuer}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// user stores an account and returns it with a valid token.
func (s *testServer) user(role models.Role, town string) (*models.User, string) {
	s.t.Helper()
	u := &models.User{
		ID:    primitive.NewObjectID(),
		Name:  string(role),
		Email: primitive.NewObjectID().Hex() + "@example.com",
		Role:  role,
		Town:  town,
	}
	if role == models.RoleEmployee {
		u.EmpID = "EMP-" + u.ID.Hex()[18:]
	}
	require.NoError(s.t, s.store.CreateUser(context.Background(), u))
	token, err := s.issuer.GenerateToken(u)
	require.NoError(s.t, err)
	return u, token
}

func (s *testServer) complaint(by primitive.ObjectID, town string, mutate ...func(*models.Complaint)) *models.Complaint {
	s.t.Helper()
	c := models.NewComplaint(by, time.Now().UTC())
	c.Title, c.Description, c.LocationText, c.Town = "Pothole", "Deep one", "Main St", town
	for _, m := range mutate {
		m(c)
	}
	require.NoError(s.t, s.store.CreateComplaint(context.Background(), c))
	return c
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]any](t, w)["message"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "civic_http_requests_total")
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		role    models.Role
		message string
	}{
		{"citizen", map[string]any{"name": "Ann", "email": "Ann@Example.com", "password": "pw"}, http.StatusCreated, models.RoleCitizen, ""},
		{"legacy user role", map[string]any{"name": "Bo", "email": "bo@example.com", "password": "pw", "role": "user"}, http.StatusCreated, models.RoleCitizen, ""},
		{"unknown role", map[string]any{"name": "Cy", "email": "cy@example.com", "password": "pw", "role": "root"}, http.StatusCreated, models.RoleCitizen, ""},
		{"duplicate email any case", map[string]any{"name": "Ann", "email": "ANN@example.com", "password": "pw"}, http.StatusConflict, "", "Email already in use"},
		{"missing fields", map[string]any{"email": "x@example.com"}, http.StatusBadRequest, "", "Missing fields"},
		{"admin wrong key", map[string]any{"name": "A", "email": "a1@example.com", "password": "pw", "role": "admin", "adminKey": "nope", "town": "Downtown"}, http.StatusForbidden, "", "Invalid admin key"},
		{"admin no town", map[string]any{"name": "A", "email": "a2@example.com", "password": "pw", "role": "admin", "adminKey": adminKey}, http.StatusBadRequest, "", "Town is required for admin signup"},
		{"admin", map[string]any{"name": "A", "email": "a3@example.com", "password": "pw", "role": "admin", "adminKey": adminKey, "town": "Downtown"}, http.StatusCreated, models.RoleAdmin, ""},
		{"employee", map[string]any{"name": "E", "email": "e@example.com", "password": "pw", "role": "employee", "empId": "EMP-9", "department": "Roads"}, http.StatusCreated, models.RoleEmployee, ""},
		{"duplicate empId", map[string]any{"name": "F", "email": "f@example.com", "password": "pw", "role": "employee", "empId": "EMP-9"}, http.StatusConflict, "", "Employee ID already in use"},
		{"second employee without empId", map[string]any{"name": "G", "email": "g@example.com", "password": "pw", "role": "employee"}, http.StatusCreated, models.RoleEmployee, ""},
		{"third employee without empId", map[string]any{"name": "H", "email": "h@example.com", "password": "pw", "role": "employee"}, http.StatusCreated, models.RoleEmployee, ""},
		{"password over 72 bytes", map[string]any{"name": "L", "email": "long@example.com", "password": strings.Repeat("p", 73)}, http.StatusBadRequest, "", "Password must be at most 72 bytes"},
		{"password of 72 bytes", map[string]any{"name": "M", "email": "max@example.com", "password": strings.Repeat("p", 72)}, http.StatusCreated, models.RoleCitizen, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/auth/register", "", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.message != "" {
				assert.Equal(t, tt.message, message(t, w))
				return
			}
			assert.NotContains(t, w.Body.String(), "password")
			resp := decode[struct {
				Token string            `json:"token"`
				User  models.PublicUser `json:"user"`
			}](t, w)
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, tt.role, resp.User.Role)

			claims, err := s.issuer.ParseToken(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, resp.User.ID, claims.UserID)
			assert.Equal(t, tt.role, claims.Role)
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]any{"name": "Ann", "email": "ann@example.com", "password": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ann@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", message(t, w))

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", message(t, w))

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ANN@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[map[string]any](t, w)["token"].(string)

	w = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.PublicUser](t, w)
	assert.Equal(t, "ann@example.com", me.Email)
	assert.Equal(t, models.RoleCitizen, me.Role)

	w = s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user(models.RoleCitizen, "")

	w := s.do(http.MethodPost, "/api/complaints", token, map[string]any{"title": "Leak"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing fields", message(t, w))

	input := map[string]any{
		"title":        "Leak",
		"description":  "Water everywhere",
		"locationText": "5th Ave",
		"town":         "Downtown",
		"coords":       []float64{40.7, -73.9},
		"status":       "Resolved",
	}
	w = s.do(http.MethodPost, "/api/complaints", token, input)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Complaint](t, w)

	w = s.do(http.MethodGet, "/api/complaints/"+created.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Complaint](t, w)
	assert.Equal(t, "Leak", got.Title)
	assert.Equal(t, "Water everywhere", got.Description)
	assert.Equal(t, "5th Ave", got.LocationText)
	assert.Equal(t, "Downtown", got.Town)
	assert.Equal(t, []float64{40.7, -73.9}, got.Coords)
	assert.Equal(t, models.DefaultCategory, got.Category)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.Upvotes)

	w = s.do(http.MethodPost, "/api/complaints", token, map[string]any{
		"title": "x", "description": "y", "locationText": "z", "town": "t", "coords": []float64{123, 0},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScopes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user(models.RoleAdmin, "Downtown")
	citizen, citizenToken := s.user(models.RoleCitizen, "")
	other, _ := s.user(models.RoleCitizen, "")
	_, employeeToken := s.user(models.RoleEmployee, "")

	mine := s.complaint(citizen.ID, "Downtown")
	s.complaint(citizen.ID, "Uptown")
	s.complaint(other.ID, "Downtown", func(c *models.Complaint) { c.Status = models.StatusResolved })

	w := s.do(http.MethodGet, "/api/complaints", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.Complaint](t, w)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, "Downtown", c.Town)
	}

	w = s.do(http.MethodGet, "/api/complaints?status=Pending", adminToken, nil)
	list = decode[[]models.Complaint](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	w = s.do(http.MethodGet, "/api/complaints", citizenToken, nil)
	list = decode[[]models.Complaint](t, w)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, citizen.ID, c.CreatedBy)
	}

	w = s.do(http.MethodGet, "/api/complaints", employeeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetComplaintScope(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.user(models.RoleCitizen, "")
	_, otherToken := s.user(models.RoleCitizen, "")
	_, adminToken := s.user(models.RoleAdmin, "Elsewhere")
	c := s.complaint(owner.ID, "Downtown")
	path := "/api/complaints/" + c.ID.Hex()

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, ownerToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, adminToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, path, otherToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/complaints/"+primitive.NewObjectID().Hex(), adminToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/complaints/not-an-id", adminToken, nil).Code)
}

func TestPatchWriteMask(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.user(models.RoleCitizen, "")
	_, strangerToken := s.user(models.RoleCitizen, "")
	_, employeeToken := s.user(models.RoleEmployee, "")
	c := s.complaint(owner.ID, "Downtown")
	path := "/api/complaints/" + c.ID.Hex()

	for _, token := range []string{strangerToken, employeeToken} {
		w := s.do(http.MethodPatch, path, token, map[string]any{"title": "hijacked"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Forbidden", message(t, w))
	}
	stored, err := s.store.FindComplaint(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Title, stored.Title)

	w := s.do(http.MethodPatch, path, ownerToken, map[string]any{
		"title":    "Bigger pothole",
		"category": "Roads",
		"status":   "Resolved",
		"remarks":  "fixed it myself",
		"upvotes":  99,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Complaint](t, w)
	assert.Equal(t, "Bigger pothole", got.Title)
	assert.Equal(t, "Roads", got.Category)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.Remarks)
	assert.Zero(t, got.Upvotes)
}

func TestAdminPatchAssignment(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.user(models.RoleCitizen, "")
	_, adminToken := s.user(models.RoleAdmin, "Downtown")
	employee, _ := s.user(models.RoleEmployee, "")
	c := s.complaint(owner.ID, "Downtown")
	path := "/api/complaints/" + c.ID.Hex()

	w := s.do(http.MethodPatch, path, adminToken, map[string]any{"assignedTo": owner.ID.Hex()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Assignee must be an employee", message(t, w))

	w = s.do(http.MethodPatch, path, adminToken, map[string]any{
		"assignedTo":     employee.ID.Hex(),
		"priority":       "High",
		"dueDate":        "2024-03-01",
		"estimatedHours": 4.5,
		"remarks":        "crew dispatched",
		"targetLocation": map[string]any{"address": "Main St & 2nd", "coords": []float64{1, 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Complaint](t, w)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, employee.ID, *got.AssignedTo)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2024-03-01", got.DueDate.Format("2006-01-02"))
	assert.Equal(t, 4.5, got.EstimatedHours)
	assert.Equal(t, "crew dispatched", got.Remarks)
	require.NotNil(t, got.TargetLocation)
	assert.Equal(t, "Main St & 2nd", got.TargetLocation.Address)

	w = s.do(http.MethodPatch, path, adminToken, map[string]any{"status": "Completed", "proofName": "after.jpg"})
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[models.Complaint](t, w)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, "after.jpg", got.ProofName)

	w = s.do(http.MethodPatch, path, adminToken, map[string]any{"status": "Exploded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, path, adminToken, map[string]any{"assignedTo": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[models.Complaint](t, w).AssignedTo)
}

// upvoteOnLoad lands an upvote right after every complaint read, the way a
// citizen voting between a handler's load and its write would.
type upvoteOnLoad struct {
	*memstore.Store
	voter primitive.ObjectID
}

func (s upvoteOnLoad) FindComplaint(ctx context.Context, id primitive.ObjectID) (*models.Complaint, error) {
	c, err := s.Store.FindComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	_, _ = s.Store.Upvote(ctx, id, s.voter)
	return c, nil
}

func withUpvoteOnLoad(d *controllers.Deps, _ *Options) {
	d.Complaints = upvoteOnLoad{Store: d.Complaints.(*memstore.Store), voter: primitive.NewObjectID()}
}

func TestWritesKeepConcurrentUpvotes(t *testing.T) {
	s := newTestServer(t, withUpvoteOnLoad)
	owner, ownerToken := s.user(models.RoleCitizen, "")
	me, myToken := s.user(models.RoleEmployee, "")
	ctx := context.Background()

	c := s.complaint(owner.ID, "Downtown")
	w := s.do(http.MethodPatch, "/api/complaints/"+c.ID.Hex(), ownerToken, map[string]any{"title": "Bigger pothole"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Complaint](t, w)
	assert.Equal(t, "Bigger pothole", got.Title)
	assert.Equal(t, 1, got.Upvotes)

	stored, err := s.store.FindComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Upvotes)
	assert.Len(t, stored.UpvotedBy, 1)

	task := s.complaint(owner.ID, "Downtown", func(c *models.Complaint) {
		c.AssignedTo = &me.ID
		c.Status = models.StatusAssigned
	})
	w = s.do(http.MethodPut, "/api/employee/tasks/"+task.ID.Hex()+"/status", myToken, map[string]any{"status": "In Progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusInProgress, decode[models.Complaint](t, w).Status)

	stored, err = s.store.FindComplaint(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Equal(t, 1, stored.Upvotes)
	assert.Len(t, stored.UpvotedBy, 1)
}

func TestUpvoteOnce(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.user(models.RoleCitizen, "")
	_, voterToken := s.user(models.RoleCitizen, "")
	c := s.complaint(owner.ID, "Downtown")
	path := "/api/complaints/" + c.ID.Hex() + "/upvote"

	w := s.do(http.MethodPut, path, voterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upvotes":1}`, w.Body.String())

	w = s.do(http.MethodPut, path, voterToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Already upvoted", message(t, w))

	stored, err := s.store.FindComplaint(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Upvotes)
	assert.Len(t, stored.UpvotedBy, 1)

	w = s.do(http.MethodPut, "/api/complaints/"+primitive.NewObjectID().Hex()+"/upvote", voterToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAndCategoryCountAreAdminOnly(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.user(models.RoleCitizen, "")
	_, adminToken := s.user(models.RoleAdmin, "Downtown")
	c := s.complaint(owner.ID, "Downtown", func(c *models.Complaint) { c.Category = "Roads" })
	s.complaint(owner.ID, "Downtown", func(c *models.Complaint) { c.Category = "Roads" })
	s.complaint(owner.ID, "Downtown", func(c *models.Complaint) { c.Category = "Water" })

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/complaints/category/count", ownerToken, nil).Code)
	w := s.do(http.MethodGet, "/api/complaints/category/count", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"_id":"Roads","count":2},{"_id":"Water","count":1}]`, w.Body.String())

	path := "/api/complaints/" + c.ID.Hex()
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, ownerToken, nil).Code)
	w = s.do(http.MethodDelete, path, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Deleted", message(t, w))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, adminToken, nil).Code)
}

func TestEmployeeTasks(t *testing.T) {
	s := newTestServer(t)
	citizen, _ := s.user(models.RoleCitizen, "")
	me, myToken := s.user(models.RoleEmployee, "")
	other, _ := s.user(models.RoleEmployee, "")
	_, adminToken := s.user(models.RoleAdmin, "Downtown")

	mine := s.complaint(citizen.ID, "Downtown", func(c *models.Complaint) { c.AssignedTo = &me.ID; c.Status = models.StatusAssigned })
	s.complaint(citizen.ID, "Downtown", func(c *models.Complaint) { c.AssignedTo = &me.ID; c.Status = models.StatusInProgress })
	theirs := s.complaint(citizen.ID, "Downtown", func(c *models.Complaint) { c.AssignedTo = &other.ID })

	w := s.do(http.MethodGet, "/api/employee/tasks", myToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]models.Task](t, w)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.NotNil(t, task.Reporter)
		assert.Equal(t, models.Reporter{ID: citizen.ID.Hex(), Name: citizen.Name, Email: citizen.Email}, *task.Reporter)
	}
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodGet, "/api/employee/tasks?status=In%20Progress", myToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Complaint](t, w), 1)

	w = s.do(http.MethodGet, "/api/employee/tasks/"+mine.ID.Hex(), myToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	task := decode[models.Task](t, w)
	assert.Equal(t, mine.ID, task.ID)
	assert.Equal(t, citizen.ID, task.CreatedBy)
	require.NotNil(t, task.Reporter)
	assert.Equal(t, citizen.Email, task.Reporter.Email)

	// A reporter whose account is gone leaves the task without a card.
	orphan := s.complaint(primitive.NewObjectID(), "Downtown", func(c *models.Complaint) { c.AssignedTo = &me.ID })
	w = s.do(http.MethodGet, "/api/employee/tasks/"+orphan.ID.Hex(), myToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[models.Task](t, w).Reporter)

	// Someone else's task and a missing task look the same.
	for _, id := range []string{theirs.ID.Hex(), primitive.NewObjectID().Hex()} {
		w = s.do(http.MethodGet, "/api/employee/tasks/"+id, myToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Task not found", message(t, w))
	}
	w = s.do(http.MethodPut, "/api/employee/tasks/"+theirs.ID.Hex()+"/status", myToken, map[string]any{"status": "Completed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/employee/tasks", adminToken, nil).Code)

	w = s.do(http.MethodGet, "/api/employee/stats", myToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[controllers.TaskStats](t, w)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["Assigned"])
	assert.Equal(t, int64(1), stats.ByStatus["In Progress"])
	assert.Equal(t, int64(0), stats.ByStatus["Resolved"])
}

func TestUpdateTaskStatus(t *testing.T) {
	s := newTestServer(t)
	citizen, _ := s.user(models.RoleCitizen, "")
	me, myToken := s.user(models.RoleEmployee, "")
	task := s.complaint(citizen.ID, "Downtown", func(c *models.Complaint) {
		c.AssignedTo = &me.ID
		c.Status = models.StatusResolved
		c.Remarks = "old"
	})
	path := "/api/employee/tasks/" + task.ID.Hex() + "/status"

	w := s.do(http.MethodPut, path, myToken, map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without strict transitions any status may follow any other.
	w = s.do(http.MethodPut, path, myToken, map[string]any{
		"status":      "Pending",
		"actualHours": 2,
		"location":    map[string]any{"lat": 12.5, "lng": 77.6},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Complaint](t, w)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.Remarks)
	assert.Equal(t, 2.0, got.ActualHours)

	u, err := s.store.FindUserByID(context.Background(), me.ID)
	require.NoError(t, err)
	require.NotNil(t, u.CurrentLocation)
	assert.Equal(t, 12.5, u.CurrentLocation.Lat)

	w = s.do(http.MethodPut, path, myToken, map[string]any{"status": "Completed", "notes": "patched"})
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[models.Task](t, w)
	assert.Equal(t, models.StatusResolved, done.Status)
	assert.Equal(t, "patched", done.Remarks)
	require.NotNil(t, done.Reporter)
	assert.Equal(t, citizen.Email, done.Reporter.Email)
}

func TestUpdateTaskStatus_Strict(t *testing.T) {
	s := newTestServer(t, withStrictTransitions)
	citizen, _ := s.user(models.RoleCitizen, "")
	me, myToken := s.user(models.RoleEmployee, "")
	task := s.complaint(citizen.ID, "Downtown", func(c *models.Complaint) {
		c.AssignedTo = &me.ID
		c.Status = models.StatusResolved
	})
	path := "/api/employee/tasks/" + task.ID.Hex() + "/status"

	w := s.do(http.MethodPut, path, myToken, map[string]any{"status": "Pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, path, myToken, map[string]any{"status": "In Progress"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, path, myToken, map[string]any{"status": "Completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Notes are required to close a task", message(t, w))

	w = s.do(http.MethodPut, path, myToken, map[string]any{"status": "Completed", "notes": "done"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDutyAndLocation(t *testing.T) {
	s := newTestServer(t)
	me, myToken := s.user(models.RoleEmployee, "")
	_, citizenToken := s.user(models.RoleCitizen, "")

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPut, "/api/employee/duty", myToken, map[string]any{"isOnDuty": true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"isOnDuty":true}`, w.Body.String())
	}
	u, err := s.store.FindUserByID(context.Background(), me.ID)
	require.NoError(t, err)
	assert.True(t, u.IsOnDuty)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/employee/duty", myToken, map[string]any{}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, "/api/employee/duty", citizenToken, map[string]any{"isOnDuty": true}).Code)

	w := s.do(http.MethodPut, "/api/employee/location", myToken, map[string]any{"lat": 10.0, "lng": 20.0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Location updated", message(t, w))
	u, err = s.store.FindUserByID(context.Background(), me.ID)
	require.NoError(t, err)
	require.NotNil(t, u.CurrentLocation)
	assert.Equal(t, 20.0, u.CurrentLocation.Lng)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/employee/location", myToken, map[string]any{"lat": 10.0}).Code)
}

func TestEmployeeDirectory(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user(models.RoleAdmin, "Downtown")
	_, citizenToken := s.user(models.RoleCitizen, "")
	emp, _ := s.user(models.RoleEmployee, "")

	w := s.do(http.MethodGet, "/api/employee", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.EmployeeSummary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, emp.ID.Hex(), list[0].ID)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/employee", citizenToken, nil).Code)

	for _, code := range []string{emp.EmpID, emp.Email} {
		w = s.do(http.MethodGet, "/api/employee/by-empid/"+code, adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code, code)
		assert.Equal(t, emp.ID.Hex(), decode[models.EmployeeSummary](t, w).ID)
	}
	w = s.do(http.MethodGet, "/api/employee/by-empid/EMP-404", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Employee not found", message(t, w))
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02 15:04", s)
	return t
}

func TestAnalytics(t *testing.T) {
	s := newTestServer(t)
	citizen, citizenToken := s.user(models.RoleCitizen, "")
	_, adminToken := s.user(models.RoleAdmin, "Downtown")

	for _, at := range []struct {
		when string
		town string
	}{
		{"2024-01-01 09:00", "Downtown"},
		{"2024-01-01 23:30", "Uptown"},
		{"2024-01-02 12:00", "Downtown"},
		{"2024-01-05 12:00", "Downtown"},
	} {
		created := day(at.when)
		s.complaint(citizen.ID, at.town, func(c *models.Complaint) { c.CreatedAt = created })
	}

	w := s.do(http.MethodGet, "/api/analytics/trends?groupBy=day&from=2024-01-01&to=2024-01-03", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"_id":"2024-01-01","count":2},{"_id":"2024-01-02","count":1}]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/analytics/trends?groupBy=month", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"_id":"2024-01","count":4}]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/analytics/trends?from=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/analytics/top-areas?limit=1", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"_id":"Downtown","count":3}]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/analytics/top-areas?limit=0", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/analytics/trends", citizenToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/analytics/top-areas", "", nil).Code)
}

func TestAnalyticsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, func(d *controllers.Deps, _ *Options) {
		d.Cache = cache.NewJSONCache(rdb, "analytics", time.Minute)
	})
	citizen, _ := s.user(models.RoleCitizen, "")
	_, adminToken := s.user(models.RoleAdmin, "Downtown")
	s.complaint(citizen.ID, "Downtown")

	w := s.do(http.MethodGet, "/api/analytics/top-areas", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[[]store.Bucket](t, w)

	s.complaint(citizen.ID, "Uptown")
	w = s.do(http.MethodGet, "/api/analytics/top-areas", adminToken, nil)
	assert.Equal(t, first, decode[[]store.Bucket](t, w))

	mr.FastForward(2 * time.Minute)
	w = s.do(http.MethodGet, "/api/analytics/top-areas", adminToken, nil)
	assert.Len(t, decode[[]store.Bucket](t, w), 2)
}

func TestComplaintRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, func(d *controllers.Deps, o *Options) {
		o.RateLimit = middlewares.ComplaintRateLimiter(rdb, middlewares.RateLimitConfig{
			Prefix: "complaint_limit", Limit: 1, Window: time.Hour,
		}, nil, zap.NewNop())
	})
	_, token := s.user(models.RoleCitizen, "")
	body := map[string]any{"title": "a", "description": "b", "locationText": "c", "town": "d"}

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/complaints", token, body).Code)
	w := s.do(http.MethodPost, "/api/complaints", token, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", message(t, w))
}

func TestInvalidTokenIsUniform(t *testing.T) {
	s := newTestServer(t)
	expired := utils.NewTokenIssuer("test-secret", -time.Minute)
	u, _ := s.user(models.RoleCitizen, "")
	expiredToken, err := expired.GenerateToken(u)
	require.NoError(t, err)
	foreign, err := utils.NewTokenIssuer("other-secret", time.Hour).GenerateToken(u)
	require.NoError(t, err)

	for _, token := range []string{expiredToken, foreign, "garbage"} {
		w := s.do(http.MethodGet, "/api/complaints", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid token", message(t, w))
	}
}
