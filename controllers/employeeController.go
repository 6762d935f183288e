package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"civicconnect-be/apierrors"
	"civicconnect-be/models"
	"civicconnect-be/policy"
	"civicconnect-be/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errTaskNotFound = apierrors.NotFound("Task not found")

type locationInput struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l *locationInput) point() (models.GeoPoint, error) {
	if l.Lat == nil || l.Lng == nil {
		return models.GeoPoint{}, apierrors.ErrMissingFields
	}
	if !models.ValidCoords([]float64{*l.Lat, *l.Lng}) {
		return models.GeoPoint{}, apierrors.Validation("Invalid coordinates")
	}
	return models.GeoPoint{Lat: *l.Lat, Lng: *l.Lng}, nil
}

type taskStatusInput struct {
	Status      string         `json:"status"`
	Notes       string         `json:"notes"`
	ActualHours *float64       `json:"actualHours"`
	Location    *locationInput `json:"location"`
}

type dutyInput struct {
	IsOnDuty *bool `json:"isOnDuty"`
}

// TaskStats is the per-status breakdown of an employee's tasks.
type TaskStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

// ListEmployees handles GET /api/employee.
func (d *Deps) ListEmployees(c *gin.Context) {
	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanManageEmployees(actor); err != nil {
		d.fail(c, err)
		return
	}

	employees, err := d.Users.ListEmployees(ctx)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	out := make([]models.EmployeeSummary, 0, len(employees))
	for i := range employees {
		out = append(out, employees[i].Summary())
	}
	c.JSON(http.StatusOK, out)
}

// GetEmployeeByCode handles GET /api/employee/by-empid/:empId. The code
// may also be the employee's email.
func (d *Deps) GetEmployeeByCode(c *gin.Context) {
	code := strings.TrimSpace(c.Param("empId"))
	if code == "" {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanManageEmployees(actor); err != nil {
		d.fail(c, err)
		return
	}

	u, err := d.Users.FindEmployeeByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		d.fail(c, apierrors.NotFound("Employee not found"))
		return
	}
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, u.Summary())
}

// GetTasks handles GET /api/employee/tasks[?status=].
func (d *Deps) GetTasks(c *gin.Context) {
	id, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}
	filter := store.ComplaintFilter{AssignedTo: &id}
	if s := c.Query("status"); s != "" && s != "all" {
		status, ok := models.ParseStatus(s)
		if !ok {
			d.fail(c, apierrors.Validation("Invalid status"))
			return
		}
		filter.Status = status
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	list, err := d.Complaints.ListComplaints(ctx, filter)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	tasks, err := d.withReporters(ctx, list)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTask handles GET /api/employee/tasks/:id. A task assigned to someone
// else is indistinguishable from a missing one.
func (d *Deps) GetTask(c *gin.Context) {
	task, _, ok := d.ownTask(c)
	if !ok {
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	tasks, err := d.withReporters(ctx, []models.Complaint{*task})
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, tasks[0])
}

// withReporters attaches the filing citizen's name and email to each task.
func (d *Deps) withReporters(ctx context.Context, list []models.Complaint) ([]models.Task, error) {
	ids := make([]primitive.ObjectID, 0, len(list))
	seen := make(map[primitive.ObjectID]bool, len(list))
	for i := range list {
		if id := list[i].CreatedBy; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	users, err := d.Users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	reporters := make(map[primitive.ObjectID]models.Reporter, len(users))
	for i := range users {
		reporters[users[i].ID] = users[i].Reporter()
	}

	out := make([]models.Task, 0, len(list))
	for i := range list {
		t := models.Task{Complaint: list[i]}
		if r, ok := reporters[list[i].CreatedBy]; ok {
			t.Reporter = &r
		}
		out = append(out, t)
	}
	return out, nil
}

// ownTask resolves :id to a task assigned to the calling employee.
func (d *Deps) ownTask(c *gin.Context) (*models.Complaint, policy.Actor, bool) {
	id, err := pathID(c)
	if err != nil {
		d.fail(c, errTaskNotFound)
		return nil, policy.Actor{}, false
	}
	uid, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return nil, policy.Actor{}, false
	}
	actor := policy.Actor{ID: uid, Role: models.RoleEmployee}

	ctx, cancel := d.ctx(c)
	defer cancel()

	task, err := d.loadComplaint(ctx, id, errTaskNotFound)
	if err != nil {
		d.fail(c, err)
		return nil, actor, false
	}
	if err := policy.CanWorkTask(actor, task); err != nil {
		d.fail(c, err)
		return nil, actor, false
	}
	return task, actor, true
}

// UpdateTaskStatus handles PUT /api/employee/tasks/:id/status. Notes
// replace the remarks. With strict transitions enabled the move must be
// in the transition table and closing a task needs notes.
func (d *Deps) UpdateTaskStatus(c *gin.Context) {
	var input taskStatusInput
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Status) == "" {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	status, ok := models.ParseStatus(input.Status)
	if !ok {
		d.fail(c, apierrors.Validation("Invalid status"))
		return
	}
	if input.ActualHours != nil && *input.ActualHours < 0 {
		d.fail(c, apierrors.Validation("Invalid actualHours"))
		return
	}
	var loc *models.GeoPoint
	if input.Location != nil {
		p, err := input.Location.point()
		if err != nil {
			d.fail(c, err)
			return
		}
		p.UpdatedAt = d.now()
		loc = &p
	}

	task, actor, found := d.ownTask(c)
	if !found {
		return
	}

	if d.StrictTaskTransitions {
		if !models.CanTransition(task.Status, status) {
			d.fail(c, apierrors.Validation("Cannot move task from "+string(task.Status)+" to "+string(status)))
			return
		}
		if status.IsTerminal() && strings.TrimSpace(input.Notes) == "" {
			d.fail(c, apierrors.Validation("Notes are required to close a task"))
			return
		}
	}

	set := bson.M{
		"status":    status,
		"remarks":   input.Notes,
		"updatedAt": d.now(),
	}
	if input.ActualHours != nil {
		set["actualHours"] = *input.ActualHours
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	updated, err := d.Complaints.UpdateComplaintFields(ctx, task.ID, set)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.fail(c, errTaskNotFound)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	if loc != nil {
		if err := d.Users.SetLocation(ctx, actor.ID, *loc); err != nil {
			d.logger().Warn("task location not recorded", zap.String("user_id", actor.ID.Hex()), zap.Error(err))
		}
	}
	if d.Metrics != nil {
		d.Metrics.TaskStatusChanges.WithLabelValues(string(status)).Inc()
	}
	tasks, err := d.withReporters(ctx, []models.Complaint{*updated})
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, tasks[0])
}

// ToggleDuty handles PUT /api/employee/duty. Setting the current value
// again is not an error.
func (d *Deps) ToggleDuty(c *gin.Context) {
	var input dutyInput
	if err := c.ShouldBindJSON(&input); err != nil || input.IsOnDuty == nil {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	id, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	if err := d.Users.SetDuty(ctx, id, *input.IsOnDuty); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.fail(c, apierrors.ErrInvalidToken)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"isOnDuty": *input.IsOnDuty})
}

// UpdateLocation handles PUT /api/employee/location.
func (d *Deps) UpdateLocation(c *gin.Context) {
	var input locationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	point, err := input.point()
	if err != nil {
		d.fail(c, err)
		return
	}
	point.UpdatedAt = d.now()

	id, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	if err := d.Users.SetLocation(ctx, id, point); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.fail(c, apierrors.ErrInvalidToken)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated"})
}

// GetTaskStats handles GET /api/employee/stats.
func (d *Deps) GetTaskStats(c *gin.Context) {
	id, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	buckets, err := d.Complaints.CountByStatus(ctx, store.ComplaintFilter{AssignedTo: &id})
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}

	stats := TaskStats{ByStatus: make(map[string]int64, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		stats.ByStatus[string(s)] = 0
	}
	for _, b := range buckets {
		stats.ByStatus[b.ID] += b.Count
		stats.Total += b.Count
	}
	c.JSON(http.StatusOK, stats)
}
