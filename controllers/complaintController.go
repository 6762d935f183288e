package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"civicconnect-be/apierrors"
	"civicconnect-be/models"
	"civicconnect-be/policy"
	"civicconnect-be/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type createComplaintInput struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LocationText string    `json:"locationText"`
	Town         string    `json:"town"`
	Coords       []float64 `json:"coords"`
	Category     string    `json:"category"`
}

// GetComplaints handles GET /api/complaints. The visible set depends on
// the caller's role; admins may narrow it with ?status= and ?category=.
func (d *Deps) GetComplaints(c *gin.Context) {
	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	scope, err := policy.ListScope(actor)
	if err != nil {
		d.fail(c, err)
		return
	}

	filter := store.ComplaintFilter{Town: scope.Town, CreatedBy: scope.CreatedBy}
	if s := c.Query("status"); s != "" && s != "all" {
		status, ok := models.ParseStatus(s)
		if !ok {
			d.fail(c, apierrors.Validation("Invalid status"))
			return
		}
		filter.Status = status
	}
	if cat := c.Query("category"); cat != "" && cat != "all" {
		filter.Category = cat
	}

	complaints, err := d.Complaints.ListComplaints(ctx, filter)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	if complaints == nil {
		complaints = []models.Complaint{}
	}
	c.JSON(http.StatusOK, complaints)
}

// GetComplaint handles GET /api/complaints/:id.
func (d *Deps) GetComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	complaint, err := d.loadComplaint(ctx, id, apierrors.ErrNotFound)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanRead(actor, complaint); err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// CreateComplaint handles POST /api/complaints.
func (d *Deps) CreateComplaint(c *gin.Context) {
	var input createComplaintInput
	if err := c.ShouldBindJSON(&input); err != nil {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.LocationText = strings.TrimSpace(input.LocationText)
	input.Town = strings.TrimSpace(input.Town)
	if input.Title == "" || input.Description == "" || input.LocationText == "" || input.Town == "" {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	if !models.ValidCoords(input.Coords) {
		d.fail(c, apierrors.Validation("Invalid coordinates"))
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanCreate(actor); err != nil {
		d.fail(c, err)
		return
	}

	complaint := models.NewComplaint(actor.ID, d.now())
	complaint.Title = input.Title
	complaint.Description = input.Description
	complaint.LocationText = input.LocationText
	complaint.Town = input.Town
	complaint.Coords = input.Coords
	if cat := strings.TrimSpace(input.Category); cat != "" {
		complaint.Category = cat
	}

	if err := d.Complaints.CreateComplaint(ctx, complaint); err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	if d.Metrics != nil {
		d.Metrics.ComplaintsCreated.Inc()
	}
	c.JSON(http.StatusCreated, complaint)
}

// UpdateComplaint handles PATCH /api/complaints/:id. Fields outside the
// caller's write mask are ignored.
func (d *Deps) UpdateComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		d.fail(c, err)
		return
	}
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		d.fail(c, apierrors.Validation("Invalid request body"))
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	complaint, err := d.loadComplaint(ctx, id, apierrors.ErrNotFound)
	if err != nil {
		d.fail(c, err)
		return
	}
	mask, err := policy.PatchFields(actor, complaint)
	if err != nil {
		d.fail(c, err)
		return
	}

	p := patch{deps: d, body: body, mask: mask, target: complaint, touched: map[string]bool{}}
	if err := p.apply(c); err != nil {
		d.fail(c, err)
		return
	}
	if len(p.touched) == 0 {
		c.JSON(http.StatusOK, complaint)
		return
	}

	set := p.updates()
	set["updatedAt"] = d.now()
	updated, err := d.Complaints.UpdateComplaintFields(ctx, id, set)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.fail(c, apierrors.ErrNotFound)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, updated)
}

// UpvoteComplaint handles PUT /api/complaints/:id/upvote.
func (d *Deps) UpvoteComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		d.fail(c, err)
		return
	}
	userID, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	count, err := d.Complaints.Upvote(ctx, id, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		d.fail(c, apierrors.ErrNotFound)
		return
	case errors.Is(err, store.ErrAlreadyUpvoted):
		d.fail(c, apierrors.Conflict("Already upvoted").WithStatus(http.StatusBadRequest))
		return
	case err != nil:
		d.fail(c, apierrors.Internal(err))
		return
	}
	if d.Metrics != nil {
		d.Metrics.Upvotes.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"upvotes": count})
}

// CategoryCount handles GET /api/complaints/category/count.
func (d *Deps) CategoryCount(c *gin.Context) {
	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanViewAnalytics(actor); err != nil {
		d.fail(c, err)
		return
	}

	buckets, err := d.Complaints.CountByCategory(ctx)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	if buckets == nil {
		buckets = []store.Bucket{}
	}
	c.JSON(http.StatusOK, buckets)
}

// DeleteComplaint handles DELETE /api/complaints/:id.
func (d *Deps) DeleteComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return
	}
	if err := policy.CanDelete(actor); err != nil {
		d.fail(c, err)
		return
	}

	if err := d.Complaints.DeleteComplaint(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.fail(c, apierrors.ErrNotFound)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	d.logger().Info("complaint deleted", zap.String("complaint_id", id.Hex()), zap.String("by", actor.ID.Hex()))
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

// patch applies a masked JSON body onto the loaded complaint and records
// which fields it wrote, so only those reach the store.
type patch struct {
	deps    *Deps
	body    map[string]json.RawMessage
	mask    map[string]bool
	target  *models.Complaint
	touched map[string]bool
}

func (p *patch) touch(names ...string) {
	for _, n := range names {
		p.touched[n] = true
	}
}

// updates returns a $set document for the touched fields.
func (p *patch) updates() bson.M {
	t := p.target
	values := map[string]any{
		"title":          t.Title,
		"description":    t.Description,
		"locationText":   t.LocationText,
		"category":       t.Category,
		"remarks":        t.Remarks,
		"proofName":      t.ProofName,
		"coords":         t.Coords,
		"status":         t.Status,
		"assignedTo":     t.AssignedTo,
		"priority":       t.Priority,
		"dueDate":        t.DueDate,
		"estimatedHours": t.EstimatedHours,
		"targetLocation": t.TargetLocation,
	}
	set := bson.M{}
	for name := range p.touched {
		set[name] = values[name]
	}
	return set
}

func (p *patch) field(name string) (json.RawMessage, bool) {
	if !p.mask[name] {
		return nil, false
	}
	raw, ok := p.body[name]
	return raw, ok
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage, name string) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apierrors.Validation("Invalid " + name)
	}
	return s, nil
}

func (p *patch) apply(c *gin.Context) error {
	t := p.target

	strFields := []struct {
		name string
		dst  *string
	}{
		{"title", &t.Title},
		{"description", &t.Description},
		{"locationText", &t.LocationText},
		{"category", &t.Category},
		{"remarks", &t.Remarks},
		{"proofName", &t.ProofName},
	}
	for _, f := range strFields {
		raw, ok := p.field(f.name)
		if !ok {
			continue
		}
		s, err := decodeString(raw, f.name)
		if err != nil {
			return err
		}
		*f.dst = s
		p.touch(f.name)
	}
	if t.Title == "" || t.Description == "" || t.LocationText == "" {
		return apierrors.ErrMissingFields
	}
	if strings.TrimSpace(t.Category) == "" {
		t.Category = models.DefaultCategory
	}

	if raw, ok := p.field("coords"); ok {
		var coords []float64
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &coords); err != nil || !models.ValidCoords(coords) {
				return apierrors.Validation("Invalid coordinates")
			}
		}
		t.Coords = coords
		p.touch("coords")
	}

	statusSet := false
	if raw, ok := p.field("status"); ok {
		s, err := decodeString(raw, "status")
		if err != nil {
			return err
		}
		status, valid := models.ParseStatus(s)
		if !valid {
			return apierrors.Validation("Invalid status")
		}
		t.Status = status
		statusSet = true
		p.touch("status")
	}

	if raw, ok := p.field("assignedTo"); ok {
		if err := p.assign(c, raw, statusSet); err != nil {
			return err
		}
	}

	if raw, ok := p.field("priority"); ok {
		s, err := decodeString(raw, "priority")
		if err != nil {
			return err
		}
		pr := models.Priority(s)
		if !pr.Valid() {
			return apierrors.Validation("Invalid priority")
		}
		t.Priority = pr
		p.touch("priority")
	}

	if raw, ok := p.field("dueDate"); ok {
		due, err := parseDueDate(raw)
		if err != nil {
			return err
		}
		t.DueDate = due
		p.touch("dueDate")
	}

	if raw, ok := p.field("estimatedHours"); ok {
		var hours float64
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &hours); err != nil || hours < 0 {
				return apierrors.Validation("Invalid estimatedHours")
			}
		}
		t.EstimatedHours = hours
		p.touch("estimatedHours")
	}

	if raw, ok := p.field("targetLocation"); ok {
		if isNull(raw) {
			t.TargetLocation = nil
		} else {
			var loc models.TargetLocation
			if err := json.Unmarshal(raw, &loc); err != nil || !models.ValidCoords(loc.Coords) {
				return apierrors.Validation("Invalid targetLocation")
			}
			t.TargetLocation = &loc
		}
		p.touch("targetLocation")
	}
	return nil
}

// assign sets or clears the assignee. The target must be an employee.
func (p *patch) assign(c *gin.Context, raw json.RawMessage, statusSet bool) error {
	s, err := decodeString(raw, "assignedTo")
	if err != nil {
		return err
	}
	if s == "" {
		p.target.AssignedTo = nil
		p.touch("assignedTo")
		return nil
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return apierrors.Validation("Invalid assignedTo")
	}

	ctx, cancel := p.deps.ctx(c)
	defer cancel()
	u, err := p.deps.Users.FindUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.Validation("Assignee must be an employee")
	}
	if err != nil {
		return apierrors.Internal(err)
	}
	if u.Role != models.RoleEmployee {
		return apierrors.Validation("Assignee must be an employee")
	}

	p.target.AssignedTo = &id
	p.touch("assignedTo")
	if !statusSet && p.target.Status == models.StatusPending {
		p.target.Status = models.StatusAssigned
		p.touch("status")
	}
	return nil
}

func parseDueDate(raw json.RawMessage) (*time.Time, error) {
	s, err := decodeString(raw, "dueDate")
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apierrors.Validation("Invalid dueDate")
}
