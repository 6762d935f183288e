package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCategory is used when a complaint is filed without one.
const DefaultCategory = "General"

// Priority enum
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TargetLocation is where an assigned employee is expected to work.
type TargetLocation struct {
	Address string    `bson:"address" json:"address"`
	Coords  []float64 `bson:"coords,omitempty" json:"coords,omitempty"`
}

// Complaint is a civic issue reported by a citizen and, once assigned, an
// employee's task.
type Complaint struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title        string               `bson:"title" json:"title"`
	Description  string               `bson:"description" json:"description"`
	LocationText string               `bson:"locationText" json:"locationText"`
	Town         string               `bson:"town" json:"town"`
	Coords       []float64            `bson:"coords,omitempty" json:"coords,omitempty"`
	Category     string               `bson:"category" json:"category"`
	Status       Status               `bson:"status" json:"status"`
	Remarks      string               `bson:"remarks" json:"remarks"`
	ProofName    string               `bson:"proofName" json:"proofName"`
	CreatedBy    primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	AssignedTo   *primitive.ObjectID  `bson:"assignedTo" json:"assignedTo"`
	Upvotes      int                  `bson:"upvotes" json:"upvotes"`
	UpvotedBy    []primitive.ObjectID `bson:"upvotedBy" json:"upvotedBy"`

	Priority       Priority        `bson:"priority" json:"priority"`
	DueDate        *time.Time      `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	EstimatedHours float64         `bson:"estimatedHours" json:"estimatedHours"`
	ActualHours    float64         `bson:"actualHours" json:"actualHours"`
	TargetLocation *TargetLocation `bson:"targetLocation,omitempty" json:"targetLocation,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Task is a complaint as its assignee sees it. Reporter is nil when the
// filing account no longer exists.
type Task struct {
	Complaint
	Reporter *Reporter `json:"reporter,omitempty"`
}

// NewComplaint fills the defaults a freshly filed complaint carries.
func NewComplaint(createdBy primitive.ObjectID, now time.Time) *Complaint {
	return &Complaint{
		ID:        primitive.NewObjectID(),
		Category:  DefaultCategory,
		Status:    StatusPending,
		CreatedBy: createdBy,
		Priority:  PriorityMedium,
		UpvotedBy: []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAssignedTo reports whether the task belongs to the given employee.
func (c *Complaint) IsAssignedTo(id primitive.ObjectID) bool {
	return c.AssignedTo != nil && *c.AssignedTo == id
}

// HasUpvoted reports whether the user is already in the voter set.
func (c *Complaint) HasUpvoted(id primitive.ObjectID) bool {
	for _, v := range c.UpvotedBy {
		if v == id {
			return true
		}
	}
	return false
}

// ValidCoords accepts a missing pair or exactly [lat, lng] within range.
func ValidCoords(coords []float64) bool {
	if coords == nil {
		return true
	}
	if len(coords) != 2 {
		return false
	}
	return coords[0] >= -90 && coords[0] <= 90 && coords[1] >= -180 && coords[1] <= 180
}
