// Package store persists users and complaints. The Mongo implementation is
// the production path; memstore mirrors the same contracts in memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicconnect-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicateEmail = errors.New("store: email already in use")
	ErrDuplicateEmpID = errors.New("store: employee id already in use")
	ErrAlreadyUpvoted = errors.New("store: already upvoted")
)

// Owned by Create and Upvote; UpdateComplaintFields refuses them.
var fixedComplaintFields = map[string]bool{
	"_id":       true,
	"createdBy": true,
	"createdAt": true,
	"upvotes":   true,
	"upvotedBy": true,
}

// CheckComplaintUpdate rejects an empty set and any field owned by another
// operation.
func CheckComplaintUpdate(set bson.M) error {
	if len(set) == 0 {
		return errors.New("store: empty complaint update")
	}
	for k := range set {
		if fixedComplaintFields[k] {
			return fmt.Errorf("store: field %q cannot be updated", k)
		}
	}
	return nil
}

// GroupBy is the date bucket width for trend queries.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByMonth GroupBy = "month"
)

// ParseGroupBy falls back to day for anything it does not know.
func ParseGroupBy(s string) GroupBy {
	if GroupBy(s) == GroupByMonth {
		return GroupByMonth
	}
	return GroupByDay
}

// Layout returns the Go time layout matching the bucket key format.
func (g GroupBy) Layout() string {
	if g == GroupByMonth {
		return "2006-01"
	}
	return "2006-01-02"
}

// Bucket is one row of a grouping query.
type Bucket struct {
	ID    string `bson:"_id" json:"_id"`
	Count int64  `bson:"count" json:"count"`
}

// ComplaintFilter narrows a listing. Zero fields do not filter.
type ComplaintFilter struct {
	Town       string
	CreatedBy  *primitive.ObjectID
	AssignedTo *primitive.ObjectID
	Status     models.Status
	Category   string
}

// TrendQuery selects complaints created in [From, To) and buckets them.
type TrendQuery struct {
	From     *time.Time
	To       *time.Time
	GroupBy  GroupBy
	Category string
	Town     string
}

// AreaQuery ranks towns by complaint count within [From, To).
type AreaQuery struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	// FindUsersByIDs skips ids with no account.
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	// FindEmployeeByCode matches the external employee code or the email.
	FindEmployeeByCode(ctx context.Context, code string) (*models.User, error)
	ListEmployees(ctx context.Context) ([]models.User, error)
	SetDuty(ctx context.Context, id primitive.ObjectID, onDuty bool) error
	SetLocation(ctx context.Context, id primitive.ObjectID, loc models.GeoPoint) error
}

type Complaints interface {
	CreateComplaint(ctx context.Context, c *models.Complaint) error
	FindComplaint(ctx context.Context, id primitive.ObjectID) (*models.Complaint, error)
	// ListComplaints returns matches newest first.
	ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, error)
	// UpdateComplaintFields applies set as a field-level $set and returns
	// the updated document. Fields written by other operations in between
	// are left alone.
	UpdateComplaintFields(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Complaint, error)
	DeleteComplaint(ctx context.Context, id primitive.ObjectID) error
	// Upvote adds userID to the voter set and bumps the counter in one
	// conditional write, returning the new count.
	Upvote(ctx context.Context, id, userID primitive.ObjectID) (int, error)

	CountByCategory(ctx context.Context) ([]Bucket, error)
	CountByStatus(ctx context.Context, f ComplaintFilter) ([]Bucket, error)
	Trends(ctx context.Context, q TrendQuery) ([]Bucket, error)
	TopAreas(ctx context.Context, q AreaQuery) ([]Bucket, error)
}

// Store bundles both collections.
type Store interface {
	Users
	Complaints
}
