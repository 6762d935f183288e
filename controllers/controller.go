package controllers

import (
	"context"
	"errors"
	"time"

	"civicconnect-be/apierrors"
	"civicconnect-be/cache"
	"civicconnect-be/metrics"
	"civicconnect-be/middlewares"
	"civicconnect-be/models"
	"civicconnect-be/policy"
	"civicconnect-be/store"
	"civicconnect-be/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Deps carries everything the handlers need. Routes build one per process.
type Deps struct {
	Users      store.Users
	Complaints store.Complaints
	Issuer     *utils.TokenIssuer
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Cache      *cache.JSONCache

	AdminSignupKey        string
	StrictTaskTransitions bool
	RequestTimeout        time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// ctx bounds store calls by the configured request timeout.
func (d *Deps) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func (d *Deps) fail(c *gin.Context, err error) {
	apierrors.Respond(c, d.logger(), err)
}

// actor loads the caller behind the verified token. The token does not
// carry the admin's town, so the user record is read on every request.
func (d *Deps) actor(ctx context.Context, c *gin.Context) (policy.Actor, error) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middlewares.ContextUserID))
	if err != nil {
		return policy.Actor{}, apierrors.ErrInvalidToken
	}
	u, err := d.Users.FindUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return policy.Actor{}, apierrors.ErrInvalidToken
	}
	if err != nil {
		return policy.Actor{}, apierrors.Internal(err)
	}
	return policy.Actor{ID: u.ID, Role: u.Role, Town: u.Town}, nil
}

// callerID is the token subject without a store lookup.
func callerID(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middlewares.ContextUserID))
	if err != nil {
		return primitive.NilObjectID, apierrors.ErrInvalidToken
	}
	return id, nil
}

func pathID(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, apierrors.ErrInvalidID
	}
	return id, nil
}

// loadComplaint maps a missing record onto the given not-found error.
func (d *Deps) loadComplaint(ctx context.Context, id primitive.ObjectID, missing error) (*models.Complaint, error) {
	complaint, err := d.Complaints.FindComplaint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return complaint, nil
}
