package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"civicconnect-be/mirror"

	"go.uber.org/zap"
)

// SyncReport summarizes one Sync pass.
type SyncReport struct {
	Applied   int `json:"applied"`
	Rejected  int `json:"rejected"`
	Remaining int `json:"remaining"`
}

// ErrSessionExpired stops a Sync pass whose token the server no longer
// accepts. The queue is kept; log in again and rerun Sync.
var ErrSessionExpired = errors.New("session expired; log in again")

// errOrphaned marks an update whose offline-created parent never reached
// the server.
var errOrphaned = &APIError{Status: http.StatusConflict, Message: "complaint was never created on the server"}

// Sync replays queued writes in order. A 2xx answer makes the server copy
// authoritative in the mirror. A 4xx answer drops the write and records it
// as rejected, except 401 and 429: those say nothing about the write
// itself, so like an unreachable server they stop the pass and leave the
// rest of the queue in place. A 401 comes back wrapped in ErrSessionExpired.
func (c *Client) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if c.mirror == nil {
		return report, errors.New("sync needs a mirror")
	}
	ops, err := c.mirror.Pending(ctx)
	if err != nil {
		return report, err
	}

	// Local ids re-keyed during this pass.
	rekeyed := map[string]string{}

	for i, op := range ops {
		if id, ok := rekeyed[op.TargetID]; ok {
			op.TargetID = id
		}

		err := c.replay(ctx, op, rekeyed)
		var apiErr *APIError
		switch {
		case err == nil:
			if err := c.mirror.Ack(ctx, op.Seq); err != nil {
				return report, err
			}
			report.Applied++
		case errors.As(err, &apiErr) && isVerdict(apiErr.Status):
			if err := c.reject(ctx, op, apiErr); err != nil {
				return report, err
			}
			report.Rejected++
		default:
			report.Remaining = len(ops) - i
			c.log.Info("sync stopped", zap.Int("remaining", report.Remaining), zap.Error(err))
			if apiErr != nil && apiErr.Status == http.StatusUnauthorized {
				return report, fmt.Errorf("%w: %w", ErrSessionExpired, err)
			}
			return report, err
		}
	}
	return report, nil
}

// isVerdict reports whether status is the server refusing the write
// itself rather than the caller or the moment.
func isVerdict(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

func (c *Client) replay(ctx context.Context, op mirror.Op, rekeyed map[string]string) error {
	switch op.Kind {
	case mirror.OpCreateComplaint:
		var in NewComplaint
		if err := json.Unmarshal(op.Payload, &in); err != nil {
			return &APIError{Status: http.StatusBadRequest, Message: "corrupt queued payload"}
		}
		var out Complaint
		if err := c.do(ctx, http.MethodPost, "/api/complaints", in, &out); err != nil {
			return err
		}
		rec, err := toRecord(out, false)
		if err != nil {
			return err
		}
		if err := c.mirror.Rekey(ctx, op.TargetID, rec); err != nil {
			return fmt.Errorf("rekey %s: %w", op.TargetID, err)
		}
		rekeyed[op.TargetID] = out.ID
		return nil

	case mirror.OpUpdateComplaint:
		if mirror.IsLocalID(op.TargetID) {
			return errOrphaned
		}
		var fields map[string]any
		if err := json.Unmarshal(op.Payload, &fields); err != nil {
			return &APIError{Status: http.StatusBadRequest, Message: "corrupt queued payload"}
		}
		var out Complaint
		if err := c.do(ctx, http.MethodPatch, "/api/complaints/"+url.PathEscape(op.TargetID), fields, &out); err != nil {
			return err
		}
		rec, err := toRecord(out, false)
		if err != nil {
			return err
		}
		return c.mirror.PutComplaint(ctx, rec)

	case mirror.OpUpdateLocation:
		var loc Location
		if err := json.Unmarshal(op.Payload, &loc); err != nil {
			return &APIError{Status: http.StatusBadRequest, Message: "corrupt queued payload"}
		}
		return c.do(ctx, http.MethodPut, "/api/employee/location", loc, nil)

	default:
		return &APIError{Status: http.StatusBadRequest, Message: "unknown queued operation " + string(op.Kind)}
	}
}

// reject records a refused write. The server wins: the local copy it
// produced is discarded and refetched on the next read.
func (c *Client) reject(ctx context.Context, op mirror.Op, apiErr *APIError) error {
	if err := c.mirror.Reject(ctx, op, apiErr.Status, apiErr.Message); err != nil {
		return err
	}
	c.log.Warn("queued write rejected",
		zap.Int64("seq", op.Seq),
		zap.String("kind", string(op.Kind)),
		zap.Int("status", apiErr.Status),
		zap.String("message", apiErr.Message),
	)
	switch op.Kind {
	case mirror.OpCreateComplaint, mirror.OpUpdateComplaint:
		if pending, err := c.mirror.HasPending(ctx, op.TargetID); err != nil || pending {
			return err
		}
		return c.mirror.DeleteComplaint(ctx, op.TargetID)
	case mirror.OpUpdateLocation:
	}
	return nil
}
