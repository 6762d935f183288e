package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"civicconnect-be/apierrors"
	"civicconnect-be/policy"
	"civicconnect-be/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	dateLayout          = "2006-01-02"
	defaultTopAreaLimit = 20
	maxTopAreaLimit     = 100
)

// parseDateParam accepts YYYY-MM-DD or RFC3339. A bare date used as an
// upper bound covers the whole day.
func parseDateParam(c *gin.Context, name string, upper bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		if upper {
			t = t.Add(time.Nanosecond)
		}
		return &t, nil
	}
	return nil, apierrors.Validation("Invalid " + name + " date")
}

func (d *Deps) requireAnalytics(c *gin.Context) bool {
	ctx, cancel := d.ctx(c)
	defer cancel()

	actor, err := d.actor(ctx, c)
	if err != nil {
		d.fail(c, err)
		return false
	}
	if err := policy.CanViewAnalytics(actor); err != nil {
		d.fail(c, err)
		return false
	}
	return true
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// cached serves key from the analytics cache or computes and stores it.
func (d *Deps) cached(c *gin.Context, key string, compute func() ([]store.Bucket, error)) {
	ctx, cancel := d.ctx(c)
	defer cancel()

	var out []store.Bucket
	if hit, err := d.Cache.Get(ctx, key, &out); err != nil {
		d.logger().Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		c.JSON(http.StatusOK, out)
		return
	}

	out, err := compute()
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	if out == nil {
		out = []store.Bucket{}
	}
	if err := d.Cache.Set(ctx, key, out); err != nil {
		d.logger().Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
	c.JSON(http.StatusOK, out)
}

// GetTrends handles GET /api/analytics/trends. Buckets with no complaints
// are omitted.
func (d *Deps) GetTrends(c *gin.Context) {
	if !d.requireAnalytics(c) {
		return
	}
	from, err := parseDateParam(c, "from", false)
	if err != nil {
		d.fail(c, err)
		return
	}
	to, err := parseDateParam(c, "to", true)
	if err != nil {
		d.fail(c, err)
		return
	}
	q := store.TrendQuery{
		From:     from,
		To:       to,
		GroupBy:  store.ParseGroupBy(c.DefaultQuery("groupBy", "day")),
		Category: c.Query("category"),
		Town:     c.Query("town"),
	}

	key := fmt.Sprintf("trends:%s:%s:%s:%s:%s", q.GroupBy, timeKey(q.From), timeKey(q.To), q.Category, q.Town)
	d.cached(c, key, func() ([]store.Bucket, error) {
		ctx, cancel := d.ctx(c)
		defer cancel()
		return d.Complaints.Trends(ctx, q)
	})
}

// GetTopAreas handles GET /api/analytics/top-areas.
func (d *Deps) GetTopAreas(c *gin.Context) {
	if !d.requireAnalytics(c) {
		return
	}
	from, err := parseDateParam(c, "from", false)
	if err != nil {
		d.fail(c, err)
		return
	}
	to, err := parseDateParam(c, "to", true)
	if err != nil {
		d.fail(c, err)
		return
	}
	limit := defaultTopAreaLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			d.fail(c, apierrors.Validation("Invalid limit"))
			return
		}
		limit = min(n, maxTopAreaLimit)
	}
	q := store.AreaQuery{From: from, To: to, Limit: limit}

	key := fmt.Sprintf("top-areas:%s:%s:%d", timeKey(q.From), timeKey(q.To), q.Limit)
	d.cached(c, key, func() ([]store.Bucket, error) {
		ctx, cancel := d.ctx(c)
		defer cancel()
		return d.Complaints.TopAreas(ctx, q)
	})
}
