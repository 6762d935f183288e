package middlewares

import (
	"context"
	"net/http"
	"time"

	"civicconnect-be/apierrors"
	"civicconnect-be/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures ComplaintRateLimiter.
type RateLimitConfig struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// ComplaintRateLimiter caps how many complaints one user may file per
// window. It counts with INCR on a per-user key whose TTL starts at the
// first submission and is reapplied whenever the key has none. With no Redis client or a non-positive limit the
// middleware lets everything through.
func ComplaintRateLimiter(rdb *redis.Client, cfg RateLimitConfig, m *metrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		userID := c.GetString(ContextUserID)
		if userID == "" {
			apierrors.Respond(c, log, apierrors.ErrMissingToken)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Create individual key for each user
		userKey := cfg.Prefix + ":" + userID

		// EXPIRE NX rides along with every INCR, so a key left without a
		// TTL by an earlier failure picks one up on the next request.
		var incr *redis.IntCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, userKey)
			pipe.ExpireNX(ctx, userKey, cfg.Window)
			return nil
		})
		if err != nil {
			// Redis trouble must not block filing complaints.
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		count := incr.Val()

		if count > int64(cfg.Limit) {
			retryAfter, _ := rdb.TTL(ctx, userKey).Result()
			if m != nil {
				m.RateLimited.Inc()
			}
			apierrors.RespondWithExtra(c,
				apierrors.New(apierrors.KindRateLimited, "Rate limit exceeded").WithStatus(http.StatusTooManyRequests),
				gin.H{"retryAfter": retryAfter.Seconds()},
			)
			return
		}

		c.Next()
	}
}
