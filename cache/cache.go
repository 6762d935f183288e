package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCache stores JSON-encoded values in Redis under a key prefix.
// A nil *JSONCache or a zero TTL turns every call into a miss.
type JSONCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJSONCache(rdb *redis.Client, prefix string, ttl time.Duration) *JSONCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &JSONCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *JSONCache) key(k string) string {
	return c.prefix + ":" + k
}

// Get decodes the cached value into dst and reports whether it was found.
func (c *JSONCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
