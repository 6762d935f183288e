package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	ID    string `json:"_id"`
	Count int64  `json:"count"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestJSONCache_SetGetExpire(t *testing.T) {
	mr, rdb := newRedis(t)
	c := NewJSONCache(rdb, "analytics", time.Minute)
	ctx := context.Background()

	var got []point
	hit, err := c.Get(ctx, "trends", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := []point{{ID: "2024-01-01", Count: 2}}
	require.NoError(t, c.Set(ctx, "trends", want))
	assert.True(t, mr.Exists("analytics:trends"))

	hit, err = c.Get(ctx, "trends", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, "trends", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestJSONCache_DisabledIsNoop(t *testing.T) {
	_, rdb := newRedis(t)
	for _, c := range []*JSONCache{NewJSONCache(nil, "x", time.Minute), NewJSONCache(rdb, "x", 0)} {
		assert.Nil(t, c)
		require.NoError(t, c.Set(context.Background(), "k", 1))
		var v int
		hit, err := c.Get(context.Background(), "k", &v)
		require.NoError(t, err)
		assert.False(t, hit)
	}
}
