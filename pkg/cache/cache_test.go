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
	CID   string  `json:"cid"`
	Value float64 `json:"value"`
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client, "mp"), mr
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(4)

	require.NoError(t, m.Set(ctx, "a", point{"USD", 1.5}, time.Minute))
	var got point
	require.NoError(t, m.Get(ctx, "a", &got))
	assert.Equal(t, point{"USD", 1.5}, got)

	assert.ErrorIs(t, m.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(2)

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, m.Get(ctx, "a", &s)) // a becomes most recent
	require.NoError(t, m.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, m.Len())
	assert.ErrorIs(t, m.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, m.Get(ctx, "a", &s))
	assert.NoError(t, m.Get(ctx, "c", &s))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(4)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", "1", time.Second))
	now = now.Add(2 * time.Second)
	var s string
	assert.ErrorIs(t, m.Get(ctx, "a", &s), ErrCacheMiss)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(8)
	for _, k := range []string{"scores:XR:1", "scores:XR:2", "scores:CPI:1"} {
		require.NoError(t, m.Set(ctx, k, "v", 0))
	}

	require.NoError(t, m.DeleteByPattern(ctx, "scores:XR:*"))
	var s string
	assert.ErrorIs(t, m.Get(ctx, "scores:XR:1", &s), ErrCacheMiss)
	assert.NoError(t, m.Get(ctx, "scores:CPI:1", &s))
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(4)

	ok, err := m.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok)

	require.NoError(t, m.Unlock(ctx, "lock"))
	ok, _ = m.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	require.NoError(t, c.Set(ctx, "scores:XR:abc", []point{{"USD", 0.3}}, time.Minute))
	assert.True(t, mr.Exists("mp:scores:XR:abc"))

	var got []point
	require.NoError(t, c.Get(ctx, "scores:XR:abc", &got))
	assert.Equal(t, []point{{"USD", 0.3}}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "scores:XR:abc", &got), ErrCacheMiss)
}

func TestRedisCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)
	for _, k := range []string{"scores:XR:1", "scores:XR:2", "scores:CPI:1"} {
		require.NoError(t, c.Set(ctx, k, "v", 0))
	}

	require.NoError(t, c.DeleteByPattern(ctx, "scores:XR:*"))
	assert.False(t, mr.Exists("mp:scores:XR:1"))
	assert.False(t, mr.Exists("mp:scores:XR:2"))
	assert.True(t, mr.Exists("mp:scores:CPI:1"))
}

func TestRedisCacheLock(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedis(t)

	ok, err := c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Unlock(ctx, "job"))
}

func TestLayeredCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	l2, mr := newRedis(t)
	lc := NewLayeredCache(l2, 8, time.Minute)

	require.NoError(t, l2.Set(ctx, "k", point{"EUR", 2}, time.Minute))

	var got point
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, point{"EUR", 2}, got)

	// served from L1 once Redis forgets it
	mr.Del("mp:k")
	got = point{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, point{"EUR", 2}, got)

	require.NoError(t, lc.DeleteByPattern(ctx, "k*"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestHashParamsStable(t *testing.T) {
	a, err := HashParams(map[string]int{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := HashParams(map[string]int{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 24)
	assert.Equal(t, "scores:XR:"+a, Key("scores", "XR", a))
}
