package cache

import (
	"context"
	"encoding/json"
	"time"
)

// LayeredCache reads through a process-local LRU (L1) to a shared backend (L2)
// and writes through to both.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

func NewLayeredCache(l2 Service, memorySize int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	return &LayeredCache{l1: NewMemoryCache(memorySize), l2: l2, l1TTL: l1TTL}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, lc.localTTL(ttl))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw json.RawMessage
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	lc.l1.setRaw(key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

// Locks live only in L2 so they hold across replicas.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < lc.l1TTL {
		return ttl
	}
	return lc.l1TTL
}
