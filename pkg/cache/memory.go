package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

const defaultMemoryTTL = time.Hour

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is a size-bounded LRU with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	items   map[string]*list.Element
	now     func() time.Time
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &MemoryCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	m.setRaw(key, data, ttl)
	return nil
}

func (m *MemoryCache) setRaw(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &memoryItem{key: key, data: data, expireAt: m.now().Add(ttl)}
	if el, ok := m.items[key]; ok {
		el.Value = item
		m.order.MoveToFront(el)
		return
	}
	m.items[key] = m.order.PushFront(item)
	for m.order.Len() > m.maxSize {
		m.removeElement(m.order.Back())
	}
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := m.getRaw(key)
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (m *MemoryCache) getRaw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*memoryItem)
	if m.now().After(item.expireAt) {
		m.removeElement(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	return item.data, true
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if el, ok := m.items[key]; ok {
			m.removeElement(el)
		}
	}
	return nil
}

func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, el := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			m.removeElement(el)
		}
	}
	return nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if _, ok := m.getRaw(key); ok {
		return false, nil
	}
	m.setRaw(key, []byte("locked"), ttl)
	return true, nil
}

func (m *MemoryCache) Unlock(ctx context.Context, key string) error {
	return m.Delete(ctx, key)
}

// Len reports live and not-yet-evicted expired entries.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryCache) Close() error { return nil }

func (m *MemoryCache) removeElement(el *list.Element) {
	item := m.order.Remove(el).(*memoryItem)
	delete(m.items, item.key)
}
