package storage

// Cache is a bounded in-memory LRU backend, grounded on the teacher's
// diskLRU in core/storage.go (index map + access-ordered eviction list),
// adapted to hold values in memory rather than on disk since the cache
// backend is meant to sit in front of a slower primary.

import (
	"container/list"
	"context"
	"sync"
)

const defaultCacheCapacity = 10_000

type cacheEntry struct {
	key   string
	value []byte
}

// Cache is always Eventual consistency: an entry can be evicted between
// a Put and a subsequent Get under memory pressure.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element

	hits, misses uint64
	metrics      *Metrics
}

// SetMetrics points the cache at the façade-wide metrics collector its
// lookups should be reported into. Called by Facade.Register when a Cache
// backend is registered; a nil metrics leaves HitRate as the only signal.
func (c *Cache) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// NewCache constructs a bounded LRU cache backend. capacity <= 0 uses
// defaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *Cache) Name() string { return "cache" }

func (c *Cache) Get(_ context.Context, key string, _ Consistency) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
		return nil, ErrNotFound
	}
	c.hits++
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	c.order.MoveToFront(el)
	return append([]byte(nil), el.Value.(*cacheEntry).value...), nil
}

func (c *Cache) Put(_ context.Context, key string, value []byte, _ Consistency) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).value = append([]byte(nil), value...)
		c.order.MoveToFront(el)
		return nil
	}

	el := c.order.PushFront(&cacheEntry{key: key, value: append([]byte(nil), value...)})
	c.index[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string, _ Consistency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
	}
	return nil
}

func (c *Cache) Shutdown(_ context.Context) error { return nil }

// HitRate returns hits/(hits+misses), or 0 if no lookups have occurred.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
