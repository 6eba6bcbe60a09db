package cache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type item[V any] struct {
	value V
	ts    time.Time
}

// Cache keeps a bounded set of recently fetched values that expire after ttl.
// Oldest insertions are evicted first once capacity is exceeded.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache with the provided capacity and ttl.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key if it is still fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, refreshing its age.
func (c *Cache[V]) Put(key string, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{value: value, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len reports how many keys are held, fresh or not yet compacted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// A re-Put key has a newer order entry; only drop the map slot it owns.
		if it, ok := c.items[oldest.key]; ok && it.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
