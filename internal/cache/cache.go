package cache

import (
	"slices"
	"sync"
)

// Cache is a thread-safe LRU cache with a soft size limit.
// Once the cache grows past the limit, the least recently used quarter of
// its entries is evicted.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	limit   int
	tick    int64 // monotonic access counter
}

type entry[V any] struct {
	value V
	used  int64
}

// New creates a cache that holds about limit entries.
// A limit of 0 means unlimited.
func New[K comparable, V any](limit int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		limit:   limit,
	}
}

// GetOrCreate returns the value stored for key, calling create to build and
// store it when missing. create runs under the lock, so concurrent callers
// with the same key build the value once.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[key]; ok {
		e.used = c.tick
		return e.value
	}

	value := create()
	c.entries[key] = &entry[V]{value: value, used: c.tick}
	if c.limit > 0 && len(c.entries) > c.limit {
		c.evict()
	}
	return value
}

// Len returns the number of stored entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict drops the oldest entries until three quarters of the limit remain.
// Caller must hold c.mu.
func (c *Cache[K, V]) evict() {
	target := max(c.limit*3/4, 1)
	n := len(c.entries) - target
	if n <= 0 {
		return
	}

	type aged struct {
		key  K
		used int64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.used})
	}
	slices.SortFunc(all, func(a, b aged) int { return int(a.used - b.used) })
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}
