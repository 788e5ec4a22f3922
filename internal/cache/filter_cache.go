package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FilterCache is a bounded cache with FIFO eviction: when full, the key
// inserted first is dropped, no matter how often it was read.
//
// It sits on an LRU list whose recency is never refreshed: lookups use Peek
// and inserts use ContainsOrAdd, so list order stays insertion order.
type FilterCache[V any] struct {
	// mu serialises writes; the eviction callback runs inside them and
	// reads purging
	mu        sync.Mutex
	purging   bool
	cache     *lru.Cache[string, V]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewFilterCache creates a FIFO cache holding at most maxSize entries
func NewFilterCache[V any](maxSize int) *FilterCache[V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}

	c := &FilterCache[V]{capacity: maxSize}
	inner, err := lru.NewWithEvict[string, V](maxSize, func(string, V) {
		if !c.purging {
			c.evictions.Add(1)
		}
	})
	if err != nil {
		// Only fails for non-positive sizes, which are replaced above
		panic(fmt.Sprintf("failed to create filter cache: %v", err))
	}
	c.cache = inner
	return c
}

// Get returns the cached value for key without changing its position
func (c *FilterCache[V]) Get(key string) (V, bool) {
	v, ok := c.cache.Peek(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set inserts value under key unless the key is already cached, in which
// case the existing entry and its queue position are kept.
func (c *FilterCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.ContainsOrAdd(key, value)
}

// Keys returns the cached keys, oldest first
func (c *FilterCache[V]) Keys() []string {
	return c.cache.Keys()
}

// Len returns the number of cached entries
func (c *FilterCache[V]) Len() int {
	return c.cache.Len()
}

// Clear drops every entry. Purged entries are not counted as evictions.
func (c *FilterCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purging = true
	c.cache.Purge()
	c.purging = false
}

// Stats returns a snapshot of occupancy and counters
func (c *FilterCache[V]) Stats() Stats {
	return Stats{
		Size:      c.cache.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
