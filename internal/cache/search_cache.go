package cache

import (
	"sync"
	"time"
)

// DefaultSize is the capacity used when a cache is created with size <= 0
const DefaultSize = 20

// Stats reports cache occupancy and counters. Counters are for reporting
// only and never influence eviction.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// searchEntry is one cached keyword result
type searchEntry[V any] struct {
	value      V
	hitCount   int
	lastAccess time.Time
	seq        uint64 // insertion order, breaks hit-count ties
}

// SearchCache is a bounded keyword cache with least-used eviction: when
// full, inserting a new key evicts the entry with the lowest hit count,
// the earliest inserted among equals. Only Get mutates hit counts.
type SearchCache[V any] struct {
	mu        sync.Mutex
	capacity  int
	entries   map[string]*searchEntry[V]
	seq       uint64
	hits      uint64
	misses    uint64
	evictions uint64
	now       func() time.Time
}

// NewSearchCache creates a least-used cache holding at most maxSize entries
func NewSearchCache[V any](maxSize int) *SearchCache[V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &SearchCache[V]{
		capacity: maxSize,
		entries:  make(map[string]*searchEntry[V], maxSize),
		now:      time.Now,
	}
}

// Get returns the cached value and bumps its hit count and access time
func (c *SearchCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	e.hitCount++
	e.lastAccess = c.now()
	c.hits++
	return e.value, true
}

// Peek returns the cached value without touching counters or access time
func (c *SearchCache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Set stores value under key. Replacing an existing key keeps its hit
// count; inserting into a full cache evicts the least-used entry first.
func (c *SearchCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.lastAccess = now
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictLeastUsedLocked()
	}

	c.seq++
	c.entries[key] = &searchEntry[V]{
		value:      value,
		lastAccess: now,
		seq:        c.seq,
	}
}

// evictLeastUsedLocked removes the entry with the minimum hit count
func (c *SearchCache[V]) evictLeastUsedLocked() {
	var (
		victim string
		least  *searchEntry[V]
	)
	for key, e := range c.entries {
		if least == nil || e.hitCount < least.hitCount ||
			(e.hitCount == least.hitCount && e.seq < least.seq) {
			victim, least = key, e
		}
	}
	if least != nil {
		delete(c.entries, victim)
		c.evictions++
	}
}

// HitCount returns the hit count of key, or -1 if it is not cached
func (c *SearchCache[V]) HitCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.hitCount
	}
	return -1
}

// LastAccess returns when key was last stored or hit
func (c *SearchCache[V]) LastAccess(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.lastAccess, true
	}
	return time.Time{}, false
}

// Len returns the number of cached entries
func (c *SearchCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry; counters are kept
func (c *SearchCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Stats returns a snapshot of occupancy and counters
func (c *SearchCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
