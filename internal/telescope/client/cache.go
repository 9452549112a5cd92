package client

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// cacheEntry is one cached query result.
type cacheEntry struct {
	endpoint   string
	value      json.RawMessage
	capturedAt time.Time
	ttl        time.Duration
}

func (e cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.capturedAt) < e.ttl
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Cache holds recent results of idempotent queries keyed by endpoint and
// parameters. Entries are served only while younger than their TTL.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates an empty cache. A nil clock means time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// Get returns the cached value for key if it is still fresh, counting a hit
// or a miss. Expired entries are removed on the way.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	v, ok := c.peek(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// peek is Get without touching the hit counters.
func (c *Cache) peek(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.fresh(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key. A non-positive ttl stores nothing.
func (c *Cache) Put(key, endpoint string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		endpoint:   endpoint,
		value:      value,
		capturedAt: c.now(),
		ttl:        ttl,
	}
}

// Invalidate removes the entry for key. Missing keys are ignored.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateEndpoint removes every entry for endpoint regardless of
// parameters and returns how many were removed.
func (c *Cache) InvalidateEndpoint(endpoint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.endpoint == endpoint {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counters and current size.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := CacheStats{Hits: hits, Misses: misses, Size: c.Len()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
