// Package tasks holds ephemeral gateway state: a bounded TTL cache used
// for discovery documents and remote poll results. Entries expire on
// their own and the cache never grows past its configured size, so a
// burst of one-off keys cannot pin memory.
package tasks

import (
	"sync"
	"time"
)

type entry struct {
	value      any
	expiresAt  time.Time
	insertedAt time.Time
}

// TTLCache is a thread-safe in-memory cache with per-entry expiry and
// max-size eviction. When full, the oldest entry (by insertion time) is
// evicted. Expired entries are lazily dropped on Get.
type TTLCache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	maxSize int
	ttl     time.Duration
}

// NewTTLCache creates a cache with the given maximum size and default TTL.
// maxSize must be >= 1; ttl must be > 0.
func NewTTLCache(maxSize int, ttl time.Duration) *TTLCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TTLCache{
		items:   make(map[string]*entry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached value by key. Returns (nil, false) if the key is
// missing or expired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}

	return e.value, true
}

// Set stores a value under the default TTL.
func (c *TTLCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL. If the cache is at
// capacity, the oldest entry (by insertion time) is evicted first.
func (c *TTLCache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if ttl <= 0 {
		ttl = c.ttl
	}

	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = &entry{
		value:      value,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
	}
}

// Invalidate removes a specific key.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes every entry.
func (c *TTLCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.maxSize)
}

// Len returns the number of entries currently held, including expired
// ones that have not been lazily cleaned yet.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for k, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
