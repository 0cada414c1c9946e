package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key            string
	Value          V
	CreatedAt      time.Time
	ExpiresAt      time.Time // Zero means no expiration
	AccessCount    int64
	LastAccessedAt time.Time
}

// Valid reports whether the entry is still live at now.
func (e *Entry[V]) Valid(now time.Time) bool {
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// InMemoryCache is a thread-safe, size-bounded in-process cache with TTL support.
// At capacity the entry with the oldest LastAccessedAt is evicted (approximate LRU).
type InMemoryCache[V any] struct {
	entries    map[string]*Entry[V]
	ttl        time.Duration
	maxEntries int
	evictions  int64
	now        func() time.Time
	mu         sync.Mutex
}

// NewInMemoryCache creates a new in-memory cache.
// If ttl is 0 or negative, entries never expire. If maxEntries is 0 or negative, size is unbounded.
func NewInMemoryCache[V any](ttl time.Duration, maxEntries int) *InMemoryCache[V] {
	if ttl < 0 {
		ttl = 0
	}
	return &InMemoryCache[V]{
		entries:    make(map[string]*Entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *InMemoryCache[V]) WithClock(now func() time.Time) *InMemoryCache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *InMemoryCache[V]) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// Get retrieves a value from the cache and records the access.
// Returns the value and true if found and not expired.
func (c *InMemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	now := c.now()
	if !entry.Valid(now) {
		delete(c.entries, key)
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	return entry.Value, true
}

// Set stores a value with the cache's TTL, evicting if at capacity.
func (c *InMemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}
	c.insert(key, value, now, expiresAt)
}

// SetWithExpiry stores a value with an explicit expiry, as used when restoring snapshots.
func (c *InMemoryCache[V]) SetWithExpiry(key string, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(key, value, c.now(), expiresAt)
}

// insert must be called with lock held.
func (c *InMemoryCache[V]) insert(key string, value V, now, expiresAt time.Time) {
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		LastAccessedAt: now,
	}
}

// evictOldest must be called with lock held.
func (c *InMemoryCache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.LastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.LastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Delete removes a key.
func (c *InMemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes expired entries and returns how many were removed.
func (c *InMemoryCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !entry.Valid(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries in the cache (including expired ones not yet swept).
func (c *InMemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Evictions returns how many entries were evicted for capacity.
func (c *InMemoryCache[V]) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Clear removes all entries from the cache.
func (c *InMemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Entries returns copies of all non-expired entries.
// This is used for cache export.
func (c *InMemoryCache[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	result := make([]Entry[V], 0, len(c.entries))
	for _, entry := range c.entries {
		if !entry.Valid(now) {
			continue
		}
		result = append(result, *entry)
	}
	return result
}
