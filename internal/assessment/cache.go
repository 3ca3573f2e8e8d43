package assessment

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a computed result stays addressable by its
// fingerprint.
const DefaultCacheTTL = 24 * time.Hour

// Cache maps request fingerprints to previously computed results with TTL
// expiry. It is a pure optimization: dropping it loses no correctness, only
// an external call.
type Cache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
}

type cacheEntry struct {
	result     *Result
	expiration time.Time
}

// NewCache creates a fingerprint cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cache := &Cache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// Get returns the cached result for a fingerprint if present and not expired.
func (c *Cache) Get(fingerprint string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[fingerprint]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiration) {
		return nil, false
	}

	return entry.result, true
}

// SetIfAbsent stores the result unless a live entry already exists, returning
// the entry that ended up in the cache. Insert-if-absent-or-expired keeps
// concurrent writers from replacing each other's results.
func (c *Cache) SetIfAbsent(fingerprint string, result *Result) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.data[fingerprint]; ok && time.Now().Before(entry.expiration) {
		return entry.result
	}

	c.data[fingerprint] = &cacheEntry{
		result:     result,
		expiration: time.Now().Add(c.ttl),
	}
	return result
}

// Delete removes a fingerprint from the cache.
func (c *Cache) Delete(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, fingerprint)
}

// Size returns the number of entries, expired ones included until swept.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

func (c *Cache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (c *Cache) Stop() {
	c.cleanup.Stop()
	close(c.done)
}
