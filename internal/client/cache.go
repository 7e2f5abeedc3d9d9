package client

import (
	"sync"
	"time"
)

// cacheableEndpoints are the read endpoints whose responses may be reused
// for the cache TTL.
var cacheableEndpoints = map[string]bool{
	"/api/users/get-user-info":             true,
	"/api/exams/get-all-exams":             true,
	"/api/exams/get-exam-by-id":            true,
	"/api/reports/get-all-reports":         true,
	"/api/reports/get-all-reports-by-user": true,
}

// responseCache holds recent response bodies keyed by method+URL+body.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached body if present and fresh.
func (c *responseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.body, true
}

// Set stores a body under the key for the TTL.
func (c *responseCache) Set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expires: c.now().Add(c.ttl)}
}

// Clear drops every entry. Called on logout and on fatal auth failures so
// stale authenticated reads never outlive the session.
func (c *responseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
