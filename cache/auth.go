package cache

import (
	"sync"
	"time"
)

type authKey struct {
	deviceID string
	apiKey   string
}

// AuthCache remembers successful device verifications for a short TTL.
// It is an optimization only and never a source of truth.
type AuthCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[authKey]Expiring[string] // -> resolved device id

	hits   uint64
	misses uint64
}

func NewAuthCache(ttl time.Duration, now func() time.Time) *AuthCache {
	if now == nil {
		now = time.Now
	}
	return &AuthCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[authKey]Expiring[string]),
	}
}

// Lookup returns the cached device id for the pair if the entry is still alive.
// Expired entries are evicted on access.
func (c *AuthCache) Lookup(deviceID, apiKey string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	k := authKey{deviceID, apiKey}
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		if id, alive := entry.Get(now); alive {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return id, true
		}
	}

	c.mu.Lock()
	// Re-check under the write lock; another handler may have refreshed it.
	if current, still := c.entries[k]; still && !current.Alive(now) {
		delete(c.entries, k)
	}
	c.misses++
	c.mu.Unlock()
	return "", false
}

// Store records a successful verification of the presented pair.
func (c *AuthCache) Store(deviceID, apiKey, resolvedID string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[authKey{deviceID, apiKey}] = NewExpiring(resolvedID, c.ttl, c.now())
}

// Forget drops every entry presented as, or resolved to, deviceID.
func (c *AuthCache) Forget(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if k.deviceID == deviceID || e.Value == deviceID {
			delete(c.entries, k)
		}
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (c *AuthCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !e.Alive(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats returns statistics about the current cache
func (c *AuthCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"entries": len(c.entries),
		"hits":    c.hits,
		"misses":  c.misses,
		"ttl":     c.ttl.String(),
	}
}
