package agents

import (
	"sync"
	"time"
)

// DefaultHealthCacheTTL is the default TTL for provider health checks
const DefaultHealthCacheTTL = 30 * time.Second

// ProviderHealth is the last observed state of an upstream provider
type ProviderHealth struct {
	Available bool      `json:"available"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthCache remembers the result of a provider probe for a TTL.
// A TTL of 0 disables caching.
type HealthCache struct {
	mu      sync.RWMutex
	last    ProviderHealth
	checked bool
	ttl     time.Duration
	now     func() time.Time
}

// NewHealthCache creates a new HealthCache with the specified TTL
func NewHealthCache(ttl time.Duration) *HealthCache {
	return &HealthCache{ttl: ttl, now: time.Now}
}

func (c *HealthCache) validLocked() bool {
	return c.checked && c.now().Sub(c.last.CheckedAt) < c.ttl
}

// IsValid returns true if the cached result is still within TTL
func (c *HealthCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

// Get returns the cached availability and whether the cache is valid
func (c *HealthCache) Get() (available bool, valid bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last.Available, c.validLocked()
}

// Set records an availability result without an error message
func (c *HealthCache) Set(available bool) {
	c.store(ProviderHealth{Available: available})
}

// SetResult records the outcome of a probe. A nil error means available.
func (c *HealthCache) SetResult(err error) {
	h := ProviderHealth{Available: err == nil}
	if err != nil {
		h.Error = err.Error()
	}
	c.store(h)
}

func (c *HealthCache) store(h ProviderHealth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h.CheckedAt = c.now()
	c.last = h
	c.checked = true
}

// Snapshot returns the last recorded result, valid or not
func (c *HealthCache) Snapshot() ProviderHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Invalidate clears the cache, forcing the next check to make a live call
func (c *HealthCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = false
}

// TTL returns the cache's time-to-live duration
func (c *HealthCache) TTL() time.Duration {
	return c.ttl
}
