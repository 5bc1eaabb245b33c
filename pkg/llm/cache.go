package llm

import (
	"sync"
	"time"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// routeCache caches per-tenant capability routing with a short TTL. It is
// read-mostly: many concurrent runs read the same tenant's routes, while
// writes happen only on cache miss or explicit invalidation after a config
// update. The clock is injected so tests can drive expiry.
type routeCache struct {
	mu      sync.RWMutex
	entries map[string]routeCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type routeCacheEntry struct {
	routes map[llmtypes.Capability]llmtypes.ProviderModel
	expiry time.Time
}

func newRouteCache(ttl time.Duration, now func() time.Time) *routeCache {
	return &routeCache{
		entries: make(map[string]routeCacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *routeCache) get(tenantID string) (map[llmtypes.Capability]llmtypes.ProviderModel, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiry) {
		return nil, false
	}
	return entry.routes, true
}

func (c *routeCache) set(tenantID string, routes map[llmtypes.Capability]llmtypes.ProviderModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = routeCacheEntry{
		routes: routes,
		expiry: c.now().Add(c.ttl),
	}
}

func (c *routeCache) invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}
