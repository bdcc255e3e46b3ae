package reports

import (
	"strings"
	"sync"
	"time"

	"cacviun/internal/metrics"
)

// DefaultCacheTTL is how long a fetched collection is served without a refetch.
const DefaultCacheTTL = 5 * time.Minute

// Scopes of cached views
const (
	ScopeHistory   = "history"
	ScopeAdmin     = "admin"
	ScopeDashboard = "dashboard"
)

type cachedView struct {
	view    *View
	touched time.Time
}

// ViewCache holds one View per (session, scope).
type ViewCache struct {
	mu       sync.RWMutex
	views    map[string]*cachedView
	ttl      time.Duration
	pageSize int
	now      func() time.Time
}

// NewViewCache creates a cache whose views page by pageSize.
func NewViewCache(ttl time.Duration, pageSize int) *ViewCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ViewCache{
		views:    make(map[string]*cachedView),
		ttl:      ttl,
		pageSize: pageSize,
		now:      time.Now,
	}
}

func cacheKey(sid, scope string) string {
	return sid + "|" + scope
}

// Get returns the view for (sid, scope), creating it when missing. fresh is
// true when the view holds data fetched within the TTL and not marked stale.
func (c *ViewCache) Get(sid, scope string) (v *View, fresh bool) {
	key := cacheKey(sid, scope)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.views[key]
	if !ok {
		view := NewView(c.pageSize)
		view.now = c.now
		entry = &cachedView{view: view}
		c.views[key] = entry
	}
	entry.touched = now
	c.mu.Unlock()

	fresh = entry.view.fresh(c.ttl)
	if fresh {
		metrics.ViewCacheHitsTotal.Inc()
	} else {
		metrics.ViewCacheMissesTotal.Inc()
	}
	return entry.view, fresh
}

// Invalidate drops every view of a session.
func (c *ViewCache) Invalidate(sid string) {
	prefix := sid + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.views {
		if strings.HasPrefix(key, prefix) {
			delete(c.views, key)
		}
	}
}

// Expire marks every view of a scope stale so the next Get refetches.
func (c *ViewCache) Expire(scopes ...string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, entry := range c.views {
		for _, scope := range scopes {
			if strings.HasSuffix(key, "|"+scope) {
				entry.view.MarkStale()
			}
		}
	}
}

// Len returns the number of cached views.
func (c *ViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.views)
}

// Cleanup removes views not requested for twice the TTL (call periodically)
func (c *ViewCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.views {
		if now.Sub(entry.touched) > c.ttl*2 {
			delete(c.views, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every interval until the returned stop
// function is called.
func (c *ViewCache) StartCleanupRoutine(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
