package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(ttl time.Duration) (*ViewCache, *time.Time) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewViewCache(ttl, 15)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestViewCache_GetCreatesAndReuses(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	v1, fresh := c.Get("s1", ScopeHistory)
	require.NotNil(t, v1)
	assert.False(t, fresh)

	v2, _ := c.Get("s1", ScopeHistory)
	assert.Same(t, v1, v2)

	v3, _ := c.Get("s1", ScopeAdmin)
	assert.NotSame(t, v1, v3)
	assert.Equal(t, 2, c.Len())
}

func TestViewCache_FreshWithinTTL(t *testing.T) {
	c, now := newTestCache(time.Minute)

	v, _ := c.Get("s1", ScopeHistory)
	require.NoError(t, v.Refresh(context.Background(), loaderOf(fixture(), nil)))

	_, fresh := c.Get("s1", ScopeHistory)
	assert.True(t, fresh)

	*now = now.Add(61 * time.Second)
	_, fresh = c.Get("s1", ScopeHistory)
	assert.False(t, fresh)
}

func TestViewCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Get("s1", ScopeHistory)
	c.Get("s1", ScopeDashboard)
	c.Get("s2", ScopeHistory)

	c.Invalidate("s1")
	assert.Equal(t, 1, c.Len())

	c.Invalidate("missing")
	assert.Equal(t, 1, c.Len())
}

func TestViewCache_Expire(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	ctx := context.Background()

	history, _ := c.Get("s1", ScopeHistory)
	admin, _ := c.Get("s2", ScopeAdmin)
	require.NoError(t, history.Refresh(ctx, loaderOf(fixture(), nil)))
	require.NoError(t, admin.Refresh(ctx, loaderOf(fixture(), nil)))

	c.Expire(ScopeAdmin, ScopeDashboard)

	_, fresh := c.Get("s1", ScopeHistory)
	assert.True(t, fresh)
	_, fresh = c.Get("s2", ScopeAdmin)
	assert.False(t, fresh)
}

func TestViewCache_Cleanup(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Get("old", ScopeHistory)

	*now = now.Add(90 * time.Second)
	c.Get("recent", ScopeHistory)

	*now = now.Add(45 * time.Second)
	c.Cleanup()

	assert.Equal(t, 1, c.Len())
	_, fresh := c.Get("recent", ScopeHistory)
	assert.False(t, fresh)
	assert.Equal(t, 1, c.Len())
}

func TestViewCache_DefaultTTL(t *testing.T) {
	c := NewViewCache(0, 15)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestViewCache_StartCleanupRoutine(t *testing.T) {
	c := NewViewCache(time.Millisecond, 15)
	c.Get("s1", ScopeHistory)

	stop := c.StartCleanupRoutine(5 * time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	stop()
}
