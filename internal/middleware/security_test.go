package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	var nonce string
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = CSPNonceFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map", nil))

	require.NotEmpty(t, nonce)
	hdr := rec.Header()
	assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", hdr.Get("Referrer-Policy"))

	csp := hdr.Get("Content-Security-Policy")
	assert.Contains(t, csp, "'nonce-"+nonce+"'")
	assert.Contains(t, csp, "img-src 'self' data: https://*.tile.openstreetmap.org", "map tiles load")
	assert.Contains(t, csp, "https://unpkg.com", "leaflet loads")
	assert.Contains(t, csp, "form-action 'self'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
}

func TestSecurityHeaders_NoncePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[CSPNonceFromContext(r.Context())] = true
	}))
	for range 20 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Len(t, seen, 20)
}

func TestCSPNonceFromContext_Missing(t *testing.T) {
	assert.Empty(t, CSPNonceFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

// fakeClock is advanced by hand in tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(rate int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(rate, window)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Window(t *testing.T) {
	rl, clock := newTestLimiter(3, time.Minute)

	for i := range 3 {
		assert.True(t, rl.Allow("198.51.100.1"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("198.51.100.1"))
	assert.True(t, rl.Allow("198.51.100.2"), "keys are independent")

	clock.t = clock.t.Add(59 * time.Second)
	assert.False(t, rl.Allow("198.51.100.1"), "window not over yet")

	clock.t = clock.t.Add(time.Second)
	assert.True(t, rl.Allow("198.51.100.1"), "a new window starts")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(5, time.Minute)
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.Len())

	clock.t = clock.t.Add(3 * time.Minute)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Len(), "idle keys are dropped")
}

func TestRateLimitMiddleware_PicksLimiterByPath(t *testing.T) {
	config := &RateLimitConfig{
		AuthLimiter:   NewRateLimiter(1, time.Minute),
		APILimiter:    NewRateLimiter(2, time.Minute),
		GlobalLimiter: NewRateLimiter(3, time.Minute),
	}
	h := RateLimitMiddleware(config)(okHandler())

	hit := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		name   string
		method string
		path   string
		limit  int
	}{
		{"sign in", http.MethodPost, "/auth/login", 1},
		{"verification codes share the auth budget", http.MethodPost, "/auth/register/code", 0},
		{"json api", http.MethodGet, "/api/history", 2},
		{"pages", http.MethodGet, "/statistics", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range tt.limit {
				assert.Equal(t, http.StatusOK, hit(tt.method, tt.path), "request %d", i+1)
			}
			assert.Equal(t, http.StatusTooManyRequests, hit(tt.method, tt.path))
		})
	}
}

func TestRateLimitMiddleware_RetryAfter(t *testing.T) {
	config := &RateLimitConfig{
		AuthLimiter:   NewRateLimiter(1, 30*time.Second),
		APILimiter:    NewRateLimiter(10, time.Minute),
		GlobalLimiter: NewRateLimiter(10, time.Minute),
	}
	h := RateLimitMiddleware(config)(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/forgot/code", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/forgot/code", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_ForwardedClients(t *testing.T) {
	config := &RateLimitConfig{
		AuthLimiter:   NewRateLimiter(1, time.Minute),
		APILimiter:    NewRateLimiter(1, time.Minute),
		GlobalLimiter: NewRateLimiter(1, time.Minute),
	}
	h := RateLimitMiddleware(config)(okHandler())

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/map", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "clients behind the same proxy are counted apart")
	}
}

func TestLimitBodyMiddleware(t *testing.T) {
	var readErr error
	h := LimitBodyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	small := `{"category":"Discrimination","description":"Comments about my origin"}`
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/reports/r1", strings.NewReader(small)))
	assert.NoError(t, readErr)

	big := strings.Repeat("x", MaxBodySize+1)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/reports/r1", strings.NewReader(big)))
	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"remote addr without port", "192.0.2.1", nil, "192.0.2.1"},
		{"forwarded chain", "10.0.0.1:80", map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.2"}, "203.0.113.9"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.5"}, "203.0.113.5"},
		{"forwarded wins over real ip", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "203.0.113.5"}, "203.0.113.9"},
		{"garbage forwarded value", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "unknown"}, "10.0.0.1"},
		{"ipv6", "[2001:db8::1]:443", nil, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}
