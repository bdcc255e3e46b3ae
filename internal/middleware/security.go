package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	cspNonceKey    contextKey = "csp_nonce"
	requestUserKey contextKey = "request_user"
)

func withRequestUser(ctx context.Context, u *requestUser) context.Context {
	return context.WithValue(ctx, requestUserKey, u)
}

func requestUserFrom(ctx context.Context) *requestUser {
	u, _ := ctx.Value(requestUserKey).(*requestUser)
	return u
}

// generateNonce returns a base64 encoded 16 byte random value.
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSPNonceFromContext returns the nonce for inline scripts of this request.
func CSPNonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(cspNonceKey).(string)
	return nonce
}

// Map tiles and the Leaflet bundle come from these origins.
const (
	tileOrigin    = "https://*.tile.openstreetmap.org"
	leafletOrigin = "https://unpkg.com"
)

// SecurityHeadersMiddleware sets the standard security headers and a
// per-request Content-Security-Policy nonce.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := generateNonce()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSP nonce")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Content-Security-Policy", strings.Join([]string{
			"default-src 'self'",
			"script-src 'self' 'unsafe-eval' 'nonce-" + nonce + "' " + leafletOrigin,
			"style-src 'self' 'unsafe-inline' " + leafletOrigin,
			"img-src 'self' data: " + tileOrigin + " " + leafletOrigin,
			"connect-src 'self'",
			"form-action 'self'",
			"base-uri 'self'",
			"frame-ancestors 'none'",
		}, "; "))

		ctx := context.WithValue(r.Context(), cspNonceKey, nonce)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type visitor struct {
	count       int
	windowStart time.Time
}

// RateLimiter is a fixed-window request counter per client key.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	rate        int
	window      time.Duration
	cleanup     time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// NewRateLimiter allows rate requests per window for each key.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		cleanup:  2 * window,
		now:      time.Now,
	}
}

// Len returns the number of keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Allow records a request for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.cleanup {
		for k, v := range rl.visitors {
			if now.Sub(v.windowStart) > rl.cleanup {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	v, ok := rl.visitors[key]
	if !ok || now.Sub(v.windowStart) >= rl.window {
		rl.visitors[key] = &visitor{count: 1, windowStart: now}
		return true
	}
	if v.count >= rl.rate {
		return false
	}
	v.count++
	return true
}

// RateLimitConfig selects a limiter by request path.
type RateLimitConfig struct {
	AuthLimiter   *RateLimiter
	APILimiter    *RateLimiter
	GlobalLimiter *RateLimiter
}

// NewDefaultRateLimitConfig is strict on sign-in and code endpoints, which
// trigger backend mail and password checks.
func NewDefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		AuthLimiter:   NewRateLimiter(10, time.Minute),
		APILimiter:    NewRateLimiter(120, time.Minute),
		GlobalLimiter: NewRateLimiter(300, time.Minute),
	}
}

// isAuthPath matches the sign-in, registration and password reset actions.
func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}

// RateLimitMiddleware rejects clients over their limit with 429.
func RateLimitMiddleware(config *RateLimitConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = NewDefaultRateLimitConfig()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := config.GlobalLimiter
			switch {
			case isAuthPath(r.URL.Path):
				limiter = config.AuthLimiter
			case strings.HasPrefix(r.URL.Path, "/api/"):
				limiter = config.APILimiter
			}

			ip := GetClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn().
					Str("client_ip", ip).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize bounds request bodies. Forms and JSON here are a few fields.
const MaxBodySize = 1 << 20

// LimitBodyMiddleware caps the request body at MaxBodySize.
func LimitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
