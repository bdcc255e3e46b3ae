package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cacviun/internal/metrics"
	"cacviun/internal/models"
	"cacviun/internal/session"

	"github.com/rs/zerolog"
)

// GetClientIP returns the address the request came from. The first entry of
// X-Forwarded-For wins, then X-Real-IP, then RemoteAddr. Forwarded values
// that do not parse as an IP are ignored.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestUser is filled in by RecordUser, which runs inside the session
// middleware, and read back by LoggingMiddleware once the request is done.
type requestUser struct {
	email string
	role  models.Role
}

func levelFor(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

// LoggingMiddleware writes one structured line per request and records the
// HTTP metrics under the normalized route.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			user := &requestUser{}
			r = r.WithContext(withRequestUser(r.Context(), user))

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := metrics.NormalizePath(r.URL.Path)

			ev := levelFor(logger, rw.statusCode).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Str("client_ip", GetClientIP(r)).
				Str("user_agent", r.UserAgent()).
				Int64("bytes_written", rw.bytesWritten)

			if referer := r.Referer(); referer != "" {
				ev.Str("referer", referer)
			}
			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				ev.Str("request_id", reqID)
			}
			if user.email != "" {
				ev.Str("user_email", user.email).Str("user_role", user.role.Label())
			}
			ev.Msg("HTTP request")

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		})
	}
}

// RecordUser passes the resolved session up to LoggingMiddleware.
func RecordUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := requestUserFrom(r.Context()); user != nil {
			s := session.FromContext(r.Context())
			user.email, user.role = s.Email, s.Role
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
