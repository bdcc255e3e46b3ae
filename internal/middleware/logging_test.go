package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cacviun/internal/models"
	"cacviun/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		email     string
		wantLevel string
	}{
		{"ok anonymous", http.StatusOK, "", "info"},
		{"client error", http.StatusUnprocessableEntity, "ana@unal.edu.co", "warn"},
		{"server error", http.StatusBadGateway, "ana@unal.edu.co", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})
			// Stand-in for the session middleware
			withSession := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := session.NewContext(r.Context(), "sid", models.Session{Email: tt.email, Role: models.RoleUser})
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			}
			h := LoggingMiddleware(logger)(withSession(RecordUser(inner)))

			req := httptest.NewRequest(http.MethodGet, "/history?category=Discrimination", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "/history", entry["path"])
			assert.Equal(t, "/history", entry["route"])
			assert.Equal(t, "category=Discrimination", entry["query"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, "203.0.113.7", entry["client_ip"])
			assert.Equal(t, float64(4), entry["bytes_written"])
			if tt.email == "" {
				assert.NotContains(t, entry, "user_email")
			} else {
				assert.Equal(t, tt.email, entry["user_email"])
				assert.Equal(t, "User", entry["user_role"])
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, int64(1), rw.bytesWritten)
	assert.Same(t, rec, rw.Unwrap())
}
