package session

import (
	"context"
	"net/http"

	"cacviun/internal/models"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the opaque session id.
const CookieName = "session_id"

type contextKey string

const (
	sidKey     contextKey = "sid"
	sessionKey contextKey = "session"
)

// NewContext returns a context carrying sid and its session.
func NewContext(ctx context.Context, sid string, s models.Session) context.Context {
	ctx = context.WithValue(ctx, sidKey, sid)
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) models.Session {
	s, _ := ctx.Value(sessionKey).(models.Session)
	return s
}

// IDFromContext returns the session id attached by the middleware.
func IDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey).(string)
	return sid
}

// Middleware resolves the session cookie, minting a new id when absent, and
// attaches the session to the request context.
func Middleware(store *Store, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(CookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					sid = c.Value
				}
			}
			if sid == "" {
				sid = Rotate(w, secureCookies)
			}

			sess := store.Get(r.Context(), sid)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sid, sess)))
		})
	}
}

// Rotate mints a new session id and sets it as the session cookie.
func Rotate(w http.ResponseWriter, secureCookies bool) string {
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   30 * 86400,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}
