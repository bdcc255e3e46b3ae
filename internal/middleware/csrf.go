package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// CSRFTokenCookieName holds the double-submit token.
	CSRFTokenCookieName = "csrf_token"
	// CSRFTokenHeaderName carries the token on fetch calls from page scripts.
	CSRFTokenHeaderName = "X-CSRF-Token"
	// CSRFTokenFormField carries the token on form posts.
	CSRFTokenFormField = "csrf_token"
	// CSRFTokenLength is the number of random bytes in a token.
	CSRFTokenLength = 32

	csrfTokenKey contextKey = "csrf_token"
)

// CSRF rejection reasons, also used as the response message.
const (
	csrfMissing = "CSRF token missing"
	csrfInvalid = "CSRF token invalid"
)

// CSRFConfig holds CSRF middleware configuration
type CSRFConfig struct {
	SecureCookie bool

	// ExemptPaths skip validation (exact match or prefix)
	ExemptPaths []string

	// ExemptMethods skip validation. Default: GET, HEAD, OPTIONS, TRACE
	ExemptMethods []string

	// MaxAge of the token cookie in seconds.
	MaxAge int
}

// DefaultCSRFConfig returns default configuration
func DefaultCSRFConfig() *CSRFConfig {
	return &CSRFConfig{
		ExemptMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace},
		MaxAge:        86400,
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (c *CSRFConfig) exempt(r *http.Request, methods map[string]bool) bool {
	if methods[r.Method] {
		return true
	}
	for _, path := range c.ExemptPaths {
		if r.URL.Path == path || strings.HasPrefix(r.URL.Path, path) {
			return true
		}
	}
	return false
}

// ensureToken returns the request's token, minting and setting a cookie when
// the browser has none yet.
func (c *CSRFConfig) ensureToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CSRFTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFTokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by page scripts for fetch calls
		Secure:   c.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   c.MaxAge,
	})
	return token, nil
}

// submittedToken reads the header first, then the form field.
func submittedToken(r *http.Request) string {
	if t := r.Header.Get(CSRFTokenHeaderName); t != "" {
		return t
	}
	return r.FormValue(CSRFTokenFormField)
}

// rejectCSRF answers 403. JSON endpoints get the same envelope as every
// other API failure so page scripts can show the message.
func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	log.Warn().
		Str("client_ip", GetClientIP(r)).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(reason)

	if !strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, reason, http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{false, "The form expired. Reload the page and try again."})
}

// CSRFMiddleware provides CSRF protection using the double-submit cookie
// pattern. Forms send the token in the csrf_token field, scripts in
// X-CSRF-Token.
func CSRFMiddleware(config *CSRFConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCSRFConfig()
	}

	methods := make(map[string]bool)
	for _, m := range config.ExemptMethods {
		methods[strings.ToUpper(m)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := config.ensureToken(w, r)
			if err != nil {
				log.Error().Err(err).Msg("Failed to generate CSRF token")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			w.Header().Set(CSRFTokenHeaderName, token)
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey, token))

			if config.exempt(r, methods) {
				next.ServeHTTP(w, r)
				return
			}

			switch submitted := submittedToken(r); {
			case submitted == "":
				rejectCSRF(w, r, csrfMissing)
			case subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) != 1:
				rejectCSRF(w, r, csrfInvalid)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// GetCSRFToken returns the token of the request, preferring the one the
// middleware attached (which exists even before the cookie round-trips).
func GetCSRFToken(r *http.Request) string {
	if token, ok := r.Context().Value(csrfTokenKey).(string); ok {
		return token
	}
	cookie, err := r.Cookie(CSRFTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
