package routing

import (
	"net/http"

	"cacviun/internal/bff"
	"cacviun/internal/handlers"
	"cacviun/internal/metrics"
	"cacviun/internal/middleware"
	"cacviun/internal/session"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers       *handlers.Handler
	Sessions       *session.Store
	Logger         zerolog.Logger
	SecureCookies  bool
	MetricsEnabled bool
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Rejects cross-origin browser requests on state-changing routes, on
	// top of the CSRF token check.
	cop := http.NewCrossOriginProtection()
	post := func(fn http.HandlerFunc) http.Handler { return cop.Handler(fn) }

	// Public pages and account flows
	mux.HandleFunc("GET /{$}", h.HandleLogin)
	mux.HandleFunc("GET /register", h.HandleRegister)
	mux.HandleFunc("GET /forgot-password", h.HandleForgot)
	mux.Handle("POST /auth/login", post(h.HandleLoginSubmit))
	mux.Handle("POST /logout", post(h.HandleLogout))
	mux.Handle("POST /auth/register/code", post(h.HandleRegisterCode))
	mux.Handle("POST /auth/register/verify", post(h.HandleRegisterVerify))
	mux.Handle("POST /auth/forgot/code", post(h.HandleForgotCode))
	mux.Handle("POST /auth/forgot/verify", post(h.HandleForgotVerify))

	// Signed-in pages. Validators see the map and statistics only.
	mux.HandleFunc("GET /map", h.RequireLoggedPage(h.HandleMap))
	mux.HandleFunc("GET /statistics", h.RequireLoggedPage(h.HandleStatistics))
	mux.HandleFunc("GET /history", h.RequireHistoryPage(h.HandleHistory))
	mux.Handle("POST /reports/{id}/edit", post(h.RequireHistoryPage(h.HandleReportEditSubmit)))
	mux.Handle("POST /reports/{id}/delete", post(h.RequireHistoryPage(h.HandleReportDeleteSubmit)))

	// Admin pages
	mux.HandleFunc("GET /admin/history", h.RequireAdminPage(h.HandleAdminHistory))
	mux.HandleFunc("GET /admin/define-admin", h.RequireAdminPage(h.HandleDefineAdmin))
	mux.Handle("POST /admin/define-admin", post(h.RequireAdminPage(h.HandleDefineAdminSubmit)))

	// JSON API (used by static/map.js and scripts)
	mux.HandleFunc("GET /api/me", h.HandleAPIMe)
	mux.HandleFunc("GET /api/map", h.RequireLoggedAPI(h.HandleAPIMap))
	mux.HandleFunc("GET /api/statistics", h.RequireLoggedAPI(h.HandleAPIStatistics))
	mux.HandleFunc("GET /api/history", h.RequireHistoryAPI(h.HandleAPIHistory))
	mux.Handle("PUT /api/reports/{id}", post(h.RequireHistoryAPI(h.HandleAPIReportUpdate)))
	mux.Handle("DELETE /api/reports/{id}", post(h.RequireHistoryAPI(h.HandleAPIReportDelete)))
	mux.HandleFunc("GET /api/admin/history", h.RequireAdminAPI(h.HandleAPIAdminHistory))
	mux.HandleFunc("GET /api/admin/audit", h.RequireAdminAPI(h.HandleAPIAudit))

	// Operational endpoints
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Static files (embedded)
	mux.Handle("GET /static/", http.StripPrefix("/static/", bff.StaticHandler()))

	// Catch-all 404 (must be last)
	mux.HandleFunc("/", h.HandleNotFound)

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. CSRF double-submit check on unsafe methods
	csrfConfig := middleware.DefaultCSRFConfig()
	csrfConfig.SecureCookie = cfg.SecureCookies
	handler = middleware.CSRFMiddleware(csrfConfig)(handler)

	// 3. Resolve the session cookie and tag the request log with the user
	handler = middleware.RecordUser(handler)
	handler = session.Middleware(cfg.Sessions, cfg.SecureCookies)(handler)

	// 4. Apply rate limiting
	rateLimitConfig := middleware.NewDefaultRateLimitConfig()
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 5. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 6. Apply logging middleware
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 7. Compress responses
	handler = gzhttp.GzipHandler(handler)

	// 8. Trace every request (outermost)
	handler = otelhttp.NewHandler(handler, "cacviun",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + metrics.NormalizePath(r.URL.Path)
		}),
	)

	return handler
}
