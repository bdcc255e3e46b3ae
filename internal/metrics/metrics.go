package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cacviun_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Backend metrics
var (
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_backend_requests_total",
		Help: "Total number of backend requests by operation and outcome",
	}, []string{"op", "outcome"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cacviun_backend_request_duration_seconds",
		Help:    "Backend request duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})
)

// View cache metrics
var (
	ViewCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cacviun_view_cache_hits_total",
		Help: "Total number of report view cache hits",
	})

	ViewCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cacviun_view_cache_misses_total",
		Help: "Total number of report view cache misses",
	})

	SupersededFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cacviun_superseded_fetches_total",
		Help: "Total number of fetch results discarded because a newer request was issued",
	})
)

// Gauges updated periodically by the collector
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cacviun_active_sessions",
		Help: "Number of persisted browser sessions",
	})

	CachedViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cacviun_cached_views",
		Help: "Number of report views held in memory",
	})

	AuditEntriesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cacviun_audit_entries_total",
		Help: "Number of report mutations recorded in the audit log",
	})
)

// Event counters (incremented on occurrence)
var (
	AuthLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_auth_logins_total",
		Help: "Total number of login attempts",
	}, []string{"status"})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_registrations_total",
		Help: "Total number of account registration steps",
	}, []string{"step", "status"})

	PasswordResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_password_resets_total",
		Help: "Total number of password reset steps",
	}, []string{"step", "status"})

	ReportMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_report_mutations_total",
		Help: "Total number of report edit/delete operations",
	}, []string{"action", "outcome"})

	SessionChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacviun_session_changes_total",
		Help: "Total number of session replacements",
	}, []string{"kind"})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	if len(path) > 8 && path[:8] == "/static/" {
		return "/static/*"
	}

	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	switch segments[0] {
	case "reports":
		// /reports/{id}/edit, /reports/{id}/delete
		if len(segments) == 3 {
			return "/reports/:id/" + segments[2]
		}
		if len(segments) == 2 {
			return "/reports/:id"
		}
	case "api":
		if len(segments) == 3 && segments[1] == "reports" {
			return "/api/reports/:id"
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
