package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cacviun/internal/backend"
	"cacviun/internal/config"
	"cacviun/internal/database/boltstore"
	"cacviun/internal/database/sqlitestore"
	"cacviun/internal/handlers"
	"cacviun/internal/metrics"
	"cacviun/internal/models"
	"cacviun/internal/reports"
	"cacviun/internal/routing"
	"cacviun/internal/session"
	"cacviun/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sessionPruner removes expired persisted sessions and reports their ids.
type sessionPruner interface {
	Prune(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// pruneSessions drops expired slots from disk and then from memory, so an
// expired session id reads back as signed out without a restart.
func pruneSessions(ctx context.Context, p sessionPruner, sessions *session.Store, views *reports.ViewCache, maxAge time.Duration) {
	sids, err := p.Prune(ctx, maxAge)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune sessions")
		return
	}
	for _, sid := range sids {
		sessions.Forget(sid)
		views.Invalidate(sid)
	}
	if len(sids) > 0 {
		log.Info().Int("removed", len(sids)).Msg("Pruned stale sessions")
	}
}

// sessionMaxAge bounds how long an untouched persisted session survives.
const sessionMaxAge = 30 * 24 * time.Hour

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	log.Info().Msg("Starting CACVi-UN")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	if tp != nil {
		log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Tracing enabled")
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// Persistent sessions
	store, err := boltstore.Open(boltstore.Options{Path: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()
	log.Info().Str("path", cfg.DBPath).Msg("Database opened")
	sessionStore := store.SessionStore()

	// Audit log. The server runs without one if the file cannot be opened.
	var audit handlers.AuditLog
	auditStore, err := sqlitestore.Open(cfg.AuditDBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.AuditDBPath).Msg("Audit log disabled")
	} else {
		defer auditStore.Close()
		audit = auditStore
		log.Info().Str("path", cfg.AuditDBPath).Msg("Audit log opened")
	}

	sessions := session.NewStore(sessionStore)
	flows := session.NewFlowStore(session.FlowTTL)

	views := reports.NewViewCache(cfg.ViewCacheTTL, cfg.PageSize)
	stopViewCleanup := views.StartCleanupRoutine(10 * time.Minute)
	defer stopViewCleanup()

	// A session change makes every view derived from it stale.
	sessions.Subscribe(func(sid string, s models.Session) {
		views.Invalidate(sid)
		kind := "login"
		if s.IsZero() {
			kind = "logout"
			flows.Finish(sid)
		}
		metrics.SessionChangesTotal.WithLabelValues(kind).Inc()
	})

	go runEvery(ctx, time.Minute, flows.Cleanup)
	go runEvery(ctx, time.Hour, func() {
		pruneSessions(ctx, sessionStore, sessions, views, sessionMaxAge)
	})

	if cfg.MetricsEnabled {
		metrics.StartCollector(ctx, metrics.StatsSource{
			SessionCount: func() int {
				n, err := sessionStore.Count(ctx)
				if err != nil {
					return -1
				}
				return n
			},
			ViewCount: views.Len,
			AuditCount: func() int {
				if auditStore == nil {
					return -1
				}
				n, err := auditStore.Count(ctx)
				if err != nil {
					return -1
				}
				return n
			},
		}, 30*time.Second)
	}

	client := backend.NewClient(cfg.BackendURL, backend.WithTimeout(cfg.BackendTimeout))
	log.Info().Str("url", cfg.BackendURL).Msg("Backend client initialized")

	h := handlers.NewHandler(client, sessions, flows, views, audit, handlers.Config{
		SecureCookies: cfg.SecureCookies,
		EmailDomain:   cfg.EmailDomain,
		TopN:          cfg.TopN,
	})

	handler := routing.SetupRouter(routing.Config{
		Handlers:       h,
		Sessions:       sessions,
		Logger:         log.Logger,
		SecureCookies:  cfg.SecureCookies,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", cfg.Addr()).
			Str("url", "http://localhost:"+cfg.Port).
			Str("public_url", cfg.PublicURL).
			Bool("secure_cookies", cfg.SecureCookies).
			Str("backend", cfg.BackendURL).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// setupLogging configures the global zerolog logger. Unknown levels fall back
// to info; any format other than "json" gets the console writer.
func setupLogging(level, format string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

// runEvery calls fn on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
