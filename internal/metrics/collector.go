package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Each function returns the current count; returning -1 indicates the source is unavailable.
type StatsSource struct {
	SessionCount func() int
	ViewCount    func() int
	AuditCount   func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	setIfAvailable(ActiveSessions.Set, src.SessionCount)
	setIfAvailable(CachedViews.Set, src.ViewCount)
	setIfAvailable(AuditEntriesTotal.Set, src.AuditCount)
}

func setIfAvailable(set func(float64), count func() int) {
	if count == nil {
		return
	}
	if n := count(); n >= 0 {
		set(float64(n))
	}
}
