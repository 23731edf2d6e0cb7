package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// UniverseReader is the slice of the repository the updater needs.
type UniverseReader interface {
	GetUniverse(ctx context.Context, status domain.TickerStatus) ([]domain.TickerInfo, error)
}

// Updater periodically refreshes gauges that mirror persistent state,
// so scrapes stay truthful across restarts and between scans.
type Updater struct {
	universe UniverseReader
	pool     *sql.DB
	interval time.Duration
	stopCh   chan struct{}
	log      zerolog.Logger
}

// NewUpdater creates a gauge refresher over the universe repository and
// the store's connection pool.
func NewUpdater(universe UniverseReader, pool *sql.DB, interval time.Duration, log zerolog.Logger) *Updater {
	return &Updater{
		universe: universe,
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      log.With().Str("component", "metrics_updater").Logger(),
	}
}

// Start begins the refresh loop. Blocks until Stop or ctx cancellation.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			u.log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			u.log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop ends the refresh loop.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	for _, status := range []domain.TickerStatus{domain.StatusActive, domain.StatusInactive} {
		tickers, err := u.universe.GetUniverse(ctx, status)
		if err != nil {
			u.log.Warn().Err(err).Str("status", string(status)).Msg("Universe gauge refresh failed")
			continue
		}
		SetUniverseSize(string(status), len(tickers))
	}

	if u.pool != nil {
		stats := u.pool.Stats()
		StoreConnectionsActive.Set(float64(stats.InUse))
		StoreConnectionsIdle.Set(float64(stats.Idle))
	}
}
