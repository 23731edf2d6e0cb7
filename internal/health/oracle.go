// Package health probes the engine's three external dependencies (the
// model server, the market-data vendor, and the store) and folds the
// results into one status record. Probes run concurrently and the check
// itself never fails; an unreachable dependency is a finding, not an
// error.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/metrics"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// canaryPeriod keeps the vendor probe to a single-row fetch.
const canaryPeriod = "1d"

// defaultCanary is probed when no canary symbol is configured. SPY
// trades every market day, so an empty answer means vendor trouble.
const defaultCanary = "SPY"

// Pinger is the slice of the store the oracle needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Oracle runs the dependency probes. The vendor probe goes straight to
// the vendor seam, bypassing the cache, so a warm cache cannot mask an
// outage.
type Oracle struct {
	chat   ports.ChatClient
	vendor ports.VendorAPI
	store  Pinger
	cfg    config.HealthConfig
	logger zerolog.Logger
}

var _ ports.HealthChecker = (*Oracle)(nil)

// New wires the oracle over the live dependencies.
func New(chat ports.ChatClient, vendor ports.VendorAPI, store Pinger, cfg config.HealthConfig) *Oracle {
	return &Oracle{
		chat:   chat,
		vendor: vendor,
		store:  store,
		cfg:    cfg,
		logger: config.NewLogger("health"),
	}
}

// Check probes all dependencies concurrently and reports what it found.
// Each probe runs under its own timeout; a hung dependency costs at
// most its budget, never the whole check.
func (o *Oracle) Check(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{LastCheck: time.Now().UTC()}

	var g errgroup.Group
	g.Go(func() error {
		status.LLMAvailable, status.LLMModels = o.probeLLM(ctx)
		metrics.SetHealthProbe(metrics.ProbeLLM, status.LLMAvailable)
		return nil
	})
	g.Go(func() error {
		status.VendorAvailable = o.probeVendor(ctx)
		metrics.SetHealthProbe(metrics.ProbeVendor, status.VendorAvailable)
		return nil
	})
	g.Go(func() error {
		status.PersistenceAvailable = o.probeStore(ctx)
		metrics.SetHealthProbe(metrics.ProbeStore, status.PersistenceAvailable)
		return nil
	})
	_ = g.Wait()

	o.logger.Info().
		Bool("llm", status.LLMAvailable).
		Bool("vendor", status.VendorAvailable).
		Bool("store", status.PersistenceAvailable).
		Msg("Health check complete")
	return status
}

// probeLLM lists the served models and confirms the configured one is
// among them. The model list comes back even when the configured model
// is missing, so operators can see what to switch to.
func (o *Oracle) probeLLM(ctx context.Context) (bool, []string) {
	ctx, cancel := context.WithTimeout(ctx, o.budget(o.cfg.LLMTimeoutSeconds, 5))
	defer cancel()

	models, err := o.chat.ListModels(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("LLM probe failed")
		return false, nil
	}
	if err := o.chat.ValidateModel(ctx); err != nil {
		o.logger.Warn().Err(err).Strs("served", models).Msg("LLM reachable but configured model missing")
		return false, models
	}
	return true, models
}

// probeVendor fetches one day of canary history. An empty answer counts
// as down; the canary always has bars.
func (o *Oracle) probeVendor(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.budget(o.cfg.VendorTimeoutSeconds, 10))
	defer cancel()

	symbol := o.cfg.CanarySymbol
	if symbol == "" {
		symbol = defaultCanary
	}
	rows, err := o.vendor.History(ctx, symbol, canaryPeriod)
	if err != nil {
		o.logger.Warn().Err(err).Str("canary", symbol).Msg("Vendor probe failed")
		return false
	}
	if len(rows) == 0 {
		o.logger.Warn().Str("canary", symbol).Msg("Vendor probe returned no bars")
		return false
	}
	return true
}

func (o *Oracle) probeStore(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.budget(o.cfg.StoreTimeoutSeconds, 5))
	defer cancel()

	if err := o.store.Ping(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("Store probe failed")
		return false
	}
	return true
}

func (o *Oracle) budget(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
