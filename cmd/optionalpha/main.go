// Command optionalpha drives the screening engine from the command
// line: one-shot scans and per-ticker debates, universe maintenance,
// a health check, and a resident mode that keeps the ops endpoints up.
// Report rendering and the HTTP API live outside this repository; this
// binary only wires the engine and logs what it does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/debate"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/health"
	"github.com/optionalpha/optionalpha/internal/llm"
	"github.com/optionalpha/optionalpha/internal/marketdata"
	"github.com/optionalpha/optionalpha/internal/metrics"
	"github.com/optionalpha/optionalpha/internal/optionsdata"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/profile"
	"github.com/optionalpha/optionalpha/internal/ratelimit"
	"github.com/optionalpha/optionalpha/internal/scan"
	"github.com/optionalpha/optionalpha/internal/store"
	"github.com/optionalpha/optionalpha/internal/universe"
	"github.com/optionalpha/optionalpha/internal/yfinance"
)

// gaugeRefreshInterval paces the metrics updater between scans.
const gaugeRefreshInterval = time.Minute

func main() {
	command := flag.String("command", "scan", "Command to run: scan, debate, refresh, stats, health, or serve")
	configPath := flag.String("config", "", "Config file path (default: optionalpha.yaml under ./configs or .)")
	profileName := flag.String("profile", "", "Scan profile: an embedded default or a file under scan.profile_dir")
	preset := flag.String("preset", "", "Universe preset override: full, sp500, midcap, smallcap, etfs")
	sectors := flag.String("sectors", "", "Comma-separated GICS sector filter")
	topN := flag.Int("top", 0, "Override for how many leaders get contract selection")
	minScore := flag.Float64("min-score", 0, "Composite score floor override")
	ticker := flag.String("ticker", "", "Symbol to debate (debate command)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.GetVersion())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	// A profile overlays the config, so it must resolve before any
	// service captures the config pointer.
	var prof *profile.Profile
	if *profileName != "" {
		p, err := profile.Resolve(*profileName, cfg.Scan.ProfileDir)
		if err != nil {
			log.Fatal().Err(err).Str("profile", *profileName).Msg("Failed to resolve scan profile")
		}
		cfg = p.Apply(cfg)
		prof = &p
		log.Info().Str("profile", p.Name).Str("preset", cfg.Scan.DefaultPreset).Msg("Scan profile applied")
	}

	eng, err := newEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	eng.startOps(ctx)

	var runErr error
	switch *command {
	case "scan":
		runErr = runScan(ctx, eng, buildRequest(prof, *preset, *sectors, *topN, *minScore))
	case "debate":
		runErr = runDebate(ctx, eng, *ticker)
	case "refresh":
		runErr = runRefresh(ctx, eng)
	case "stats":
		runErr = runStats(ctx, eng)
	case "health":
		runErr = runHealth(ctx, eng)
	case "serve":
		runErr = runServe(ctx, eng)
	default:
		runErr = fmt.Errorf("unknown command %q: expected scan, debate, refresh, stats, health, or serve", *command)
	}

	eng.stopOps()
	eng.close()

	if runErr != nil {
		log.Error().Err(runErr).Str("command", *command).Msg("Command failed")
		os.Exit(1)
	}
}

// engine bundles the wired services the commands draw on.
type engine struct {
	cfg      *config.Config
	store    *store.Store
	kv       cache.KV
	limiter  *ratelimit.Limiter
	universe *universe.Service
	manager  *scan.Manager
	analyst  *scan.Analyst
	oracle   *health.Oracle
	ops      *metrics.Server
	updater  *metrics.Updater
}

// newEngine opens the store and wires every service against it. On
// failure nothing is left open.
func newEngine(cfg *config.Config) (*engine, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	kv, err := openCacheKV(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	dataCache := cache.New(kv)

	limiter := ratelimit.New(cfg.RateLimit)
	vendor := yfinance.NewClient(cfg.MarketData, config.NewLogger("yfinance"))

	market := marketdata.NewService(vendor, limiter, dataCache, cfg, yfinance.Source)
	options := optionsdata.NewService(vendor, limiter, dataCache, cfg, yfinance.Source)
	uni := universe.NewService(st, universe.NewListingClient(cfg.Universe), universe.NewSP500Client(cfg.Universe), dataCache, cfg.Universe)

	agent := llm.NewAgent(llm.NewClient(cfg.LLM))
	orchestrator := debate.NewOrchestrator(agent, st, cfg)
	pipeline := scan.NewPipeline(uni, market, options, st, cfg)

	eng := &engine{
		cfg:      cfg,
		store:    st,
		kv:       kv,
		limiter:  limiter,
		universe: uni,
		manager:  scan.NewManager(pipeline),
		analyst:  scan.NewAnalyst(market, options, dataCache, orchestrator, cfg),
		oracle:   health.New(agent, vendor, st, cfg.Health),
	}
	if cfg.Metrics.Enabled {
		eng.ops = metrics.NewServer(cfg.Metrics.Port, eng.oracle.Check, log.Logger)
		eng.updater = metrics.NewUpdater(st, st.Conn(), gaugeRefreshInterval, log.Logger)
	}
	return eng, nil
}

// openCacheKV picks the persistent cache tier. Memory mode returns a
// nil KV, which the cache treats as memory-only.
func openCacheKV(cfg *config.Config, st *store.Store) (cache.KV, error) {
	switch cfg.Cache.Backend {
	case "redis":
		kv, err := cache.NewRedisKV(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return kv, nil
	case "sqlite":
		return store.NewCacheKV(st), nil
	default:
		return nil, nil
	}
}

func (e *engine) startOps(ctx context.Context) {
	if e.ops == nil {
		return
	}
	if err := e.ops.Start(); err != nil {
		log.Warn().Err(err).Msg("Metrics server failed to start")
	}
	go e.updater.Start(ctx)
}

func (e *engine) stopOps() {
	if e.ops == nil {
		return
	}
	e.updater.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.ops.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}

func (e *engine) close() {
	if closer, ok := e.kv.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Cache backend close failed")
		}
	}
	if err := e.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Store close failed")
	}
}

// buildRequest layers flag overrides on top of the profile's request.
func buildRequest(prof *profile.Profile, preset, sectors string, topN int, minScore float64) ports.ScanRequest {
	var req ports.ScanRequest
	if prof != nil {
		req = prof.Request()
	}
	if preset != "" {
		req.Preset = preset
	}
	if list := splitList(sectors); len(list) > 0 {
		req.Sectors = list
	}
	if topN > 0 {
		req.TopN = topN
	}
	if minScore > 0 {
		req.MinScore = minScore
	}
	return req
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runScan launches one managed run and follows its event stream. The
// run gets a background context: interruption goes through the
// manager's cooperative cancel flag, which lets the pipeline stop
// between phases instead of dying mid-write.
func runScan(ctx context.Context, eng *engine, req ports.ScanRequest) error {
	info, err := eng.manager.Start(context.Background(), req)
	if err != nil {
		return err
	}

	logger := log.With().Str("scan_id", info.Run.ID).Logger()
	logger.Info().Str("preset", info.Run.Preset).Int("top_n", info.Run.TopN).Msg("Scan started")

	done := ctx.Done()
	for {
		select {
		case ev, ok := <-info.Events:
			if !ok {
				return scanOutcome(eng, logger, info.Run.ID)
			}
			logScanEvent(logger, ev)
		case <-done:
			logger.Info().Msg("Cancelling scan")
			eng.manager.Cancel(info.Run.ID)
			done = nil
		}
	}
}

// scanOutcome reads the settled run state after the event channel
// closes and maps it onto the process exit status.
func scanOutcome(eng *engine, logger zerolog.Logger, id string) error {
	final, ok := eng.manager.Get(id)
	if !ok {
		return fmt.Errorf("scan %s is not tracked by the manager", id)
	}
	switch final.Run.Status {
	case domain.ScanCompleted:
		logger.Info().Int("tickers", final.Run.TickerCount).Msg("Scan finished")
		return nil
	case domain.ScanCancelled:
		logger.Info().Msg("Scan cancelled")
		return nil
	default:
		return fmt.Errorf("scan ended %s: %s", final.Run.Status, final.Error)
	}
}

func logScanEvent(logger zerolog.Logger, ev ports.Event) {
	switch {
	case ev.Err != nil:
		logger.Error().Err(ev.Err).Msg("Scan failed")
	case ev.Complete != nil:
		logComplete(logger, ev.Complete)
	case ev.Progress != nil:
		p := ev.Progress
		logger.Info().
			Int("phase", p.Phase).
			Str("phase_name", p.PhaseName).
			Int("current", p.Current).
			Int("total", p.Total).
			Msg(p.Message)
	}
}

func logComplete(logger zerolog.Logger, c *ports.Complete) {
	logger.Info().
		Int("tickers", c.ScanRun.TickerCount).
		Int("scores", len(c.Scores)).
		Float64("elapsed_seconds", c.ElapsedSeconds).
		Msg("Scan complete")

	for _, s := range c.Scores {
		if s.Rank > c.ScanRun.TopN {
			break
		}
		logger.Info().
			Int("rank", s.Rank).
			Str("ticker", s.Ticker).
			Float64("score", s.Score).
			Str("direction", string(s.Direction)).
			Msg("Leader")
	}
}

func runDebate(ctx context.Context, eng *engine, ticker string) error {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return errors.New("debate requires -ticker")
	}

	thesis, mc, err := eng.analyst.DebateTicker(ctx, symbol)
	if err != nil {
		return err
	}

	log.Info().
		Str("ticker", symbol).
		Str("direction", string(thesis.Direction)).
		Float64("conviction", thesis.Conviction).
		Str("model", thesis.ModelUsed).
		Int("total_tokens", thesis.TotalTokens).
		Int64("duration_ms", thesis.DurationMS).
		Float64("price", mc.CurrentPrice.InexactFloat64()).
		Float64("target_strike", mc.TargetStrike.InexactFloat64()).
		Msg("Debate complete")
	log.Info().Str("ticker", symbol).Str("action", thesis.RecommendedAction).Msg(thesis.EntryRationale)
	return nil
}

func runRefresh(ctx context.Context, eng *engine) error {
	stats, err := eng.universe.Refresh(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("fetched", stats.Fetched).
		Int("added", stats.Added).
		Int("etfs", stats.ETFs).
		Int("deactivated", stats.Deactivated).
		Int("active", stats.Active).
		Int("inactive", stats.Inactive).
		Msg("Universe refreshed")
	return nil
}

func runStats(ctx context.Context, eng *engine) error {
	stats, err := eng.universe.Stats(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("total", stats.Total).
		Int("active", stats.Active).
		Int("inactive", stats.Inactive).
		Interface("by_tier", stats.ByTier).
		Interface("by_sector", stats.BySector).
		Msg("Universe stats")

	rl := eng.limiter.Stats()
	log.Info().Int64("in_flight", rl.InFlight).Float64("tokens", rl.Tokens).Msg("Limiter stats")
	return nil
}

func runHealth(ctx context.Context, eng *engine) error {
	status := eng.oracle.Check(ctx)

	level := zerolog.InfoLevel
	if !status.Healthy() {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Bool("llm", status.LLMAvailable).
		Bool("vendor", status.VendorAvailable).
		Bool("store", status.PersistenceAvailable).
		Strs("models", status.LLMModels).
		Msg("Health check")

	if !status.Healthy() {
		return errors.New("one or more dependencies are down")
	}
	return nil
}

// runServe keeps the process resident so /metrics and /health stay up.
func runServe(ctx context.Context, eng *engine) error {
	if eng.ops == nil {
		return errors.New("serve requires metrics.enabled")
	}
	log.Info().Int("port", eng.cfg.Metrics.Port).Msg("Serving ops endpoints until interrupted")
	<-ctx.Done()
	return nil
}
