// Package scan drives the five-phase screening pipeline and manages its
// runs: resolve the universe and load history, score signals, discount
// for catalyst proximity, select option contracts for the directional
// leaders, and persist the result. The pipeline is a producer; consumers
// watch a buffered event channel that closes when the run is over.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/indicators"
	"github.com/optionalpha/optionalpha/internal/marketdata"
	"github.com/optionalpha/optionalpha/internal/metrics"
	"github.com/optionalpha/optionalpha/internal/optionsdata"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/recommender"
	"github.com/optionalpha/optionalpha/internal/scoring"
	"github.com/optionalpha/optionalpha/internal/universe"
)

// Phase names as they appear in progress events.
const (
	phaseUniverse = "universe"
	phaseSignals  = "signals"
	phaseCatalyst = "catalyst"
	phaseOptions  = "options"
	phasePersist  = "persist"
)

// errCancelled aborts the phase loop without marking the run failed.
var errCancelled = errors.New("scan cancelled")

// Pipeline owns one scan's worth of work. Safe for concurrent Run calls;
// per-run state lives on the runner, never on the Pipeline.
type Pipeline struct {
	universe *universe.Service
	market   *marketdata.Service
	options  *optionsdata.Service
	repo     ports.Repository
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewPipeline wires the pipeline over the data services and the store.
func NewPipeline(uni *universe.Service, market *marketdata.Service, options *optionsdata.Service,
	repo ports.Repository, cfg *config.Config) *Pipeline {
	return &Pipeline{
		universe: uni,
		market:   market,
		options:  options,
		repo:     repo,
		cfg:      cfg,
		logger:   config.NewLogger("scan"),
	}
}

// NewRun builds the run record for a normalized request.
func (p *Pipeline) NewRun(id string, req ports.ScanRequest) (domain.ScanRun, error) {
	return domain.NewScanRun(id, req.Preset, req.Sectors, req.TopN)
}

// Normalize fills request defaults from configuration and rejects
// requests the pipeline cannot serve.
func (p *Pipeline) Normalize(req ports.ScanRequest) (ports.ScanRequest, error) {
	if req.Preset == "" {
		req.Preset = p.cfg.Scan.DefaultPreset
	}
	if !universe.ValidPreset(req.Preset) {
		return req, fmt.Errorf("unknown universe preset %q (valid: %v)", req.Preset, universe.Presets())
	}
	if req.TopN <= 0 {
		req.TopN = p.cfg.Scan.TopN
	}
	if req.MinScore <= 0 {
		req.MinScore = p.cfg.Scoring.MinScore
	}
	return req, nil
}

// Run executes the pipeline for one prepared run record. Events stream
// on the returned channel until it closes; the last event is either a
// Complete or an Err. cancelled is polled between phases and before
// costly per-symbol steps; once it reports true no further vendor calls
// or writes happen and the channel closes without a terminal event.
func (p *Pipeline) Run(ctx context.Context, run domain.ScanRun, req ports.ScanRequest, cancelled func() bool) <-chan ports.Event {
	buffer := p.cfg.Scan.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	events := make(chan ports.Event, buffer)
	go p.execute(ctx, run, req, cancelled, events)
	return events
}

func (p *Pipeline) execute(ctx context.Context, run domain.ScanRun, req ports.ScanRequest, cancelled func() bool, events chan<- ports.Event) {
	defer close(events)
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	start := time.Now()
	metrics.ScansStarted.Inc()
	defer metrics.ScanPhase.Set(0)

	r := &runner{
		Pipeline:  p,
		run:       run,
		req:       req,
		cancelled: cancelled,
		events:    events,
		logger:    p.logger.With().Str("scan_id", run.ID).Str("preset", req.Preset).Logger(),
	}

	// The running row lands first so the completed row is a replace.
	if err := p.repo.SaveScanRun(ctx, r.run); err != nil {
		r.logger.Warn().Err(err).Msg("Could not persist running scan record")
	}

	phases := []struct {
		num  int
		name string
		fn   func(context.Context) error
	}{
		{1, phaseUniverse, r.resolveUniverse},
		{2, phaseSignals, r.scoreSignals},
		{3, phaseCatalyst, r.adjustForCatalysts},
		{4, phaseOptions, r.selectContracts},
		{5, phasePersist, r.persist},
	}

	for _, ph := range phases {
		if cancelled() || ctx.Err() != nil {
			r.logger.Info().Int("phase", ph.num).Msg("Scan cancelled")
			return
		}
		r.phaseNum, r.phaseName = ph.num, ph.name
		metrics.ScanPhase.Set(float64(ph.num))

		if err := ph.fn(ctx); err != nil {
			if errors.Is(err, errCancelled) {
				r.logger.Info().Int("phase", ph.num).Msg("Scan cancelled")
				return
			}
			r.fail(ctx, ph.num, err)
			return
		}
	}

	elapsed := time.Since(start)
	metrics.ScansCompleted.Inc()
	metrics.ScanDuration.Observe(elapsed.Seconds())
	r.logger.Info().
		Int("tickers", len(r.scores)).
		Float64("elapsed_s", elapsed.Seconds()).
		Msg("Scan complete")
	r.emit(ctx, ports.Event{Complete: &ports.Complete{
		ScanRun:        r.run,
		Scores:         r.scores,
		ElapsedSeconds: elapsed.Seconds(),
	}})
}

// runner carries one run's mutable state through the phases.
type runner struct {
	*Pipeline
	run       domain.ScanRun
	req       ports.ScanRequest
	cancelled func() bool
	events    chan<- ports.Event
	logger    zerolog.Logger

	phaseNum  int
	phaseName string

	tickers map[string]domain.TickerInfo
	bars    map[string]domain.Bars
	scores  []domain.TickerScore
	details map[string]marketdata.TickerDetails
}

func (r *runner) emit(ctx context.Context, ev ports.Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *runner) progress(ctx context.Context, current, total int, msg string) {
	r.emit(ctx, ports.Event{Progress: &ports.Progress{
		Phase:     r.phaseNum,
		PhaseName: r.phaseName,
		Message:   msg,
		Current:   current,
		Total:     total,
	}})
}

func (r *runner) fail(ctx context.Context, phase int, err error) {
	metrics.ScansFailed.Inc()
	r.logger.Error().Err(err).Int("phase", phase).Msg("Scan failed")
	r.run = r.run.Failed(time.Now())
	if serr := r.repo.SaveScanRun(ctx, r.run); serr != nil {
		r.logger.Warn().Err(serr).Msg("Could not persist failed scan record")
	}
	r.emit(ctx, ports.Event{Err: fmt.Errorf("phase %d (%s): %w", phase, r.phaseName, err)})
}

// resolveUniverse loads the preset members, refreshing the directory
// once if it has never been ingested, applies the sector filter, and
// batch-fetches history. Symbols whose history fails are dropped here.
func (r *runner) resolveUniverse(ctx context.Context) error {
	r.progress(ctx, 0, 0, fmt.Sprintf("Resolving universe preset %q", r.req.Preset))

	members, err := r.universe.Preset(ctx, r.req.Preset)
	if err != nil {
		return fmt.Errorf("resolve preset: %w", err)
	}
	if len(members) == 0 {
		r.logger.Info().Msg("Universe empty, running directory refresh")
		if _, err := r.universe.Refresh(ctx); err != nil {
			return fmt.Errorf("universe refresh: %w", err)
		}
		if members, err = r.universe.Preset(ctx, r.req.Preset); err != nil {
			return fmt.Errorf("resolve preset after refresh: %w", err)
		}
	}

	members = filterSectors(members, r.req.Sectors)
	if len(members) == 0 {
		return fmt.Errorf("preset %q with sectors %v matches no tickers", r.req.Preset, r.req.Sectors)
	}

	r.tickers = make(map[string]domain.TickerInfo, len(members))
	symbols := make([]string, 0, len(members))
	for _, m := range members {
		r.tickers[m.Symbol] = m
		symbols = append(symbols, m.Symbol)
	}
	sort.Strings(symbols)

	if r.cancelled() {
		return errCancelled
	}

	r.progress(ctx, 0, len(symbols), fmt.Sprintf("Fetching history for %d tickers", len(symbols)))
	results := r.market.FetchBatchOHLCV(ctx, symbols)

	r.bars = make(map[string]domain.Bars, len(results))
	for _, sym := range symbols {
		res := results[sym]
		if res.Err != nil {
			r.logger.Warn().Str("ticker", sym).Err(res.Err).Msg("History unavailable, dropping ticker")
			continue
		}
		r.bars[sym] = res.Bars
	}
	if len(r.bars) == 0 {
		return fmt.Errorf("history fetch failed for all %d tickers", len(symbols))
	}

	r.progress(ctx, len(symbols), len(symbols),
		fmt.Sprintf("History loaded for %d of %d tickers", len(r.bars), len(symbols)))
	return nil
}

// scoreSignals computes the indicator set per symbol, scores the
// universe, drops rows under the score floor, and assigns directions.
func (r *runner) scoreSignals(ctx context.Context) error {
	symbols := make([]string, 0, len(r.bars))
	for sym := range r.bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	all := make(map[string]map[string]float64, len(symbols))
	for i, sym := range symbols {
		if r.cancelled() {
			return errCancelled
		}
		sigs := indicators.Signals(r.bars[sym])
		if len(sigs) == 0 {
			r.logger.Warn().Str("ticker", sym).Msg("No computable indicators, dropping ticker")
			continue
		}
		all[sym] = sigs
		r.progress(ctx, i+1, len(symbols), fmt.Sprintf("Signals computed for %s", sym))
	}

	scored := scoring.ScoreUniverse(all, r.cfg.Scoring)

	kept := make([]domain.TickerScore, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < r.req.MinScore {
			continue
		}
		sc.Direction = directionFor(sc.Signals)
		kept = append(kept, sc)
	}
	r.scores = scoring.Rerank(kept)

	r.progress(ctx, len(symbols), len(symbols),
		fmt.Sprintf("%d of %d tickers at or above score %.2f", len(r.scores), len(scored), r.req.MinScore))
	if len(r.scores) == 0 {
		r.logger.Warn().Float64("min_score", r.req.MinScore).Msg("No ticker cleared the score floor")
	}
	return nil
}

// adjustForCatalysts fetches each survivor's summary for its next
// earnings date, discounts scores near the event, reranks, and pushes
// tier and sector enrichment back into the universe directory.
func (r *runner) adjustForCatalysts(ctx context.Context) error {
	if len(r.scores) == 0 {
		r.progress(ctx, 0, 0, "No candidates for catalyst adjustment")
		return nil
	}

	r.details = make(map[string]marketdata.TickerDetails, len(r.scores))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.cfg.RateLimit.MaxConcurrent)
	for _, sc := range r.scores {
		sym := sc.Ticker
		g.Go(func() error {
			if r.cancelled() {
				return nil
			}
			d, err := r.market.FetchTickerInfo(ctx, sym)
			if err != nil {
				r.logger.Debug().Str("ticker", sym).Err(err).Msg("Ticker summary unavailable, no catalyst adjustment")
				return nil
			}
			mu.Lock()
			r.details[sym] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if r.cancelled() {
		return errCancelled
	}

	now := time.Now()
	adjusted := 0
	for i := range r.scores {
		d, ok := r.details[r.scores[i].Ticker]
		if !ok || d.NextEarnings == nil {
			continue
		}
		penalty := scoring.CatalystProximityScore(d.NextEarnings, now, r.cfg.Catalyst)
		if penalty <= 0 {
			continue
		}
		r.scores[i].Score = scoring.ApplyCatalystAdjustment(r.scores[i].Score, penalty)
		r.scores[i].Signals[scoring.SignalCatalyst] = penalty
		adjusted++
	}
	r.scores = scoring.Rerank(r.scores)

	r.enrichUniverse(ctx, now)
	r.progress(ctx, len(r.scores), len(r.scores),
		fmt.Sprintf("Catalyst proximity discounted %d of %d tickers", adjusted, len(r.scores)))
	return nil
}

// enrichUniverse writes scan-time tier and sector refinements back to
// the directory. Best effort; the scan result does not depend on it.
func (r *runner) enrichUniverse(ctx context.Context, now time.Time) {
	updates := make([]domain.TickerInfo, 0, len(r.details))
	for sym, d := range r.details {
		info, ok := r.tickers[sym]
		if !ok {
			continue
		}
		if d.Tier != "" && d.Tier != domain.TierUnknown {
			info.MarketCapTier = d.Tier
		}
		if d.Sector != "" {
			info.Sector = d.Sector
		}
		scanned := now.UTC()
		info.LastScannedAt = &scanned
		updates = append(updates, info)
	}
	if len(updates) == 0 {
		return
	}
	if err := r.universe.UpdateTickerDetails(ctx, updates); err != nil {
		r.logger.Warn().Err(err).Msg("Universe enrichment failed")
	}
}

// selectContracts recommends one option contract for each directional
// leader. Chain trouble never fails the scan; the candidate simply goes
// out without a contract.
func (r *runner) selectContracts(ctx context.Context) error {
	candidates := topCandidates(r.scores, r.req.TopN)
	if len(candidates) == 0 {
		r.progress(ctx, 0, 0, "No directional candidates for contract selection")
		return nil
	}

	now := time.Now()
	for i, sc := range candidates {
		if r.cancelled() {
			return errCancelled
		}

		rec, err := r.recommend(ctx, sc, now)
		switch {
		case err != nil:
			r.logger.Warn().Str("ticker", sc.Ticker).Err(err).Msg("Option chain unavailable")
			r.progress(ctx, i+1, len(candidates), fmt.Sprintf("%s: chain unavailable", sc.Ticker))
		case rec == nil:
			r.logger.Info().Str("ticker", sc.Ticker).Str("direction", string(sc.Direction)).
				Msg("No liquid contract at a workable delta")
			r.progress(ctx, i+1, len(candidates), fmt.Sprintf("%s: no liquid contract", sc.Ticker))
		default:
			r.logger.Info().
				Str("ticker", sc.Ticker).
				Str("type", string(rec.Type)).
				Str("strike", rec.Strike.String()).
				Time("expiration", rec.Expiration).
				Int("dte", rec.DTE(now)).
				Msg("Contract recommended")
			r.progress(ctx, i+1, len(candidates), fmt.Sprintf("%s: %s %s exp %s",
				sc.Ticker, rec.Type, rec.Strike.StringFixed(2), rec.Expiration.Format("2006-01-02")))
		}
	}
	return nil
}

func (r *runner) recommend(ctx context.Context, sc domain.TickerScore, now time.Time) (*domain.OptionContract, error) {
	contracts, err := r.options.FetchOptionChain(ctx, sc.Ticker, sc.Direction)
	if err != nil {
		return nil, err
	}
	contracts = fillGreeks(contracts, r.spotFor(sc.Ticker), r.cfg.Options.RiskFreeRate, now)
	return recommender.RecommendContract(contracts, sc.Direction, now, r.cfg.Options), nil
}

// spotFor prefers the summary price fetched in phase 3 and falls back
// to the last close from phase 1.
func (r *runner) spotFor(symbol string) float64 {
	if d, ok := r.details[symbol]; ok && d.Price.IsPositive() {
		return d.Price.InexactFloat64()
	}
	if bars, ok := r.bars[symbol]; ok {
		if last, ok := bars.Last(); ok {
			return last.Close.InexactFloat64()
		}
	}
	return 0
}

// persist writes the completed run and its scores. Persistence trouble
// is logged, not fatal; the consumer still gets the results.
func (r *runner) persist(ctx context.Context) error {
	r.run = r.run.Completed(len(r.scores), time.Now())

	if err := r.repo.SaveScanRun(ctx, r.run); err != nil {
		r.logger.Error().Err(err).Msg("Could not persist scan run")
	} else if err := r.repo.SaveTickerScores(ctx, r.run.ID, r.scores); err != nil {
		r.logger.Error().Err(err).Msg("Could not persist ticker scores")
	}

	r.progress(ctx, len(r.scores), len(r.scores),
		fmt.Sprintf("Persisted %d scores for scan %s", len(r.scores), r.run.ID))
	return nil
}

// directionFor grades trend direction from the signal map. Missing RSI
// reads as the 50 midline so it cannot cast a vote either way.
func directionFor(signals map[string]float64) domain.Direction {
	rsi, ok := signals[indicators.SignalRSI]
	if !ok {
		rsi = 50
	}
	return scoring.DetermineDirection(
		signals[indicators.SignalADX],
		rsi,
		signals[indicators.SignalSMAAlignment],
	)
}

// filterSectors keeps members whose sector is named in the request.
// An empty request keeps everything; names outside the GICS set match
// nothing.
func filterSectors(members []domain.TickerInfo, sectors []string) []domain.TickerInfo {
	if len(sectors) == 0 {
		return members
	}
	wanted := make(map[string]struct{}, len(sectors))
	for _, s := range sectors {
		if universe.ValidSector(s) {
			wanted[s] = struct{}{}
		}
	}
	out := make([]domain.TickerInfo, 0, len(members))
	for _, m := range members {
		if _, ok := wanted[m.Sector]; ok {
			out = append(out, m)
		}
	}
	return out
}

// topCandidates returns the first n non-neutral rows in rank order.
func topCandidates(scores []domain.TickerScore, n int) []domain.TickerScore {
	out := make([]domain.TickerScore, 0, n)
	for _, sc := range scores {
		if sc.Direction == domain.Neutral {
			continue
		}
		out = append(out, sc)
		if len(out) == n {
			break
		}
	}
	return out
}
