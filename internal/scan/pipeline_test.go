package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/marketdata"
	"github.com/optionalpha/optionalpha/internal/optionsdata"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/ratelimit"
	"github.com/optionalpha/optionalpha/internal/scoring"
	"github.com/optionalpha/optionalpha/internal/store"
	"github.com/optionalpha/optionalpha/internal/universe"
)

type scanVendor struct {
	historyCalls atomic.Int64
	infoCalls    atomic.Int64
	chainCalls   atomic.Int64

	history     func(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error)
	info        func(ctx context.Context, symbol string) (ports.InfoFields, error)
	expirations func(ctx context.Context, symbol string) ([]time.Time, error)
	chain       func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error)
}

func (f *scanVendor) History(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
	f.historyCalls.Add(1)
	if f.history == nil {
		return nil, errors.New("history: not wired in this test")
	}
	return f.history(ctx, symbol, period)
}

func (f *scanVendor) Info(ctx context.Context, symbol string) (ports.InfoFields, error) {
	f.infoCalls.Add(1)
	if f.info == nil {
		return ports.InfoFields{}, errors.New("info: not wired in this test")
	}
	return f.info(ctx, symbol)
}

func (f *scanVendor) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if f.expirations == nil {
		return nil, errors.New("expirations: not wired in this test")
	}
	return f.expirations(ctx, symbol)
}

func (f *scanVendor) OptionChain(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
	f.chainCalls.Add(1)
	if f.chain == nil {
		return ports.ChainSlice{}, errors.New("option chain: not wired in this test")
	}
	return f.chain(ctx, symbol, expiration)
}

type stubListing struct {
	data []byte
	err  error
}

func (s *stubListing) FetchListing(ctx context.Context) ([]byte, error) { return s.data, s.err }

type stubConstituents struct {
	list []string
	err  error
}

func (s *stubConstituents) Constituents(ctx context.Context) ([]string, error) {
	return s.list, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		MarketData: config.MarketDataConfig{
			Period:           "6mo",
			TimeoutSeconds:   5,
			TransportRetries: 0,
			MinBars:          3,
		},
		RateLimit: config.RateLimitConfig{
			MaxConcurrent:     4,
			RequestsPerSecond: 10000,
			MaxRetries:        0,
			BackoffSeconds:    []float64{0.001},
		},
		Options: config.OptionsConfig{
			DTETarget:       45,
			DTEMin:          30,
			DTEMax:          60,
			MinOpenInterest: 100,
			MinVolume:       1,
			MaxSpreadRatio:  0.30,
			DeltaTarget:     0.35,
			DeltaMin:        0.30,
			DeltaMax:        0.40,
			RiskFreeRate:    0.05,
		},
		Universe: config.UniverseConfig{
			MinTickers:      1,
			DeactivateAfter: 3,
			SP500CacheDays:  7,
		},
		Scoring: config.ScoringConfig{
			MinScore: 0,
			Weights: map[string]float64{
				"rsi_14":          0.20,
				"macd_histogram":  0.15,
				"sma_alignment":   0.20,
				"adx_14":          0.10,
				"bb_width":        0.05,
				"williams_r":      0.10,
				"stoch_rsi":       0.05,
				"obv_trend":       0.05,
				"relative_volume": 0.05,
				"week52_position": 0.05,
			},
		},
		Catalyst: config.CatalystConfig{
			ImminentDays:    7,
			NearDays:        21,
			MediumDays:      45,
			ImminentPenalty: 0.30,
			NearPenalty:     0.15,
			MediumPenalty:   0.05,
		},
		Scan: config.ScanConfig{
			DefaultPreset: universe.PresetFull,
			TopN:          10,
			EventBuffer:   16,
		},
	}
}

type harness struct {
	pipeline *Pipeline
	manager  *Manager
	st       *store.Store
	cache    *cache.Cache
	cfg      *config.Config
}

func newHarness(t *testing.T, vendor ports.VendorAPI, listing *stubListing) *harness {
	t.Helper()
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "scan.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := testConfig()
	dataCache := cache.New(nil)
	limiter := ratelimit.New(cfg.RateLimit)
	market := marketdata.NewService(vendor, limiter, dataCache, cfg, "fake")
	options := optionsdata.NewService(vendor, limiter, dataCache, cfg, "fake")
	uni := universe.NewService(st, listing, &stubConstituents{}, dataCache, cfg.Universe)

	p := NewPipeline(uni, market, options, st, cfg)
	return &harness{pipeline: p, manager: NewManager(p), st: st, cache: dataCache, cfg: cfg}
}

func seedUniverse(t *testing.T, st *store.Store, symbols ...string) {
	t.Helper()
	infos := make([]domain.TickerInfo, 0, len(symbols))
	for _, sym := range symbols {
		info, err := domain.NewTickerInfo(sym, sym+" Inc.", "Information Technology",
			domain.TierLarge, domain.AssetEquity, "cboe")
		require.NoError(t, err)
		infos = append(infos, info)
	}
	require.NoError(t, st.UpsertTickers(context.Background(), infos))
}

// risingHistory produces a steady uptrend: every indicator computes and
// the direction call lands bullish.
func risingHistory(n int) []ports.HistoryRow {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	rows := make([]ports.HistoryRow, 0, n)
	px := 100.0
	for i := 0; i < n; i++ {
		step := 0.6
		if i%2 == 1 {
			step = 0.4 // uneven gains keep realized volatility nonzero
		}
		px += step
		rows = append(rows, ports.HistoryRow{
			Date:   day.AddDate(0, 0, i),
			Open:   px - 0.2,
			High:   px + 1,
			Low:    px - 1,
			Close:  px,
			Volume: 2_000_000,
		})
	}
	return rows
}

func flatHistory(n int) []ports.HistoryRow {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	rows := make([]ports.HistoryRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, ports.HistoryRow{
			Date:   day.AddDate(0, 0, i),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1_000_000,
		})
	}
	return rows
}

func liquidCalls(strikes ...float64) []ports.OptionRow {
	rows := make([]ports.OptionRow, 0, len(strikes))
	for _, k := range strikes {
		rows = append(rows, ports.OptionRow{
			ContractSymbol:    fmt.Sprintf("TESTC%08d", int(k*1000)),
			Strike:            k,
			Bid:               2.40,
			Ask:               2.60,
			LastPrice:         2.50,
			Volume:            150,
			OpenInterest:      500,
			ImpliedVolatility: 0.32,
		})
	}
	return rows
}

func drain(t *testing.T, ch <-chan ports.Event) []ports.Event {
	t.Helper()
	var out []ports.Event
	timeout := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining scan events")
		}
	}
}

func phasesSeen(events []ports.Event) map[int]bool {
	seen := make(map[int]bool)
	for _, ev := range events {
		if ev.Progress != nil {
			seen[ev.Progress.Phase] = true
		}
	}
	return seen
}

func completeEvent(events []ports.Event) *ports.Complete {
	for _, ev := range events {
		if ev.Complete != nil {
			return ev.Complete
		}
	}
	return nil
}

func errEvent(events []ports.Event) error {
	for _, ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
	}
	return nil
}

// happyVendor wires two symbols end to end: AAA trends up with earnings
// ten days out, BBB is flat with no catalyst.
func happyVendor() *scanVendor {
	earnings := time.Now().AddDate(0, 0, 10)
	return &scanVendor{
		history: func(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
			if symbol == "AAA" {
				return risingHistory(80), nil
			}
			return flatHistory(80), nil
		},
		info: func(ctx context.Context, symbol string) (ports.InfoFields, error) {
			f := ports.InfoFields{
				Symbol:    symbol,
				ShortName: symbol + " Inc.",
				QuoteType: "EQUITY",
				Sector:    "Information Technology",
				MarketCap: 50e9,
				Price:     108,
				Bid:       107.9,
				Ask:       108.1,
			}
			if symbol == "AAA" {
				f.EarningsDate = &earnings
			}
			return f, nil
		},
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return []time.Time{time.Now().AddDate(0, 0, 45)}, nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return ports.ChainSlice{
				Expiration: expiration,
				Calls:      liquidCalls(110, 115, 120),
				Puts:       liquidCalls(95, 100),
			}, nil
		},
	}
}

func TestPipelineHappyPath(t *testing.T) {
	h := newHarness(t, happyVendor(), &stubListing{})
	seedUniverse(t, h.st, "AAA", "BBB")

	req, err := h.pipeline.Normalize(ports.ScanRequest{})
	require.NoError(t, err)
	run, err := h.pipeline.NewRun("scan-happy", req)
	require.NoError(t, err)

	events := drain(t, h.pipeline.Run(context.Background(), run, req, nil))

	seen := phasesSeen(events)
	for phase := 1; phase <= 5; phase++ {
		assert.True(t, seen[phase], "expected progress from phase %d", phase)
	}

	complete := completeEvent(events)
	require.NotNil(t, complete, "pipeline must finish with a Complete event")
	assert.Nil(t, errEvent(events))
	assert.Equal(t, domain.ScanCompleted, complete.ScanRun.Status)
	assert.Equal(t, 2, complete.ScanRun.TickerCount)
	assert.Greater(t, complete.ElapsedSeconds, 0.0)

	require.Len(t, complete.Scores, 2)
	assert.Equal(t, 1, complete.Scores[0].Rank)
	assert.Equal(t, 2, complete.Scores[1].Rank)
	assert.GreaterOrEqual(t, complete.Scores[0].Score, complete.Scores[1].Score)

	byTicker := make(map[string]domain.TickerScore)
	for _, sc := range complete.Scores {
		byTicker[sc.Ticker] = sc
	}
	require.Contains(t, byTicker, "AAA")
	require.Contains(t, byTicker, "BBB")
	assert.Equal(t, domain.Bullish, byTicker["AAA"].Direction)
	assert.Equal(t, domain.Neutral, byTicker["BBB"].Direction, "a flat series has no trend to trade")
	assert.InDelta(t, 0.15, byTicker["AAA"].Signals[scoring.SignalCatalyst], 1e-9,
		"earnings ten days out land in the near bucket")
	assert.NotContains(t, byTicker["BBB"].Signals, scoring.SignalCatalyst)

	// Phase 4 only touches the bullish leader.
	var phase4 []string
	for _, ev := range events {
		if ev.Progress != nil && ev.Progress.Phase == 4 {
			phase4 = append(phase4, ev.Progress.Message)
		}
	}
	require.NotEmpty(t, phase4)
	assert.Contains(t, phase4[len(phase4)-1], "AAA:")

	ctx := context.Background()
	stored, err := h.st.GetScanByID(ctx, "scan-happy")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, stored.Status)
	assert.Equal(t, 2, stored.TickerCount)
	require.NotNil(t, stored.CompletedAt)

	scores, err := h.st.GetScoresForScan(ctx, "scan-happy")
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestPipelineDropsSymbolsWithFailedHistory(t *testing.T) {
	vendor := happyVendor()
	base := vendor.history
	vendor.history = func(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
		if symbol == "FAKE" {
			return nil, errs.NotFound(symbol, "fake")
		}
		return base(ctx, symbol, period)
	}
	h := newHarness(t, vendor, &stubListing{})
	seedUniverse(t, h.st, "AAA", "FAKE")

	req, err := h.pipeline.Normalize(ports.ScanRequest{})
	require.NoError(t, err)
	run, err := h.pipeline.NewRun("scan-partial", req)
	require.NoError(t, err)

	events := drain(t, h.pipeline.Run(context.Background(), run, req, nil))

	complete := completeEvent(events)
	require.NotNil(t, complete, "one bad symbol must not fail the scan")
	require.Len(t, complete.Scores, 1)
	assert.Equal(t, "AAA", complete.Scores[0].Ticker)
	assert.Equal(t, 1, complete.Scores[0].Rank)
}

func TestPipelineFailsWhenUniverseUnresolvable(t *testing.T) {
	h := newHarness(t, &scanVendor{}, &stubListing{err: errors.New("directory down")})

	req, err := h.pipeline.Normalize(ports.ScanRequest{})
	require.NoError(t, err)
	run, err := h.pipeline.NewRun("scan-broken", req)
	require.NoError(t, err)

	events := drain(t, h.pipeline.Run(context.Background(), run, req, nil))

	assert.Nil(t, completeEvent(events))
	err = errEvent(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase 1")

	stored, gerr := h.st.GetScanByID(context.Background(), "scan-broken")
	require.NoError(t, gerr)
	assert.Equal(t, domain.ScanFailed, stored.Status)

	scores, serr := h.st.GetScoresForScan(context.Background(), "scan-broken")
	require.NoError(t, serr)
	assert.Empty(t, scores)
}

func TestPipelineCancellationStopsBetweenPhases(t *testing.T) {
	var flag atomic.Bool
	vendor := happyVendor()
	base := vendor.history
	vendor.history = func(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
		flag.Store(true) // request cancellation while phase 1 is in flight
		return base(ctx, symbol, period)
	}
	h := newHarness(t, vendor, &stubListing{})
	seedUniverse(t, h.st, "AAA", "BBB")

	req, err := h.pipeline.Normalize(ports.ScanRequest{})
	require.NoError(t, err)
	run, err := h.pipeline.NewRun("scan-cancelled", req)
	require.NoError(t, err)

	events := drain(t, h.pipeline.Run(context.Background(), run, req, flag.Load))

	assert.Nil(t, completeEvent(events), "a cancelled run must not complete")
	assert.NoError(t, errEvent(events), "cancellation is not a failure")
	for _, ev := range events {
		if ev.Progress != nil {
			assert.Equal(t, 1, ev.Progress.Phase, "no events past the cancelled phase")
		}
	}

	scores, err := h.st.GetScoresForScan(context.Background(), "scan-cancelled")
	require.NoError(t, err)
	assert.Empty(t, scores, "cancellation persists nothing")

	stored, err := h.st.GetScanByID(context.Background(), "scan-cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRunning, stored.Status, "only the initial running row exists")
	assert.Equal(t, int64(0), vendor.infoCalls.Load(), "no phase 3 vendor work after cancellation")
}

func TestPipelineSectorFilter(t *testing.T) {
	h := newHarness(t, happyVendor(), &stubListing{})
	seedUniverse(t, h.st, "AAA", "BBB")

	// Move BBB into another sector, then scan only its sector.
	updates := []domain.TickerInfo{{Symbol: "BBB", Sector: "Health Care"}}
	require.NoError(t, h.pipeline.universe.UpdateTickerDetails(context.Background(), updates))

	req, err := h.pipeline.Normalize(ports.ScanRequest{Sectors: []string{"Health Care"}})
	require.NoError(t, err)
	run, err := h.pipeline.NewRun("scan-sector", req)
	require.NoError(t, err)

	events := drain(t, h.pipeline.Run(context.Background(), run, req, nil))

	complete := completeEvent(events)
	require.NotNil(t, complete)
	require.Len(t, complete.Scores, 1)
	assert.Equal(t, "BBB", complete.Scores[0].Ticker)
}

func TestNormalizeFillsDefaultsAndRejectsUnknownPreset(t *testing.T) {
	h := newHarness(t, &scanVendor{}, &stubListing{})

	req, err := h.pipeline.Normalize(ports.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, universe.PresetFull, req.Preset)
	assert.Equal(t, 10, req.TopN)

	_, err = h.pipeline.Normalize(ports.ScanRequest{Preset: "galactic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "galactic")
}

func TestTopCandidatesSkipsNeutralAndCaps(t *testing.T) {
	scores := []domain.TickerScore{
		{Ticker: "A", Rank: 1, Direction: domain.Bullish},
		{Ticker: "B", Rank: 2, Direction: domain.Neutral},
		{Ticker: "C", Rank: 3, Direction: domain.Bearish},
		{Ticker: "D", Rank: 4, Direction: domain.Bullish},
	}

	picked := topCandidates(scores, 2)
	require.Len(t, picked, 2)
	assert.Equal(t, "A", picked[0].Ticker)
	assert.Equal(t, "C", picked[1].Ticker)
}

func TestFilterSectorsUnknownNameMatchesNothing(t *testing.T) {
	members := []domain.TickerInfo{
		{Symbol: "AAA", Sector: "Information Technology"},
		{Symbol: "BBB", Sector: "Health Care"},
	}

	assert.Len(t, filterSectors(members, nil), 2)
	assert.Len(t, filterSectors(members, []string{"Health Care"}), 1)
	assert.Empty(t, filterSectors(members, []string{"Tech"}), "only verbatim GICS names match")
}
