// Package marketdata serves validated OHLCV history, quotes, and ticker
// summaries over the vendor seam. Every call runs under a hard deadline,
// the shared rate limiter, and the transport retrier, and lands in the
// two-tier cache keyed "yf:<type>:<symbol>[:<period>]".
package marketdata

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/ratelimit"
)

// keySource is the cache key prefix for vendor data.
const keySource = "yf"

// TickerDetails is the enriched vendor summary for one symbol, with the
// market-cap tier already computed.
type TickerDetails struct {
	Symbol           string               `json:"symbol"`
	Name             string               `json:"name"`
	Sector           string               `json:"sector"`
	Industry         string               `json:"industry"`
	QuoteType        string               `json:"quote_type"`
	MarketCap        float64              `json:"market_cap"`
	Tier             domain.MarketCapTier `json:"market_cap_tier"`
	Price            decimal.Decimal      `json:"price"`
	FiftyTwoWeekHigh decimal.Decimal      `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  decimal.Decimal      `json:"fifty_two_week_low"`
	NextEarnings     *time.Time           `json:"next_earnings,omitempty"`
}

// BatchResult is one symbol's outcome in a batch fetch. Exactly one of
// Bars and Err is meaningful.
type BatchResult struct {
	Bars domain.Bars
	Err  error
}

// Service is the market-data facade the pipeline talks to.
type Service struct {
	vendor     ports.VendorAPI
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	retrier    *Retrier
	cfg        config.MarketDataConfig
	batchLimit int
	logger     zerolog.Logger
}

// NewService wires the vendor behind the limiter, retrier, and cache.
// source names the vendor on errors and metrics.
func NewService(vendor ports.VendorAPI, limiter *ratelimit.Limiter, dataCache *cache.Cache, cfg *config.Config, source string) *Service {
	return &Service{
		vendor:     vendor,
		limiter:    limiter,
		cache:      dataCache,
		retrier:    NewRetrier(source, cfg.MarketData),
		cfg:        cfg.MarketData,
		batchLimit: cfg.RateLimit.MaxConcurrent,
		logger:     config.NewLogger("marketdata"),
	}
}

// FetchOHLCV returns at least MinBars validated daily bars for symbol,
// oldest first. An empty period uses the configured default.
func (s *Service) FetchOHLCV(ctx context.Context, symbol, period string) (domain.Bars, error) {
	if period == "" {
		period = s.cfg.Period
	}

	key := cache.Key(keySource, cache.TypeOHLCV, symbol, period)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var bars domain.Bars
		if err := json.Unmarshal(raw, &bars); err == nil {
			return bars, nil
		}
		s.cache.InvalidatePattern(ctx, key)
	}

	// Symbols the vendor has disowned stay dead for a day; full scans
	// would otherwise re-ask for every delisted ticker.
	failKey := cache.Key(keySource, cache.TypeFailure, symbol)
	if _, ok := s.cache.Get(ctx, failKey); ok {
		return nil, errs.NotFound(symbol, s.retrier.Source())
	}

	ctx, cancel := s.deadline(ctx)
	defer cancel()

	rows, err := RetryFetch(ctx, s.retrier, "history", func(ctx context.Context) ([]ports.HistoryRow, error) {
		return ratelimit.Execute(ctx, s.limiter, "history", func(ctx context.Context) ([]ports.HistoryRow, error) {
			return s.vendor.History(ctx, symbol, period)
		})
	})
	if err != nil {
		if errs.IsNotFound(err) {
			s.cache.Set(ctx, failKey, []byte("not_found"))
		}
		return nil, err
	}
	if len(rows) == 0 {
		s.cache.Set(ctx, failKey, []byte("not_found"))
		return nil, errs.NotFound(symbol, s.retrier.Source())
	}

	bars := make(domain.Bars, 0, len(rows))
	for _, row := range rows {
		bar, err := domain.NewPriceBar(row.Date,
			decimal.NewFromFloat(row.Open),
			decimal.NewFromFloat(row.High),
			decimal.NewFromFloat(row.Low),
			decimal.NewFromFloat(row.Close),
			row.Volume)
		if err != nil {
			return nil, errs.Unavailable(symbol, s.retrier.Source(), err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if len(bars) < s.cfg.MinBars {
		return nil, errs.Insufficient(symbol, s.retrier.Source(), len(bars), s.cfg.MinBars)
	}

	if raw, err := json.Marshal(bars); err == nil {
		s.cache.Set(ctx, key, raw)
	}

	s.logger.Debug().Str("ticker", symbol).Int("bars", len(bars)).Msg("OHLCV fetched")
	return bars, nil
}

// FetchQuote returns the current bid/ask/last snapshot for symbol.
func (s *Service) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	key := cache.Key(keySource, cache.TypeQuote, symbol)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var q domain.Quote
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
	}

	ctx, cancel := s.deadline(ctx)
	defer cancel()

	info, err := s.fetchInfo(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if info.QuoteType == "" && info.Price == 0 {
		return domain.Quote{}, errs.NotFound(symbol, s.retrier.Source())
	}

	q, err := domain.NewQuote(symbol,
		decimal.NewFromFloat(info.Bid),
		decimal.NewFromFloat(info.Ask),
		decimal.NewFromFloat(info.Price),
		info.Volume, time.Now())
	if err != nil {
		return domain.Quote{}, errs.Unavailable(symbol, s.retrier.Source(), err)
	}

	if raw, err := json.Marshal(q); err == nil {
		s.cache.Set(ctx, key, raw)
	}
	return q, nil
}

// FetchTickerInfo returns the vendor summary with the market-cap tier
// computed. ETFs tier as "etf" regardless of assets under management.
func (s *Service) FetchTickerInfo(ctx context.Context, symbol string) (TickerDetails, error) {
	key := cache.Key(keySource, cache.TypeFundamentals, symbol)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var d TickerDetails
		if err := json.Unmarshal(raw, &d); err == nil {
			return d, nil
		}
	}

	ctx, cancel := s.deadline(ctx)
	defer cancel()

	info, err := s.fetchInfo(ctx, symbol)
	if err != nil {
		return TickerDetails{}, err
	}
	if info.QuoteType == "" && info.Price == 0 {
		return TickerDetails{}, errs.NotFound(symbol, s.retrier.Source())
	}

	tier := domain.TierForMarketCap(info.MarketCap)
	if strings.EqualFold(info.QuoteType, "ETF") {
		tier = domain.TierETF
	}

	d := TickerDetails{
		Symbol:           symbol,
		Name:             info.ShortName,
		Sector:           info.Sector,
		Industry:         info.Industry,
		QuoteType:        info.QuoteType,
		MarketCap:        info.MarketCap,
		Tier:             tier,
		Price:            decimal.NewFromFloat(info.Price),
		FiftyTwoWeekHigh: decimal.NewFromFloat(info.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  decimal.NewFromFloat(info.FiftyTwoWeekLow),
		NextEarnings:     info.EarningsDate,
	}

	if raw, err := json.Marshal(d); err == nil {
		s.cache.Set(ctx, key, raw)
	}
	return d, nil
}

// FetchBatchOHLCV fans the symbol list out over a bounded worker group
// and aggregates every outcome; one failure never fails the batch.
func (s *Service) FetchBatchOHLCV(ctx context.Context, symbols []string) map[string]BatchResult {
	results := make(map[string]BatchResult, len(symbols))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.batchLimit)

	for _, symbol := range symbols {
		g.Go(func() error {
			bars, err := s.FetchOHLCV(ctx, symbol, "")
			mu.Lock()
			results[symbol] = BatchResult{Bars: bars, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info().Int("requested", len(symbols)).Int("failed", failed).Msg("Batch OHLCV complete")
	return results
}

func (s *Service) fetchInfo(ctx context.Context, symbol string) (ports.InfoFields, error) {
	return RetryFetch(ctx, s.retrier, "info", func(ctx context.Context) (ports.InfoFields, error) {
		return ratelimit.Execute(ctx, s.limiter, "info", func(ctx context.Context) (ports.InfoFields, error) {
			return s.vendor.Info(ctx, symbol)
		})
	})
}

func (s *Service) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
