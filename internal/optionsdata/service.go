// Package optionsdata selects expirations and serves liquidity-filtered
// option chains over the vendor seam. Chains ride the same limiter,
// retrier, and cache stack as the equity feeds; the chain cache tier is
// volatile so quotes never outlive the process.
package optionsdata

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/marketdata"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/ratelimit"
)

const keySource = "yf"

// Service fetches and filters option chains for directional candidates.
type Service struct {
	vendor  ports.VendorAPI
	limiter *ratelimit.Limiter
	cache   *cache.Cache
	retrier *marketdata.Retrier
	opts    config.OptionsConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// NewService wires the vendor's option endpoints behind the shared
// limiter, a transport retrier, and the chain cache.
func NewService(vendor ports.VendorAPI, limiter *ratelimit.Limiter, dataCache *cache.Cache, cfg *config.Config, source string) *Service {
	timeout := time.Duration(cfg.MarketData.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		vendor:  vendor,
		limiter: limiter,
		cache:   dataCache,
		retrier: marketdata.NewRetrier(source, cfg.MarketData),
		opts:    cfg.Options,
		timeout: timeout,
		logger:  config.NewLogger("optionsdata"),
	}
}

// SelectExpiration picks the listed expiration closest to the target DTE
// inside the configured window. When nothing falls in the window it
// settles for the nearest future expiration overall and says so; a chain
// with no future expirations at all is unusable.
func (s *Service) SelectExpiration(ctx context.Context, symbol string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expirations, err := marketdata.RetryFetch(ctx, s.retrier, "expirations", func(ctx context.Context) ([]time.Time, error) {
		return ratelimit.Execute(ctx, s.limiter, "expirations", func(ctx context.Context) ([]time.Time, error) {
			return s.vendor.Expirations(ctx, symbol)
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now()
	var best, nearest time.Time
	bestDist, nearestDist := math.MaxInt32, math.MaxInt32
	for _, exp := range expirations {
		dte := domain.DaysUntil(exp, now)
		if dte <= 0 {
			continue
		}
		dist := dte - s.opts.DTETarget
		if dist < 0 {
			dist = -dist
		}
		if dist < nearestDist {
			nearest, nearestDist = exp, dist
		}
		if dte >= s.opts.DTEMin && dte <= s.opts.DTEMax && dist < bestDist {
			best, bestDist = exp, dist
		}
	}

	if !best.IsZero() {
		return best, nil
	}
	if nearest.IsZero() {
		return time.Time{}, errs.Insufficient(symbol, s.retrier.Source(), 0, 1)
	}
	s.logger.Warn().
		Str("ticker", symbol).
		Time("expiration", nearest).
		Int("dte", domain.DaysUntil(nearest, now)).
		Int("dte_min", s.opts.DTEMin).
		Int("dte_max", s.opts.DTEMax).
		Msg("No expiration inside DTE window, using nearest")
	return nearest, nil
}

// FetchOptionChain returns the liquid contracts on the directional side
// of the nearest-to-target expiration, sorted by open interest. Neutral
// candidates short-circuit to an empty chain without touching the vendor.
func (s *Service) FetchOptionChain(ctx context.Context, symbol string, direction domain.Direction) ([]domain.OptionContract, error) {
	if direction == domain.Neutral {
		return nil, nil
	}

	expiration, err := s.SelectExpiration(ctx, symbol)
	if err != nil {
		return nil, err
	}

	slice, err := s.fetchChain(ctx, symbol, expiration)
	if err != nil {
		return nil, err
	}

	rows := slice.Calls
	optType := domain.Call
	if direction == domain.Bearish {
		rows = slice.Puts
		optType = domain.Put
	}

	contracts := s.convert(symbol, optType, expiration, rows)
	filtered := s.filter(contracts)

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].OpenInterest != filtered[j].OpenInterest {
			return filtered[i].OpenInterest > filtered[j].OpenInterest
		}
		return filtered[i].Strike.LessThan(filtered[j].Strike)
	})

	s.logger.Debug().
		Str("ticker", symbol).
		Str("direction", string(direction)).
		Time("expiration", expiration).
		Int("raw", len(rows)).
		Int("liquid", len(filtered)).
		Msg("Option chain filtered")
	return filtered, nil
}

// fetchChain returns the full two-sided chain for one expiration,
// serving repeats from the volatile cache.
func (s *Service) fetchChain(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
	key := cache.Key(keySource, cache.TypeChain, symbol, expiration.Format("2006-01-02"))
	if raw, ok := s.cache.Get(ctx, key); ok {
		var slice ports.ChainSlice
		if err := json.Unmarshal(raw, &slice); err == nil {
			return slice, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slice, err := marketdata.RetryFetch(ctx, s.retrier, "options", func(ctx context.Context) (ports.ChainSlice, error) {
		return ratelimit.Execute(ctx, s.limiter, "options", func(ctx context.Context) (ports.ChainSlice, error) {
			return s.vendor.OptionChain(ctx, symbol, expiration)
		})
	})
	if err != nil {
		return ports.ChainSlice{}, err
	}

	if raw, err := json.Marshal(slice); err == nil {
		s.cache.Set(ctx, key, raw)
	}
	return slice, nil
}

// convert maps vendor rows to domain contracts. Unquoted rows (no bid
// and no ask) and rows that fail validation are dropped. Vendor IV is
// already annualized and is stored verbatim. Greeks are attached as
// market-sourced only when the row carries the full set and the values
// pass range validation.
func (s *Service) convert(symbol string, optType domain.OptionType, expiration time.Time, rows []ports.OptionRow) []domain.OptionContract {
	contracts := make([]domain.OptionContract, 0, len(rows))
	for _, row := range rows {
		if row.Bid == 0 && row.Ask == 0 {
			continue
		}
		contract, err := domain.NewOptionContract(symbol, optType,
			decimal.NewFromFloat(row.Strike), expiration,
			decimal.NewFromFloat(row.Bid),
			decimal.NewFromFloat(row.Ask),
			decimal.NewFromFloat(row.LastPrice),
			row.Volume, row.OpenInterest, row.ImpliedVolatility)
		if err != nil {
			s.logger.Debug().Str("contract", row.ContractSymbol).Err(err).Msg("Dropping malformed chain row")
			continue
		}

		if row.Delta != nil && row.Gamma != nil && row.Theta != nil && row.Vega != nil && row.Rho != nil {
			greeks, err := domain.NewOptionGreeks(*row.Delta, *row.Gamma, *row.Theta, *row.Vega, *row.Rho)
			if err == nil {
				contract = contract.WithGreeks(greeks, domain.GreeksMarket)
			} else {
				s.logger.Debug().Str("contract", row.ContractSymbol).Err(err).Msg("Ignoring out-of-range market Greeks")
			}
		}
		contracts = append(contracts, contract)
	}
	return contracts
}

// filter applies the liquidity funnel: open interest, volume, relative
// spread, and (when market Greeks exist) the delta band.
func (s *Service) filter(contracts []domain.OptionContract) []domain.OptionContract {
	kept := make([]domain.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.OpenInterest < s.opts.MinOpenInterest {
			continue
		}
		if c.Volume < s.opts.MinVolume {
			continue
		}

		mid := c.Mid()
		spread := c.Spread()
		if mid.IsZero() {
			if !spread.IsZero() {
				continue
			}
		} else if spread.Div(mid).InexactFloat64() > s.opts.MaxSpreadRatio {
			continue
		}

		if c.Greeks != nil {
			absDelta := math.Abs(c.Greeks.Delta)
			if absDelta < s.opts.DeltaMin || absDelta > s.opts.DeltaMax {
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}
