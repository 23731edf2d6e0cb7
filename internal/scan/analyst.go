package scan

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/debate"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/indicators"
	"github.com/optionalpha/optionalpha/internal/marketdata"
	"github.com/optionalpha/optionalpha/internal/optionsdata"
	"github.com/optionalpha/optionalpha/internal/recommender"
	"github.com/optionalpha/optionalpha/internal/scoring"
)

// keySource is the cache key prefix for vendor-derived data.
const keySource = "yf"

// ivWindow is the realized-volatility lookback used to place today's
// implied volatility against recent history.
const ivWindow = 21

// Analyst assembles the market context for one ticker and runs it
// through the debate. It reuses the same cached data services as the
// pipeline, so a debate right after a scan costs few extra vendor calls.
type Analyst struct {
	market  *marketdata.Service
	options *optionsdata.Service
	cache   *cache.Cache
	debate  *debate.Orchestrator
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewAnalyst wires the context builder over the data services and the
// debate orchestrator.
func NewAnalyst(market *marketdata.Service, options *optionsdata.Service, dataCache *cache.Cache,
	orchestrator *debate.Orchestrator, cfg *config.Config) *Analyst {
	return &Analyst{
		market:  market,
		options: options,
		cache:   dataCache,
		debate:  orchestrator,
		cfg:     cfg,
		logger:  config.NewLogger("analyst"),
	}
}

// DebateTicker builds the market context for symbol and runs the full
// debate. The thesis always comes back when the context can be built;
// LLM trouble downgrades to the deterministic fallback inside the
// orchestrator.
func (a *Analyst) DebateTicker(ctx context.Context, symbol string) (domain.TradeThesis, domain.MarketContext, error) {
	mc, score, err := a.BuildContext(ctx, symbol)
	if err != nil {
		return domain.TradeThesis{}, domain.MarketContext{}, err
	}
	thesis := a.debate.Run(ctx, mc, score)
	return thesis, mc, nil
}

// BuildContext assembles the debate snapshot for one ticker. History is
// mandatory; quote, summary, and chain data degrade to zero values so a
// thin options market never blocks a debate.
func (a *Analyst) BuildContext(ctx context.Context, symbol string) (domain.MarketContext, domain.TickerScore, error) {
	bars, err := a.market.FetchOHLCV(ctx, symbol, "")
	if err != nil {
		return domain.MarketContext{}, domain.TickerScore{}, err
	}

	signals := indicators.Signals(bars)
	score := domain.TickerScore{
		Ticker:    symbol,
		Score:     scoring.Composite(signals, a.cfg.Scoring.Weights),
		Signals:   signals,
		Rank:      1,
		Direction: directionFor(signals),
	}

	price := a.currentPrice(ctx, symbol, bars)

	var details marketdata.TickerDetails
	if d, err := a.market.FetchTickerInfo(ctx, symbol); err == nil {
		details = d
	} else {
		a.logger.Debug().Str("ticker", symbol).Err(err).Msg("Ticker summary unavailable for context")
	}

	var summary optionsdata.ChainSummary
	if s, err := a.options.Summarize(ctx, symbol, price); err == nil {
		summary = s
	} else {
		a.logger.Debug().Str("ticker", symbol).Err(err).Msg("Chain summary unavailable for context")
	}

	ivRank, ivPct := a.ivPlacement(ctx, symbol, bars, summary.ATMIV)

	high, low := a.weekRange(details, bars)

	mc := domain.MarketContext{
		Ticker:        symbol,
		CurrentPrice:  price,
		High52W:       high,
		Low52W:        low,
		IVRank:        ivRank,
		IVPercentile:  ivPct,
		ATMIV30D:      summary.ATMIV,
		RSI14:         signals[indicators.SignalRSI],
		MACDSignal:    signals[indicators.SignalMACDHistogram],
		PutCallRatio:  summary.PutCallRatio,
		NextEarnings:  details.NextEarnings,
		DTETarget:     a.cfg.Options.DTETarget,
		Sector:        details.Sector,
		DataTimestamp: time.Now().UTC(),
	}

	if score.Direction != domain.Neutral {
		if rec := a.targetContract(ctx, symbol, score.Direction, price); rec != nil {
			mc.TargetStrike = rec.Strike
			mc.DTETarget = rec.DTE(time.Now())
			if rec.Greeks != nil {
				mc.TargetDelta = rec.Greeks.Delta
			}
		}
	}

	return mc, score, nil
}

// currentPrice prefers the live quote and falls back to the last close.
func (a *Analyst) currentPrice(ctx context.Context, symbol string, bars domain.Bars) decimal.Decimal {
	if q, err := a.market.FetchQuote(ctx, symbol); err == nil {
		if q.Last.IsPositive() {
			return q.Last
		}
		if mid := q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2)); mid.IsPositive() {
			return mid
		}
	}
	if last, ok := bars.Last(); ok {
		return last.Close
	}
	return decimal.Zero
}

// weekRange takes the vendor's 52-week figures when present and
// otherwise derives them from the trailing year of history.
func (a *Analyst) weekRange(details marketdata.TickerDetails, bars domain.Bars) (decimal.Decimal, decimal.Decimal) {
	if details.FiftyTwoWeekHigh.IsPositive() && details.FiftyTwoWeekLow.IsPositive() {
		return details.FiftyTwoWeekHigh, details.FiftyTwoWeekLow
	}
	start := len(bars) - 252
	if start < 0 {
		start = 0
	}
	window := bars[start:]
	if len(window) == 0 {
		return decimal.Zero, decimal.Zero
	}
	high, low := window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}
	return high, low
}

// targetContract runs the same recommendation funnel as the pipeline's
// phase four. A nil result leaves the context without a target.
func (a *Analyst) targetContract(ctx context.Context, symbol string, direction domain.Direction, price decimal.Decimal) *domain.OptionContract {
	contracts, err := a.options.FetchOptionChain(ctx, symbol, direction)
	if err != nil {
		a.logger.Debug().Str("ticker", symbol).Err(err).Msg("Option chain unavailable for context")
		return nil
	}
	now := time.Now()
	contracts = fillGreeks(contracts, price.InexactFloat64(), a.cfg.Options.RiskFreeRate, now)
	return recommender.RecommendContract(contracts, direction, now, a.cfg.Options)
}

// ivPlacement places the at-the-money IV against the trailing realized
// volatility distribution. Rank stretches the reading across the
// distribution's range (an IV above every observation exceeds 100);
// percentile is the share of observations below it. Both readings are
// cached so repeat debates inside the TTL window reuse them.
func (a *Analyst) ivPlacement(ctx context.Context, symbol string, bars domain.Bars, atmIV float64) (float64, float64) {
	if atmIV <= 0 {
		return 0, 0
	}

	rankKey := cache.Key(keySource, cache.TypeIVRank, symbol)
	pctKey := cache.Key(keySource, cache.TypeIVPercentile, symbol)
	if rawRank, ok := a.cache.Get(ctx, rankKey); ok {
		if rawPct, ok := a.cache.Get(ctx, pctKey); ok {
			var rank, pct float64
			if json.Unmarshal(rawRank, &rank) == nil && json.Unmarshal(rawPct, &pct) == nil {
				return rank, pct
			}
		}
	}

	series, err := indicators.RealizedVolatility(bars.Closes(), ivWindow)
	if err != nil {
		a.logger.Debug().Str("ticker", symbol).Err(err).Msg("History too short for IV placement")
		return 0, 0
	}

	observations := make([]float64, 0, len(series))
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		observations = append(observations, v)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if len(observations) < 2 {
		return 0, 0
	}

	var rank float64
	if hi > lo {
		rank = (atmIV - lo) / (hi - lo) * 100
	}
	if rank < 0 {
		rank = 0
	}

	below := 0
	for _, v := range observations {
		if v < atmIV {
			below++
		}
	}
	pct := float64(below) / float64(len(observations)) * 100

	if raw, err := json.Marshal(rank); err == nil {
		a.cache.Set(ctx, rankKey, raw)
	}
	if raw, err := json.Marshal(pct); err == nil {
		a.cache.Set(ctx, pctKey, raw)
	}
	return rank, pct
}
