// Package scoring turns indicator signals into a ranked universe and a
// per-ticker directional bias. Weights come from configuration; this
// package owns only the bullishness normalization of each signal and
// the ranking rules.
package scoring

import (
	"math"
	"sort"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/indicators"
)

// normalize maps one raw signal onto a [0, 1] bullishness scale. Each
// mapping is monotone: mean-reversion signals (RSI, Williams %R,
// Stochastic RSI) score oversold readings higher, trend signals (MACD,
// SMA alignment, OBV) score confirmation higher, a Bollinger squeeze
// scores higher than expanded bands, and volume or trend strength adds
// conviction.
func normalize(key string, v float64) (float64, bool) {
	switch key {
	case indicators.SignalRSI:
		return clamp01((100 - v) / 100), true
	case indicators.SignalMACDHistogram:
		return 0.5 * (1 + math.Tanh(v)), true
	case indicators.SignalSMAAlignment:
		return clamp01((v + 1) / 2), true
	case indicators.SignalADX:
		return clamp01(v / 100), true
	case indicators.SignalBBWidth:
		return clamp01(1 - v), true
	case indicators.SignalWilliamsR:
		return clamp01(-v / 100), true
	case indicators.SignalStochRSI:
		return clamp01((100 - v) / 100), true
	case indicators.SignalOBVTrend:
		return clamp01((v + 1) / 2), true
	case indicators.SignalRelativeVolume:
		return clamp01(v / (1 + v)), true
	case indicators.SignalWeek52Position:
		return clamp01(v), true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Composite computes one ticker's weighted score over the signals it
// actually has. The weight mass of absent signals is redistributed, so
// a shorter history is not mistaken for a weaker setup.
func Composite(signals map[string]float64, weights map[string]float64) float64 {
	var sum, mass float64
	for key, weight := range weights {
		if weight <= 0 {
			continue
		}
		raw, ok := signals[key]
		if !ok || math.IsNaN(raw) {
			continue
		}
		norm, ok := normalize(key, raw)
		if !ok {
			continue
		}
		sum += weight * norm
		mass += weight
	}
	if mass == 0 {
		return 0
	}
	return sum / mass
}

// ScoreUniverse scores and ranks every symbol. Iteration is sorted so
// identical inputs always produce identical output; ties in score break
// by symbol.
func ScoreUniverse(signals map[string]map[string]float64, cfg config.ScoringConfig) []domain.TickerScore {
	symbols := make([]string, 0, len(signals))
	for sym := range signals {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	scores := make([]domain.TickerScore, 0, len(symbols))
	for _, sym := range symbols {
		scores = append(scores, domain.TickerScore{
			Ticker:    sym,
			Score:     Composite(signals[sym], cfg.Weights),
			Signals:   signals[sym],
			Direction: domain.Neutral,
		})
	}
	return Rerank(scores)
}

// Rerank sorts by score descending (symbol ascending on ties) and
// reassigns ranks from 1 with no gaps. Used after initial scoring and
// again after catalyst adjustment.
func Rerank(scores []domain.TickerScore) []domain.TickerScore {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Ticker < scores[j].Ticker
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}
