package indicators

import (
	"github.com/optionalpha/optionalpha/internal/domain"
)

// Canonical signal keys. Scoring weights in configuration bind to these
// names.
const (
	SignalRSI            = "rsi_14"
	SignalMACDHistogram  = "macd_histogram"
	SignalSMAAlignment   = "sma_alignment"
	SignalEMA            = "ema_20"
	SignalADX            = "adx_14"
	SignalBBWidth        = "bb_width"
	SignalWilliamsR      = "williams_r"
	SignalStochRSI       = "stoch_rsi"
	SignalOBVTrend       = "obv_trend"
	SignalRelativeVolume = "relative_volume"
	SignalWeek52Position = "week52_position"
)

// Default indicator parameters.
const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	emaPeriod      = 20
	bbPeriod       = 20
	bbMultiplier   = 2.0
	adxPeriod      = 14
	williamsPeriod = 14
	stochRSIPeriod = 14
	obvLookback    = 20
	relVolPeriod   = 20
)

// Signals computes every indicator the history supports and returns the
// most recent non-sentinel value of each, keyed canonically. Indicators
// whose warmup exceeds the history are simply absent; an empty map means
// the symbol had no computable indicators at all.
func Signals(bars domain.Bars) map[string]float64 {
	out := make(map[string]float64, 11)
	if len(bars) == 0 {
		return out
	}

	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	volumes := bars.Volumes()

	if series, err := RSI(closes, rsiPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalRSI] = v
		}
	}
	if series, err := MACD(closes, macdFast, macdSlow, macdSignal); err == nil {
		if v, ok := Latest(series.Histogram); ok {
			out[SignalMACDHistogram] = v
		}
	}
	if v, err := SMAAlignment(closes); err == nil {
		out[SignalSMAAlignment] = v
	}
	if series, err := EMA(closes, emaPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalEMA] = v
		}
	}
	if series, err := BollingerBands(closes, bbPeriod, bbMultiplier); err == nil {
		if v, ok := Latest(series.Width); ok {
			out[SignalBBWidth] = v
		}
	}
	if series, err := ADX(highs, lows, closes, adxPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalADX] = v
		}
	}
	if series, err := WilliamsR(highs, lows, closes, williamsPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalWilliamsR] = v
		}
	}
	if series, err := StochasticRSI(closes, rsiPeriod, stochRSIPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalStochRSI] = v
		}
	}
	if v, err := OBVTrend(closes, volumes, obvLookback); err == nil {
		out[SignalOBVTrend] = v
	}
	if series, err := RelativeVolume(volumes, relVolPeriod); err == nil {
		if v, ok := Latest(series); ok {
			out[SignalRelativeVolume] = v
		}
	}
	if v, err := FiftyTwoWeekPosition(closes); err == nil {
		out[SignalWeek52Position] = v
	}
	return out
}
