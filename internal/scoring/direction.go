package scoring

import "github.com/optionalpha/optionalpha/internal/domain"

// Trend-strength floor below which no directional call is made.
const adxDirectionFloor = 15.0

// DetermineDirection derives a trade direction from trend strength
// (ADX), momentum (RSI, read mean-reversion style: oversold is a
// bullish setup) and trend structure (SMA alignment). A weak trend
// always reads neutral; otherwise the side with more points wins and
// SMA alignment breaks ties.
func DetermineDirection(adx, rsi, smaAlignment float64) domain.Direction {
	if adx < adxDirectionFloor {
		return domain.Neutral
	}

	var bull, bear float64
	switch {
	case rsi < 30:
		bull += 1.0
	case rsi > 30 && rsi < 50:
		bull += 0.5
	case rsi > 70:
		bear += 1.0
	case rsi > 50 && rsi < 70:
		bear += 0.5
	}
	if smaAlignment > 0.5 {
		bull += 1.0
	} else if smaAlignment < -0.5 {
		bear += 1.0
	}

	switch {
	case bull > bear:
		return domain.Bullish
	case bear > bull:
		return domain.Bearish
	case smaAlignment > 0:
		return domain.Bullish
	case smaAlignment < 0:
		return domain.Bearish
	default:
		return domain.Neutral
	}
}
