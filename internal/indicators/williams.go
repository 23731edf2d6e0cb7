package indicators

import "fmt"

// WilliamsR computes Williams %R in [-100, 0]. A window with zero
// high-low range pins to -50, the scale's midpoint, instead of
// dividing by zero.
func WilliamsR(highs, lows, closes []float64, period int) ([]float64, error) {
	if err := validatePeriod("williams_r", period); err != nil {
		return nil, err
	}
	if len(highs) != len(lows) || len(highs) != len(closes) {
		return nil, fmt.Errorf("williams_r: high/low/close lengths differ: %d/%d/%d", len(highs), len(lows), len(closes))
	}
	if len(closes) < period {
		return nil, insufficient(len(closes), period)
	}

	n := len(closes)
	out := nanSlice(n)
	for i := period - 1; i < n; i++ {
		hh, ll := highs[i], lows[i]
		for j := i - period + 1; j < i; j++ {
			if highs[j] > hh {
				hh = highs[j]
			}
			if lows[j] < ll {
				ll = lows[j]
			}
		}
		if hh == ll {
			out[i] = -50
			continue
		}
		out[i] = -100 * (hh - closes[i]) / (hh - ll)
	}
	return out, nil
}
