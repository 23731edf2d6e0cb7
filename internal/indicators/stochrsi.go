package indicators

import "math"

// StochasticRSI rescales RSI to its own rolling range, in [0, 100].
// A flat RSI window (max equals min) pins to 50: no stretch, no signal.
func StochasticRSI(closes []float64, rsiPeriod, stochPeriod int) ([]float64, error) {
	if err := validatePeriod("stoch_rsi", rsiPeriod); err != nil {
		return nil, err
	}
	if err := validatePeriod("stoch_rsi", stochPeriod); err != nil {
		return nil, err
	}
	want := rsiPeriod + stochPeriod
	if len(closes) < want {
		return nil, insufficient(len(closes), want)
	}

	rsi, err := RSI(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}

	n := len(closes)
	out := nanSlice(n)
	// First RSI value sits at index rsiPeriod; a full stochastic window
	// is available from rsiPeriod+stochPeriod-1 on.
	for i := rsiPeriod + stochPeriod - 1; i < n; i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - stochPeriod + 1; j <= i; j++ {
			if rsi[j] < lo {
				lo = rsi[j]
			}
			if rsi[j] > hi {
				hi = rsi[j]
			}
		}
		if hi == lo {
			out[i] = 50
			continue
		}
		out[i] = 100 * (rsi[i] - lo) / (hi - lo)
	}
	return out, nil
}
