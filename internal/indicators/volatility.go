package indicators

import "math"

// RealizedVolatility computes the annualized close-to-close volatility
// series: the sample standard deviation of daily log returns over a
// rolling window, scaled by sqrt(252). Aligned to the input; the first
// window positions are NaN.
func RealizedVolatility(closes []float64, window int) ([]float64, error) {
	if err := validatePeriod("realized_volatility", window); err != nil {
		return nil, err
	}
	if len(closes) < window+1 {
		return nil, insufficient(len(closes), window+1)
	}

	returns := make([]float64, len(closes))
	returns[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = math.Log(closes[i] / closes[i-1])
	}

	out := nanSlice(len(closes))
	annualize := math.Sqrt(tradingDaysPerYear)
	for i := window; i < len(closes); i++ {
		sd, ok := sampleStdDev(returns[i-window+1 : i+1])
		if !ok {
			continue
		}
		out[i] = sd * annualize
	}
	return out, nil
}

// sampleStdDev is the n-1 standard deviation, skipping NaN returns. A
// window with fewer than two usable returns yields no value.
func sampleStdDev(values []float64) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n < 2 {
		return 0, false
	}
	mean := sum / float64(n)

	var ss float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}
