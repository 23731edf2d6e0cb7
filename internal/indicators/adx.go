package indicators

import (
	"fmt"
	"math"
)

// ADX computes Wilder's Average Directional Index. The library carries
// no ADX, so true range and directional movement are smoothed here
// directly. A windless series (zero smoothed true range) reads as ADX 0.
func ADX(highs, lows, closes []float64, period int) ([]float64, error) {
	if err := validatePeriod("adx", period); err != nil {
		return nil, err
	}
	if len(highs) != len(lows) || len(highs) != len(closes) {
		return nil, fmt.Errorf("adx: high/low/close lengths differ: %d/%d/%d", len(highs), len(lows), len(closes))
	}
	want := 2 * period
	if len(closes) < want {
		return nil, insufficient(len(closes), want)
	}

	n := len(closes)
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]),
				math.Abs(lows[i]-closes[i-1])))

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]
		if sum := plusDI + minusDI; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}

	adx := smoothWilder(dx[period:], period)

	out := nanSlice(n)
	for i := period - 1; i < len(adx); i++ {
		out[i+period] = adx[i]
	}
	return out, nil
}

// smoothWilder seeds with a simple average over the first window, then
// applies Wilder's recursive smoothing.
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n < period {
		return result
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return result
}
