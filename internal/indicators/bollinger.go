package indicators

import (
	"math"
)

// BollingerSeries holds the three bands plus the normalized band width,
// each aligned to the input.
type BollingerSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64
}

// BollingerBands computes the bands around a simple moving-average
// middle line. The band offset uses the population standard deviation
// of each window, not the sample one; a zero-variance window collapses
// the bands onto the middle and reads as width 0.
func BollingerBands(closes []float64, period int, mult float64) (BollingerSeries, error) {
	if err := validatePeriod("bollinger", period); err != nil {
		return BollingerSeries{}, err
	}
	if mult <= 0 {
		mult = 2
	}
	if len(closes) < period {
		return BollingerSeries{}, insufficient(len(closes), period)
	}

	middle, err := SMA(closes, period)
	if err != nil {
		return BollingerSeries{}, err
	}

	n := len(closes)
	series := BollingerSeries{
		Upper:  nanSlice(n),
		Middle: middle,
		Lower:  nanSlice(n),
		Width:  nanSlice(n),
	}

	for i := period - 1; i < n; i++ {
		mean := middle[i]
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(period))

		series.Upper[i] = mean + mult*std
		series.Lower[i] = mean - mult*std
		if std == 0 || mean == 0 {
			series.Width[i] = 0
		} else {
			series.Width[i] = (series.Upper[i] - series.Lower[i]) / mean
		}
	}
	return series, nil
}
