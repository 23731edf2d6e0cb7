package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/trend"
)

// Simple moving average windows used by the alignment signal.
const (
	smaShort = 20
	smaMid   = 50
	smaLong  = 200
)

// SMA computes a simple moving average over the library's channel
// pipeline, aligned to the input.
func SMA(values []float64, period int) ([]float64, error) {
	if err := validatePeriod("sma", period); err != nil {
		return nil, err
	}
	if len(values) < period {
		return nil, insufficient(len(values), period)
	}
	indicator := trend.NewSmaWithPeriod[float64](period)
	out := collect(indicator.Compute(feed(values)))
	return padLeft(out, len(values)), nil
}

// SMAAlignment grades how the last close stacks against the 20/50/200
// moving averages, in [-1, 1]. Each computable comparison (close vs 20,
// 20 vs 50, 50 vs 200) contributes its sign; the result is their mean,
// so +1 means a fully stacked bullish trend. Averages whose window
// exceeds the history simply drop out of the mean.
func SMAAlignment(closes []float64) (float64, error) {
	if len(closes) < smaShort {
		return 0, insufficient(len(closes), smaShort)
	}

	last := len(closes) - 1
	price := closes[last]

	layers := []float64{price}
	for _, period := range []int{smaShort, smaMid, smaLong} {
		if len(closes) < period {
			break
		}
		series, err := SMA(closes, period)
		if err != nil {
			return 0, err
		}
		layers = append(layers, series[last])
	}

	var total, pairs float64
	for i := 1; i < len(layers); i++ {
		a, b := layers[i-1], layers[i]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		pairs++
		switch {
		case a > b:
			total++
		case a < b:
			total--
		}
	}
	if pairs == 0 {
		return 0, insufficient(len(closes), smaShort)
	}
	return total / pairs, nil
}
