package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// MACDSeries holds the three MACD lines, each aligned to the input.
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes Moving Average Convergence Divergence over the library's
// channel pipeline.
func MACD(closes []float64, fast, slow, signal int) (MACDSeries, error) {
	if fast < 1 || slow < 1 || signal < 1 {
		return MACDSeries{}, fmt.Errorf("macd: invalid periods fast=%d slow=%d signal=%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACDSeries{}, fmt.Errorf("macd: fast period %d must be below slow period %d", fast, slow)
	}
	want := slow + signal
	if len(closes) < want {
		return MACDSeries{}, insufficient(len(closes), want)
	}

	indicator := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdCh, signalCh := indicator.Compute(feed(closes))
	macdValues, signalValues := collectPair(macdCh, signalCh)
	if len(macdValues) == 0 {
		return MACDSeries{}, insufficient(len(closes), want)
	}

	n := len(closes)
	series := MACDSeries{
		MACD:   padLeft(macdValues, n),
		Signal: padLeft(signalValues, n),
	}
	series.Histogram = make([]float64, n)
	for i := 0; i < n; i++ {
		series.Histogram[i] = series.MACD[i] - series.Signal[i]
	}
	return series, nil
}
