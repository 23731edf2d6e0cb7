package indicators

import "github.com/cinar/indicator/v2/trend"

// EMA computes an exponential moving average over the library's channel
// pipeline, aligned to the input.
func EMA(values []float64, period int) ([]float64, error) {
	if err := validatePeriod("ema", period); err != nil {
		return nil, err
	}
	if len(values) < period {
		return nil, insufficient(len(values), period)
	}
	indicator := trend.NewEmaWithPeriod[float64](period)
	out := collect(indicator.Compute(feed(values)))
	return padLeft(out, len(values)), nil
}
