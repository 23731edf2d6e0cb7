package indicators

// OBV computes the cumulative on-balance volume series. Every position
// is defined; the first bar seeds the series at zero.
func OBV(closes, volumes []float64) ([]float64, error) {
	if len(closes) != len(volumes) {
		return nil, insufficient(len(volumes), len(closes))
	}
	if len(closes) == 0 {
		return nil, insufficient(0, 1)
	}

	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}

// OBVTrend reduces on-balance volume to a direction: +1 when OBV rose
// over the lookback, -1 when it fell, 0 when unchanged.
func OBVTrend(closes, volumes []float64, lookback int) (float64, error) {
	if err := validatePeriod("obv_trend", lookback); err != nil {
		return 0, err
	}
	if len(closes) < lookback+1 {
		return 0, insufficient(len(closes), lookback+1)
	}

	obv, err := OBV(closes, volumes)
	if err != nil {
		return 0, err
	}
	last := len(obv) - 1
	diff := obv[last] - obv[last-lookback]
	switch {
	case diff > 0:
		return 1, nil
	case diff < 0:
		return -1, nil
	default:
		return 0, nil
	}
}

// RelativeVolume compares each bar's volume to its trailing average,
// aligned to the input. A zero average yields a NaN sentinel rather
// than an infinite ratio.
func RelativeVolume(volumes []float64, period int) ([]float64, error) {
	if err := validatePeriod("relative_volume", period); err != nil {
		return nil, err
	}
	if len(volumes) < period {
		return nil, insufficient(len(volumes), period)
	}

	n := len(volumes)
	out := nanSlice(n)
	var window float64
	for i := 0; i < n; i++ {
		window += volumes[i]
		if i >= period {
			window -= volumes[i-period]
		}
		if i < period-1 {
			continue
		}
		avg := window / float64(period)
		if avg == 0 {
			continue // sentinel stays
		}
		out[i] = volumes[i] / avg
	}
	return out, nil
}
