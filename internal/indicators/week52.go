package indicators

// tradingDaysPerYear bounds the 52-week lookback window.
const tradingDaysPerYear = 252

// FiftyTwoWeekPosition places the last close inside its trailing-year
// range, in [0, 1]: 0 at the low, 1 at the high. Histories shorter than
// a year use whatever range is available; a rangeless window reads as
// the midpoint.
func FiftyTwoWeekPosition(closes []float64) (float64, error) {
	if len(closes) == 0 {
		return 0, insufficient(0, 1)
	}

	start := len(closes) - tradingDaysPerYear
	if start < 0 {
		start = 0
	}
	window := closes[start:]

	lo, hi := window[0], window[0]
	for _, c := range window[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if hi == lo {
		return 0.5, nil
	}
	return (closes[len(closes)-1] - lo) / (hi - lo), nil
}
