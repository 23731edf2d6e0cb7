package indicators

// RSI computes the Wilder Relative Strength Index. Implemented here
// rather than on the library so the zero-loss window pins to 100: a
// series with no losses (including a perfectly flat one) reads as
// maximum strength instead of NaN.
func RSI(closes []float64, period int) ([]float64, error) {
	if err := validatePeriod("rsi", period); err != nil {
		return nil, err
	}
	if len(closes) < period+1 {
		return nil, insufficient(len(closes), period+1)
	}

	n := len(closes)
	out := nanSlice(n)

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
