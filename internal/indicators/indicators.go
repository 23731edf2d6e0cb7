// Package indicators computes the technical series behind the scanner's
// composite score. Library-backed indicators ride cinar/indicator's
// channel API; the rest are implemented here where the library has no
// equivalent or where degenerate inputs need a pinned value.
//
// Every series function returns a slice aligned to its input: positions
// before the warmup are NaN sentinels, so output[i] always describes
// input[i].
package indicators

import (
	"fmt"
	"math"

	"github.com/optionalpha/optionalpha/internal/errs"
)

// insufficient reports a series shorter than an indicator's warmup.
func insufficient(got, want int) error {
	return errs.Insufficient("series", "indicators", got, want)
}

// feed converts a slice into the closed channel cinar indicators consume.
func feed(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// collect drains a cinar output channel.
func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// collectPair drains two synchronized cinar output channels in lockstep;
// reading one to exhaustion first would deadlock the producer.
func collectPair(a, b <-chan float64) ([]float64, []float64) {
	var as, bs []float64
	for {
		av, aok := <-a
		bv, bok := <-b
		if !aok || !bok {
			break
		}
		as = append(as, av)
		bs = append(bs, bv)
	}
	return as, bs
}

// padLeft prepends NaN sentinels so the series aligns with an input of
// length n.
func padLeft(values []float64, n int) []float64 {
	if len(values) >= n {
		return values[len(values)-n:]
	}
	out := make([]float64, n)
	pad := n - len(values)
	for i := 0; i < pad; i++ {
		out[i] = math.NaN()
	}
	copy(out[pad:], values)
	return out
}

// nanSlice returns n sentinels.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Latest returns the most recent non-sentinel value of a series.
func Latest(values []float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i], true
		}
	}
	return 0, false
}

func validatePeriod(name string, period int) error {
	if period < 1 {
		return fmt.Errorf("%s: period must be >= 1, got %d", name, period)
	}
	return nil
}
