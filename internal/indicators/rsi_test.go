package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/errs"
)

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func flat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestRSIWarmupSentinels(t *testing.T) {
	series, err := RSI(ramp(100, 1, 20), 14)
	require.NoError(t, err)
	require.Len(t, series, 20)

	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be a sentinel", i)
	}
	for i := 14; i < 20; i++ {
		assert.False(t, math.IsNaN(series[i]), "index %d should carry a value", i)
	}
}

func TestRSIZeroLossReadsMax(t *testing.T) {
	series, err := RSI(ramp(100, 1, 30), 14)
	require.NoError(t, err)
	latest, ok := Latest(series)
	require.True(t, ok)
	assert.Equal(t, 100.0, latest)

	series, err = RSI(flat(100, 30), 14)
	require.NoError(t, err)
	latest, ok = Latest(series)
	require.True(t, ok)
	assert.Equal(t, 100.0, latest, "a flat series has zero loss")
}

func TestRSIZeroGainReadsMin(t *testing.T) {
	series, err := RSI(ramp(100, -1, 30), 14)
	require.NoError(t, err)
	latest, ok := Latest(series)
	require.True(t, ok)
	assert.Equal(t, 0.0, latest)
}

func TestRSIStaysInRange(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}
	series, err := RSI(closes, 14)
	require.NoError(t, err)
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0, "index %d", i)
		assert.LessOrEqual(t, v, 100.0, "index %d", i)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI(ramp(100, 1, 14), 14)
	require.Error(t, err)
	assert.True(t, errs.IsInsufficientData(err))
}
