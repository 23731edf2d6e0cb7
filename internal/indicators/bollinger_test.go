package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBollingerUsesPopulationStdDev(t *testing.T) {
	// Window mean 5, population variance 4 (sample variance would be 32/7).
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	series, err := BollingerBands(closes, 8, 2)
	require.NoError(t, err)

	last := len(closes) - 1
	assert.InDelta(t, 5.0, series.Middle[last], 1e-9)
	assert.InDelta(t, 9.0, series.Upper[last], 1e-9)
	assert.InDelta(t, 1.0, series.Lower[last], 1e-9)
	assert.InDelta(t, 1.6, series.Width[last], 1e-9)
}

func TestBollingerFlatWindowCollapses(t *testing.T) {
	series, err := BollingerBands(flat(50, 25), 20, 2)
	require.NoError(t, err)

	last := 24
	assert.Equal(t, 50.0, series.Upper[last])
	assert.Equal(t, 50.0, series.Lower[last])
	assert.Equal(t, 0.0, series.Width[last])
}

func TestBollingerWarmupSentinels(t *testing.T) {
	series, err := BollingerBands(ramp(100, 1, 30), 20, 2)
	require.NoError(t, err)
	for i := 0; i < 19; i++ {
		assert.True(t, math.IsNaN(series.Upper[i]))
		assert.True(t, math.IsNaN(series.Width[i]))
	}
	assert.False(t, math.IsNaN(series.Upper[19]))
}

func TestBollingerBandOrdering(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/2)
	}
	series, err := BollingerBands(closes, 20, 2)
	require.NoError(t, err)
	for i := 19; i < len(closes); i++ {
		assert.GreaterOrEqual(t, series.Upper[i], series.Middle[i])
		assert.GreaterOrEqual(t, series.Middle[i], series.Lower[i])
	}
}
