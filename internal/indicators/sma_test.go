package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/errs"
)

func TestSMAOfConstantSeries(t *testing.T) {
	series, err := SMA(flat(42, 30), 20)
	require.NoError(t, err)
	require.Len(t, series, 30)

	for i := 0; i < 19; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be a sentinel", i)
	}
	for i := 19; i < 30; i++ {
		assert.InDelta(t, 42.0, series[i], 1e-9)
	}
}

func TestSMALagsARamp(t *testing.T) {
	series, err := SMA(ramp(100, 1, 40), 20)
	require.NoError(t, err)
	latest, ok := Latest(series)
	require.True(t, ok)
	// Mean of the last 20 closes, i.e. closes[20..39] = 120..139.
	assert.InDelta(t, 129.5, latest, 1e-9)
}

func TestSMAAlignmentStackedTrend(t *testing.T) {
	up, err := SMAAlignment(ramp(100, 1, 250))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, up, 1e-9, "price above 20 above 50 above 200")

	down, err := SMAAlignment(ramp(400, -1, 250))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, down, 1e-9)
}

func TestSMAAlignmentFlat(t *testing.T) {
	score, err := SMAAlignment(flat(100, 250))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestSMAAlignmentShortHistoryUsesAvailablePairs(t *testing.T) {
	// 60 bars: the 200-day average is out of reach, so only the
	// close-vs-20 and 20-vs-50 comparisons vote.
	score, err := SMAAlignment(ramp(100, 1, 60))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	_, err = SMAAlignment(ramp(100, 1, 10))
	require.Error(t, err)
	assert.True(t, errs.IsInsufficientData(err))
}

func TestEMATracksTrend(t *testing.T) {
	series, err := EMA(ramp(100, 1, 60), 20)
	require.NoError(t, err)
	require.Len(t, series, 60)

	latest, ok := Latest(series)
	require.True(t, ok)
	assert.Greater(t, latest, 140.0, "EMA trails but follows the ramp")
	assert.Less(t, latest, 160.0)

	constant, err := EMA(flat(42, 40), 20)
	require.NoError(t, err)
	v, ok := Latest(constant)
	require.True(t, ok)
	assert.InDelta(t, 42.0, v, 1e-9)
}
