package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// Textbook case: S=100, K=100, t=1y, r=5%, sigma=20%.
const (
	tbSpot   = 100.0
	tbStrike = 100.0
	tbT      = 1.0
	tbRate   = 0.05
	tbVol    = 0.20
)

func TestPriceTextbookValues(t *testing.T) {
	call, err := Price(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, call, 1e-3)

	put, err := Price(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Put)
	require.NoError(t, err)
	assert.InDelta(t, 5.5735, put, 1e-3)
}

func TestPricePutCallParity(t *testing.T) {
	const (
		spot = 100.0
		ty   = 0.5
		r    = 0.04
		iv   = 0.25
	)
	for _, strike := range []float64{60, 80, 95, 100, 105, 120, 140, 180} {
		call, err := Price(spot, strike, ty, r, iv, domain.Call)
		require.NoError(t, err)
		put, err := Price(spot, strike, ty, r, iv, domain.Put)
		require.NoError(t, err)

		parity := spot - strike*math.Exp(-r*ty)
		assert.InDelta(t, parity, call-put, 1e-6, "strike %.0f", strike)
	}
}

func TestPriceRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name                 string
		spot, strike, ty, iv float64
	}{
		{"zero spot", 0, 100, 1, 0.2},
		{"negative strike", 100, -5, 1, 0.2},
		{"expired", 100, 100, 0, 0.2},
		{"zero vol", 100, 100, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Price(tc.spot, tc.strike, tc.ty, tbRate, tc.iv, domain.Call)
			assert.Error(t, err)
		})
	}

	_, err := Price(100, 100, 1, 0.05, 0.2, domain.OptionType("straddle"))
	assert.ErrorContains(t, err, "invalid option type")
}

func TestGreeksTextbookValues(t *testing.T) {
	call, err := Greeks(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)

	assert.InDelta(t, 0.6368, call.Delta, 1e-4)
	assert.InDelta(t, 0.01876, call.Gamma, 1e-4)
	assert.InDelta(t, 37.524, call.Vega, 1e-2)
	assert.InDelta(t, -6.414/365, call.Theta, 1e-4)
	assert.InDelta(t, 53.232, call.Rho, 1e-2)

	put, err := Greeks(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Put)
	require.NoError(t, err)

	// Delta parity, shared gamma/vega, opposite-signed rho.
	assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-9)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.InDelta(t, call.Vega, put.Vega, 1e-12)
	assert.Negative(t, put.Rho)
}

func TestGreeksMatchFiniteDifferences(t *testing.T) {
	const h = 1e-5
	g, err := Greeks(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)

	up, err := Price(tbSpot+h, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)
	down, err := Price(tbSpot-h, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)
	assert.InDelta(t, g.Delta, (up-down)/(2*h), 1e-6, "delta vs dPrice/dSpot")

	volUp, err := Price(tbSpot, tbStrike, tbT, tbRate, tbVol+h, domain.Call)
	require.NoError(t, err)
	volDown, err := Price(tbSpot, tbStrike, tbT, tbRate, tbVol-h, domain.Call)
	require.NoError(t, err)
	assert.InDelta(t, g.Vega, (volUp-volDown)/(2*h), 1e-4, "vega vs dPrice/dVol")

	// Theta is quoted per calendar day.
	shorter, err := Price(tbSpot, tbStrike, tbT-1.0/365, tbRate, tbVol, domain.Call)
	require.NoError(t, err)
	base, err := Price(tbSpot, tbStrike, tbT, tbRate, tbVol, domain.Call)
	require.NoError(t, err)
	assert.InDelta(t, g.Theta, shorter-base, 1e-4)
}

func TestGreeksDeltaBounds(t *testing.T) {
	for _, strike := range []float64{50, 90, 100, 110, 200} {
		call, err := Greeks(100, strike, 0.25, 0.04, 0.3, domain.Call)
		require.NoError(t, err)
		assert.Greater(t, call.Delta, 0.0)
		assert.Less(t, call.Delta, 1.0)

		put, err := Greeks(100, strike, 0.25, 0.04, 0.3, domain.Put)
		require.NoError(t, err)
		assert.Less(t, put.Delta, 0.0)
		assert.Greater(t, put.Delta, -1.0)
	}
}
