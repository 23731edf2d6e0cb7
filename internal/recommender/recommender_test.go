package recommender

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
)

var testNow = time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)

func testOptionsConfig() config.OptionsConfig {
	return config.OptionsConfig{
		DTETarget:       45,
		DTEMin:          30,
		DTEMax:          60,
		MinOpenInterest: 100,
		MinVolume:       1,
		MaxSpreadRatio:  0.30,
		DeltaTarget:     0.35,
		DeltaMin:        0.30,
		DeltaMax:        0.40,
	}
}

func contract(t *testing.T, optType domain.OptionType, strike float64, dte int, bid, ask float64, volume, oi int64) domain.OptionContract {
	t.Helper()
	c, err := domain.NewOptionContract(
		"AAPL", optType,
		decimal.NewFromFloat(strike),
		testNow.AddDate(0, 0, dte),
		decimal.NewFromFloat(bid), decimal.NewFromFloat(ask), decimal.NewFromFloat((bid+ask)/2),
		volume, oi, 0.32,
	)
	require.NoError(t, err)
	return c
}

func withDelta(c domain.OptionContract, delta float64) domain.OptionContract {
	return c.WithGreeks(domain.OptionGreeks{Delta: delta, Gamma: 0.02, Theta: -0.03, Vega: 0.11, Rho: 0.05}, domain.GreeksMarket)
}

func TestFilterContractsKeepsDirectionSide(t *testing.T) {
	chain := []domain.OptionContract{
		contract(t, domain.Call, 100, 45, 2.40, 2.60, 50, 500),
		contract(t, domain.Put, 95, 45, 1.90, 2.10, 50, 900),
		contract(t, domain.Call, 105, 45, 1.10, 1.30, 80, 1500),
	}

	bulls := FilterContracts(chain, domain.Bullish, testOptionsConfig())
	require.Len(t, bulls, 2)
	assert.Equal(t, int64(1500), bulls[0].OpenInterest, "sorted by open interest")
	assert.Equal(t, domain.Call, bulls[0].Type)
	assert.Equal(t, domain.Call, bulls[1].Type)

	bears := FilterContracts(chain, domain.Bearish, testOptionsConfig())
	require.Len(t, bears, 1)
	assert.Equal(t, domain.Put, bears[0].Type)

	assert.Nil(t, FilterContracts(chain, domain.Neutral, testOptionsConfig()))
}

func TestFilterContractsDropsIlliquid(t *testing.T) {
	chain := []domain.OptionContract{
		contract(t, domain.Call, 100, 45, 2.40, 2.60, 50, 500),  // keeper
		contract(t, domain.Call, 105, 45, 2.40, 2.60, 50, 40),   // thin OI
		contract(t, domain.Call, 110, 45, 2.40, 2.60, 0, 500),   // no volume
		contract(t, domain.Call, 115, 45, 1.00, 1.45, 50, 500),  // spread 37% of mid
		contract(t, domain.Call, 120, 45, 0.01, 0.01, 50, 500),  // near-zero quote, but valid
	}
	// Zero-mid rows cannot come from the constructor; build one directly.
	zeroMid := chain[0]
	zeroMid.Bid = decimal.Zero
	zeroMid.Ask = decimal.Zero
	chain = append(chain, zeroMid)

	kept := FilterContracts(chain, domain.Bullish, testOptionsConfig())
	require.Len(t, kept, 2)
	assert.Equal(t, "100", kept[0].Strike.String())
	assert.Equal(t, "120", kept[1].Strike.String())
}

func TestSelectExpirationPrefersWindow(t *testing.T) {
	chain := []domain.OptionContract{
		contract(t, domain.Call, 100, 20, 2.40, 2.60, 50, 500),
		contract(t, domain.Call, 100, 44, 2.40, 2.60, 50, 500),
		contract(t, domain.Call, 105, 44, 1.40, 1.60, 50, 500),
		contract(t, domain.Call, 100, 59, 2.40, 2.60, 50, 500),
	}

	picked := SelectExpiration(chain, testNow, testOptionsConfig())
	require.Len(t, picked, 2)
	for _, c := range picked {
		assert.Equal(t, 44, c.DTE(testNow))
	}
}

func TestSelectExpirationFallsBackToNearest(t *testing.T) {
	chain := []domain.OptionContract{
		contract(t, domain.Call, 100, 10, 2.40, 2.60, 50, 500),
		contract(t, domain.Call, 100, 100, 2.40, 2.60, 50, 500),
	}

	picked := SelectExpiration(chain, testNow, testOptionsConfig())
	require.Len(t, picked, 1)
	assert.Equal(t, 10, picked[0].DTE(testNow))
}

func TestSelectExpirationIgnoresExpired(t *testing.T) {
	chain := []domain.OptionContract{
		contract(t, domain.Call, 100, -5, 2.40, 2.60, 50, 500),
	}
	assert.Nil(t, SelectExpiration(chain, testNow, testOptionsConfig()))
	assert.Nil(t, SelectExpiration(nil, testNow, testOptionsConfig()))
}

func TestSelectByDelta(t *testing.T) {
	cfg := testOptionsConfig()

	inBand := withDelta(contract(t, domain.Call, 105, 45, 1.40, 1.60, 50, 500), 0.38)
	closer := withDelta(contract(t, domain.Call, 107, 45, 1.20, 1.40, 50, 300), 0.34)
	outside := withDelta(contract(t, domain.Call, 100, 45, 2.40, 2.60, 50, 900), 0.62)
	blind := contract(t, domain.Call, 110, 45, 0.90, 1.10, 50, 2000)

	got := SelectByDelta([]domain.OptionContract{inBand, closer, outside, blind}, cfg)
	require.NotNil(t, got)
	assert.Equal(t, "107", got.Strike.String())

	assert.Nil(t, SelectByDelta([]domain.OptionContract{outside, blind}, cfg), "nothing in band")
	assert.Nil(t, SelectByDelta(nil, cfg))
}

func TestSelectByDeltaUsesMagnitudeForPuts(t *testing.T) {
	put := withDelta(contract(t, domain.Put, 95, 45, 1.90, 2.10, 50, 500), -0.35)
	got := SelectByDelta([]domain.OptionContract{put}, testOptionsConfig())
	require.NotNil(t, got)
	assert.Equal(t, "95", got.Strike.String())
}

func TestRecommendContract(t *testing.T) {
	chain := []domain.OptionContract{
		// Wrong side.
		withDelta(contract(t, domain.Put, 95, 44, 1.90, 2.10, 50, 900), -0.35),
		// Right side, expiration too close.
		withDelta(contract(t, domain.Call, 100, 10, 2.40, 2.60, 50, 800), 0.36),
		// Right side and window, delta too deep.
		withDelta(contract(t, domain.Call, 95, 44, 3.80, 4.10, 50, 700), 0.58),
		// The pick.
		withDelta(contract(t, domain.Call, 105, 44, 1.40, 1.60, 50, 600), 0.34),
		// Same expiration, no Greeks.
		contract(t, domain.Call, 110, 44, 0.90, 1.10, 50, 500),
	}

	got := RecommendContract(chain, domain.Bullish, testNow, testOptionsConfig())
	require.NotNil(t, got)
	assert.Equal(t, "105", got.Strike.String())
	assert.Equal(t, 44, got.DTE(testNow))

	assert.Nil(t, RecommendContract(chain, domain.Neutral, testNow, testOptionsConfig()))
	assert.Nil(t, RecommendContract(nil, domain.Bullish, testNow, testOptionsConfig()))
}
