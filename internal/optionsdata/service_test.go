package optionsdata

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/ratelimit"
)

type fakeVendor struct {
	expirationCalls atomic.Int64
	chainCalls      atomic.Int64

	expirations func(ctx context.Context, symbol string) ([]time.Time, error)
	chain       func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error)
}

func (f *fakeVendor) History(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
	return nil, errors.New("history: not wired in this test")
}

func (f *fakeVendor) Info(ctx context.Context, symbol string) (ports.InfoFields, error) {
	return ports.InfoFields{}, errors.New("info: not wired in this test")
}

func (f *fakeVendor) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	f.expirationCalls.Add(1)
	return f.expirations(ctx, symbol)
}

func (f *fakeVendor) OptionChain(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
	f.chainCalls.Add(1)
	return f.chain(ctx, symbol, expiration)
}

func newTestService(t *testing.T, vendor ports.VendorAPI) *Service {
	t.Helper()
	cfg := &config.Config{
		MarketData: config.MarketDataConfig{
			Period:           "6mo",
			TimeoutSeconds:   5,
			TransportRetries: 0,
			MinBars:          3,
		},
		RateLimit: config.RateLimitConfig{
			MaxConcurrent:     4,
			RequestsPerSecond: 10000,
			MaxRetries:        0,
			BackoffSeconds:    []float64{0.001},
		},
		Options: config.OptionsConfig{
			DTETarget:       45,
			DTEMin:          30,
			DTEMax:          60,
			MinOpenInterest: 100,
			MinVolume:       1,
			MaxSpreadRatio:  0.30,
			DeltaTarget:     0.35,
			DeltaMin:        0.30,
			DeltaMax:        0.40,
			RiskFreeRate:    0.04,
		},
	}
	return NewService(vendor, ratelimit.New(cfg.RateLimit), cache.New(nil), cfg, "fake")
}

func expiring(days ...int) []time.Time {
	now := time.Now()
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		out = append(out, now.AddDate(0, 0, d))
	}
	return out
}

func fp(v float64) *float64 { return &v }

// liquidRow passes every funnel stage: tight spread, healthy open
// interest and volume, no Greeks attached.
func liquidRow(strike float64, oi, vol int64) ports.OptionRow {
	return ports.OptionRow{
		ContractSymbol:    fmt.Sprintf("TEST2508C%08d", int(strike*1000)),
		Strike:            strike,
		Bid:               2.40,
		Ask:               2.60,
		LastPrice:         2.50,
		Volume:            vol,
		OpenInterest:      oi,
		ImpliedVolatility: 0.32,
	}
}

func TestSelectExpirationPicksClosestInWindow(t *testing.T) {
	vendor := &fakeVendor{expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
		return expiring(10, 35, 44, 60, 90), nil
	}}
	svc := newTestService(t, vendor)

	// 10 and 90 sit outside the 30..60 window; of 35, 44, and 60 the
	// 44-day expiration is closest to the 45-day target.
	exp, err := svc.SelectExpiration(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 44, domain.DaysUntil(exp, time.Now()))
}

func TestSelectExpirationFallsBackToNearest(t *testing.T) {
	vendor := &fakeVendor{expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
		return expiring(10, 100), nil
	}}
	svc := newTestService(t, vendor)

	exp, err := svc.SelectExpiration(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10, domain.DaysUntil(exp, time.Now()))
}

func TestSelectExpirationIgnoresPastDates(t *testing.T) {
	vendor := &fakeVendor{expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
		return expiring(-10, 45), nil
	}}
	svc := newTestService(t, vendor)

	exp, err := svc.SelectExpiration(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 45, domain.DaysUntil(exp, time.Now()))
}

func TestSelectExpirationEmptyIsInsufficient(t *testing.T) {
	vendor := &fakeVendor{expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
		return nil, nil
	}}
	svc := newTestService(t, vendor)

	_, err := svc.SelectExpiration(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errs.IsInsufficientData(err))
}

func TestFetchOptionChainNeutralShortCircuits(t *testing.T) {
	vendor := &fakeVendor{}
	svc := newTestService(t, vendor)

	contracts, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Neutral)
	require.NoError(t, err)
	assert.Empty(t, contracts)
	assert.Equal(t, int64(0), vendor.expirationCalls.Load())
	assert.Equal(t, int64(0), vendor.chainCalls.Load())
}

func TestFetchOptionChainKeepsDirectionalSide(t *testing.T) {
	slice := ports.ChainSlice{
		Calls: []ports.OptionRow{liquidRow(100, 500, 40)},
		Puts:  []ports.OptionRow{liquidRow(95, 900, 60)},
	}
	vendor := &fakeVendor{
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return expiring(45), nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return slice, nil
		},
	}
	svc := newTestService(t, vendor)

	calls, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, domain.Call, calls[0].Type)

	puts, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bearish)
	require.NoError(t, err)
	require.Len(t, puts, 1)
	assert.Equal(t, domain.Put, puts[0].Type)
}

func TestFetchOptionChainLiquidityFunnel(t *testing.T) {
	unquoted := liquidRow(90, 500, 40)
	unquoted.Bid, unquoted.Ask = 0, 0

	thinOI := liquidRow(95, 50, 40)
	thinVolume := liquidRow(100, 500, 0)

	wideSpread := liquidRow(105, 500, 40)
	wideSpread.Bid, wideSpread.Ask = 1.00, 2.00

	keeper := liquidRow(110, 500, 40)
	bigger := liquidRow(115, 2000, 40)

	vendor := &fakeVendor{
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return expiring(45), nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return ports.ChainSlice{
				Calls: []ports.OptionRow{unquoted, thinOI, thinVolume, wideSpread, keeper, bigger},
			}, nil
		},
	}
	svc := newTestService(t, vendor)

	contracts, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	// Sorted by open interest descending.
	assert.True(t, contracts[0].Strike.InexactFloat64() == 115)
	assert.True(t, contracts[1].Strike.InexactFloat64() == 110)
}

func TestFetchOptionChainDeltaBand(t *testing.T) {
	inBand := liquidRow(100, 500, 40)
	inBand.Delta, inBand.Gamma, inBand.Theta, inBand.Vega, inBand.Rho =
		fp(0.35), fp(0.02), fp(-0.05), fp(0.12), fp(0.03)

	deepITM := liquidRow(80, 900, 40)
	deepITM.Delta, deepITM.Gamma, deepITM.Theta, deepITM.Vega, deepITM.Rho =
		fp(0.92), fp(0.01), fp(-0.02), fp(0.04), fp(0.05)

	ungreeked := liquidRow(105, 300, 40)

	vendor := &fakeVendor{
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return expiring(45), nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return ports.ChainSlice{Calls: []ports.OptionRow{inBand, deepITM, ungreeked}}, nil
		},
	}
	svc := newTestService(t, vendor)

	contracts, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	strikes := []float64{
		contracts[0].Strike.InexactFloat64(),
		contracts[1].Strike.InexactFloat64(),
	}
	assert.Contains(t, strikes, 100.0, "in-band contract survives")
	assert.Contains(t, strikes, 105.0, "ungreeked contract is not delta-filtered")
}

func TestFetchOptionChainGreeksRequireFullSet(t *testing.T) {
	partial := liquidRow(100, 500, 40)
	partial.Delta, partial.Gamma = fp(0.35), fp(0.02) // theta/vega/rho missing

	invalid := liquidRow(105, 500, 40)
	invalid.Delta, invalid.Gamma, invalid.Theta, invalid.Vega, invalid.Rho =
		fp(1.8), fp(0.02), fp(-0.05), fp(0.12), fp(0.03) // delta out of range

	vendor := &fakeVendor{
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return expiring(45), nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return ports.ChainSlice{Calls: []ports.OptionRow{partial, invalid}}, nil
		},
	}
	svc := newTestService(t, vendor)

	contracts, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	for _, c := range contracts {
		assert.Nil(t, c.Greeks)
		assert.Empty(t, c.GreeksSource)
	}
}

func TestFetchOptionChainCachesBySelectedExpiration(t *testing.T) {
	vendor := &fakeVendor{
		expirations: func(ctx context.Context, symbol string) ([]time.Time, error) {
			return expiring(45), nil
		},
		chain: func(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
			return ports.ChainSlice{Calls: []ports.OptionRow{liquidRow(100, 500, 40)}}, nil
		},
	}
	svc := newTestService(t, vendor)

	_, err := svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)
	_, err = svc.FetchOptionChain(context.Background(), "AAPL", domain.Bullish)
	require.NoError(t, err)

	assert.Equal(t, int64(1), vendor.chainCalls.Load(), "second chain fetch is a cache hit")
}
