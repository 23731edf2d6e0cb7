package optionsdata

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionalpha/optionalpha/internal/ports"
)

// ChainSummary aggregates both sides of the nearest-to-target chain
// into the volatility and sentiment figures the debate context wants.
type ChainSummary struct {
	Ticker       string    `json:"ticker"`
	Expiration   time.Time `json:"expiration"`
	ATMIV        float64   `json:"atm_iv"`
	PutCallRatio float64   `json:"put_call_ratio"`
	CallVolume   int64     `json:"call_volume"`
	PutVolume    int64     `json:"put_volume"`
}

// Summarize fetches the full two-sided chain nearest the target DTE and
// reduces it: ATM IV is the mean vendor IV of the strikes bracketing
// spot on each side, and the put/call ratio is total put volume over
// total call volume (zero when no calls traded).
func (s *Service) Summarize(ctx context.Context, symbol string, spot decimal.Decimal) (ChainSummary, error) {
	expiration, err := s.SelectExpiration(ctx, symbol)
	if err != nil {
		return ChainSummary{}, err
	}

	slice, err := s.fetchChain(ctx, symbol, expiration)
	if err != nil {
		return ChainSummary{}, err
	}

	summary := ChainSummary{Ticker: symbol, Expiration: expiration}
	for _, row := range slice.Calls {
		summary.CallVolume += row.Volume
	}
	for _, row := range slice.Puts {
		summary.PutVolume += row.Volume
	}
	if summary.CallVolume > 0 {
		summary.PutCallRatio = float64(summary.PutVolume) / float64(summary.CallVolume)
	}

	spotF := spot.InexactFloat64()
	var ivSum float64
	var ivN int
	for _, side := range [][]ports.OptionRow{slice.Calls, slice.Puts} {
		if iv, ok := atmIV(side, spotF); ok {
			ivSum += iv
			ivN++
		}
	}
	if ivN > 0 {
		summary.ATMIV = ivSum / float64(ivN)
	}

	s.logger.Debug().
		Str("ticker", symbol).
		Time("expiration", expiration).
		Float64("atm_iv", summary.ATMIV).
		Float64("put_call_ratio", summary.PutCallRatio).
		Msg("Chain summarized")
	return summary, nil
}

// atmIV returns the vendor IV of the quoted row whose strike sits
// closest to spot. Rows without a positive IV cannot anchor the
// at-the-money reading.
func atmIV(rows []ports.OptionRow, spot float64) (float64, bool) {
	var best float64
	bestDist := math.MaxFloat64
	found := false
	for _, row := range rows {
		if row.ImpliedVolatility <= 0 {
			continue
		}
		if row.Bid == 0 && row.Ask == 0 {
			continue
		}
		dist := math.Abs(row.Strike - spot)
		if dist < bestDist {
			best, bestDist = row.ImpliedVolatility, dist
			found = true
		}
	}
	return best, found
}
