package scan

import (
	"time"

	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/pricing"
)

// fillGreeks attaches model Greeks to contracts the vendor returned
// bare, so delta selection can consider them. Contracts that already
// carry market Greeks pass through untouched, as do contracts the model
// cannot price (no spot, expired, zero IV).
func fillGreeks(contracts []domain.OptionContract, spot, riskFree float64, now time.Time) []domain.OptionContract {
	if len(contracts) == 0 || spot <= 0 {
		return contracts
	}
	out := make([]domain.OptionContract, len(contracts))
	for i, c := range contracts {
		out[i] = c
		if c.Greeks != nil {
			continue
		}
		years := float64(c.DTE(now)) / 365.0
		g, err := pricing.Greeks(spot, c.Strike.InexactFloat64(), years, riskFree, c.IV, c.Type)
		if err != nil {
			continue
		}
		out[i] = c.WithGreeks(g, domain.GreeksCalculated)
	}
	return out
}
