package scoring

import (
	"time"

	"github.com/optionalpha/optionalpha/internal/config"
)

// SignalCatalyst is the signals-map key recording the penalty fraction
// applied to a score, so persisted scores show why they were docked.
const SignalCatalyst = "catalyst_penalty"

// CatalystProximityScore returns the penalty fraction for an upcoming
// earnings date. Earnings inside the imminent window carry the largest
// penalty; past or unknown dates carry none. Both functions are pure so
// the same inputs always reprice the same way.
func CatalystProximityScore(nextEarnings *time.Time, refDate time.Time, cfg config.CatalystConfig) float64 {
	if nextEarnings == nil {
		return 0
	}
	days := int(nextEarnings.Sub(refDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	switch {
	case days <= cfg.ImminentDays:
		return cfg.ImminentPenalty
	case days <= cfg.NearDays:
		return cfg.NearPenalty
	case days <= cfg.MediumDays:
		return cfg.MediumPenalty
	default:
		return 0
	}
}

// ApplyCatalystAdjustment discounts a composite score by the catalyst
// penalty fraction.
func ApplyCatalystAdjustment(score, penalty float64) float64 {
	if penalty <= 0 {
		return score
	}
	if penalty >= 1 {
		return 0
	}
	return score * (1 - penalty)
}
