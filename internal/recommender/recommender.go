// Package recommender picks at most one tradable contract from an
// option chain: filter to the liquid side matching the direction,
// narrow to the best expiration, then take the contract whose delta
// sits closest to the target band. Every stage is pure so a given chain
// and clock always recommend the same contract.
package recommender

import (
	"math"
	"sort"
	"time"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
)

// FilterContracts keeps the side implied by the direction and drops
// rows too illiquid to quote honestly: thin open interest or volume,
// a zero midpoint, or a spread wider than the configured fraction of
// the mid. The result is ordered by open interest descending so later
// stages prefer the busiest strikes. A neutral direction recommends
// nothing.
func FilterContracts(contracts []domain.OptionContract, direction domain.Direction, cfg config.OptionsConfig) []domain.OptionContract {
	var side domain.OptionType
	switch direction {
	case domain.Bullish:
		side = domain.Call
	case domain.Bearish:
		side = domain.Put
	default:
		return nil
	}

	kept := make([]domain.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.Type != side {
			continue
		}
		if c.OpenInterest < cfg.MinOpenInterest || c.Volume < cfg.MinVolume {
			continue
		}
		mid := c.Mid()
		if !mid.IsPositive() {
			continue
		}
		if c.Spread().Div(mid).InexactFloat64() > cfg.MaxSpreadRatio {
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].OpenInterest != kept[j].OpenInterest {
			return kept[i].OpenInterest > kept[j].OpenInterest
		}
		return kept[i].Strike.LessThan(kept[j].Strike)
	})
	return kept
}

// SelectExpiration narrows the chain to a single expiration: the one
// whose DTE is nearest the target inside the configured window, or the
// nearest-to-target future expiration when nothing lands in the window.
// Expired contracts never qualify.
func SelectExpiration(contracts []domain.OptionContract, now time.Time, cfg config.OptionsConfig) []domain.OptionContract {
	type candidate struct {
		expiration time.Time
		dte        int
	}
	seen := make(map[time.Time]bool)
	var candidates []candidate
	for _, c := range contracts {
		if seen[c.Expiration] {
			continue
		}
		seen[c.Expiration] = true
		if dte := c.DTE(now); dte > 0 {
			candidates = append(candidates, candidate{c.Expiration, dte})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expiration.Before(candidates[j].expiration)
	})

	distance := func(dte int) int {
		d := dte - cfg.DTETarget
		if d < 0 {
			return -d
		}
		return d
	}

	best := -1
	for i, c := range candidates {
		if c.dte < cfg.DTEMin || c.dte > cfg.DTEMax {
			continue
		}
		if best == -1 || distance(c.dte) < distance(candidates[best].dte) {
			best = i
		}
	}
	if best == -1 {
		for i, c := range candidates {
			if best == -1 || distance(c.dte) < distance(candidates[best].dte) {
				best = i
			}
		}
	}

	chosen := candidates[best].expiration
	var out []domain.OptionContract
	for _, c := range contracts {
		if c.Expiration.Equal(chosen) {
			out = append(out, c)
		}
	}
	return out
}

// SelectByDelta picks the contract whose |delta| lands in the band and
// closest to the target. Contracts without Greeks cannot qualify; ties
// go to the higher open interest.
func SelectByDelta(contracts []domain.OptionContract, cfg config.OptionsConfig) *domain.OptionContract {
	var best *domain.OptionContract
	var bestDist float64
	for i := range contracts {
		c := &contracts[i]
		if c.Greeks == nil {
			continue
		}
		absDelta := math.Abs(c.Greeks.Delta)
		if absDelta < cfg.DeltaMin || absDelta > cfg.DeltaMax {
			continue
		}
		dist := math.Abs(absDelta - cfg.DeltaTarget)
		if best == nil || dist < bestDist ||
			(dist == bestDist && c.OpenInterest > best.OpenInterest) {
			best, bestDist = c, dist
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

// RecommendContract runs the full funnel. A nil result means the chain
// offered nothing liquid at a reasonable delta for this direction.
func RecommendContract(contracts []domain.OptionContract, direction domain.Direction, now time.Time, cfg config.OptionsConfig) *domain.OptionContract {
	liquid := FilterContracts(contracts, direction, cfg)
	if len(liquid) == 0 {
		return nil
	}
	nearest := SelectExpiration(liquid, now, cfg)
	if len(nearest) == 0 {
		return nil
	}
	return SelectByDelta(nearest, cfg)
}
