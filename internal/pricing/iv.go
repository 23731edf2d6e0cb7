package pricing

import (
	"fmt"
	"math"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// Solver bounds and tolerances. Volatility outside [volFloor, volCeil]
// is treated as unquotable noise rather than a solution.
const (
	volFloor = 0.001
	volCeil  = 5.0
	priceTol = 1e-8

	newtonStart = 0.30
	newtonIters = 50
	bisectIters = 100
)

// ImpliedVolatility inverts the BSM price for the volatility a market
// price implies. Newton-Raphson converges in a handful of iterations on
// well-behaved contracts; deep in- or out-of-the-money contracts with
// vanishing vega fall back to bisection on the full volatility range.
func ImpliedVolatility(marketPrice, spot, strike, t, r float64, optType domain.OptionType) (float64, error) {
	if marketPrice <= 0 {
		return 0, fmt.Errorf("bsm: market price %.4f not positive", marketPrice)
	}
	if err := checkTerms(spot, strike, t); err != nil {
		return 0, err
	}

	discounted := strike * math.Exp(-r*t)
	var lowerBound float64
	switch optType {
	case domain.Call:
		lowerBound = math.Max(spot-discounted, 0)
	case domain.Put:
		lowerBound = math.Max(discounted-spot, 0)
	default:
		return 0, fmt.Errorf("bsm: invalid option type %q", optType)
	}
	// At or below the no-arbitrage floor no positive volatility exists.
	if marketPrice < lowerBound+priceTol {
		return 0, fmt.Errorf("bsm: market price %.4f below European lower bound %.4f", marketPrice, lowerBound)
	}

	vol := newtonStart
	for range newtonIters {
		price, err := Price(spot, strike, t, r, vol, optType)
		if err != nil {
			return 0, err
		}
		diff := price - marketPrice
		if math.Abs(diff) < priceTol {
			return vol, nil
		}
		vega := bsmVega(spot, strike, t, r, vol)
		if vega < priceTol {
			break
		}
		vol -= diff / vega
		if vol < volFloor || vol > volCeil {
			break
		}
	}

	return bisectVol(marketPrice, spot, strike, t, r, optType)
}

func bisectVol(marketPrice, spot, strike, t, r float64, optType domain.OptionType) (float64, error) {
	diffAt := func(vol float64) (float64, error) {
		price, err := Price(spot, strike, t, r, vol, optType)
		if err != nil {
			return 0, err
		}
		return price - marketPrice, nil
	}

	lo, hi := volFloor, volCeil
	fLo, err := diffAt(lo)
	if err != nil {
		return 0, err
	}
	fHi, err := diffAt(hi)
	if err != nil {
		return 0, err
	}
	if math.Abs(fLo) < priceTol {
		return lo, nil
	}
	if math.Abs(fHi) < priceTol {
		return hi, nil
	}
	if fLo*fHi > 0 {
		return 0, fmt.Errorf("bsm: no implied volatility in [%.3f, %.1f] matches price %.4f", volFloor, volCeil, marketPrice)
	}

	for range bisectIters {
		mid := (lo + hi) / 2
		fMid, err := diffAt(mid)
		if err != nil {
			return 0, err
		}
		if math.Abs(fMid) < priceTol {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return 0, fmt.Errorf("bsm: implied volatility did not converge for price %.4f", marketPrice)
}
