// Package pricing implements European option valuation under the
// Black-Scholes-Merton model: closed-form prices, first-order Greeks,
// and an implied-volatility solver. All math is float64; decimal
// quantities are converted at the call site.
package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// stdNormal provides Φ (CDF) and φ (Prob) for the closed forms.
var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

const daysPerYear = 365.0

func validate(spot, strike, t, iv float64) error {
	if err := checkTerms(spot, strike, t); err != nil {
		return err
	}
	if iv <= 0 {
		return fmt.Errorf("bsm: volatility %.6f not positive", iv)
	}
	return nil
}

func checkTerms(spot, strike, t float64) error {
	if spot <= 0 {
		return fmt.Errorf("bsm: spot %.4f not positive", spot)
	}
	if strike <= 0 {
		return fmt.Errorf("bsm: strike %.4f not positive", strike)
	}
	if t <= 0 {
		return fmt.Errorf("bsm: time to expiry %.6f years not positive", t)
	}
	return nil
}

func d1d2(spot, strike, t, r, iv float64) (float64, float64) {
	d1 := (math.Log(spot/strike) + (r+0.5*iv*iv)*t) / (iv * math.Sqrt(t))
	return d1, d1 - iv*math.Sqrt(t)
}

// Price returns the fair value of a European option. t is the time to
// expiry in years, r the continuously compounded risk-free rate, iv the
// annualized volatility.
func Price(spot, strike, t, r, iv float64, optType domain.OptionType) (float64, error) {
	if err := validate(spot, strike, t, iv); err != nil {
		return 0, err
	}
	d1, d2 := d1d2(spot, strike, t, r, iv)
	discount := strike * math.Exp(-r*t)
	switch optType {
	case domain.Call:
		return spot*stdNormal.CDF(d1) - discount*stdNormal.CDF(d2), nil
	case domain.Put:
		return discount*stdNormal.CDF(-d2) - spot*stdNormal.CDF(-d1), nil
	default:
		return 0, fmt.Errorf("bsm: invalid option type %q", optType)
	}
}

// Greeks returns the sensitivities of a European option. Theta is per
// calendar day (annual theta / 365); vega is per full point of IV, so a
// move from 0.30 to 0.31 changes the price by roughly vega * 0.01.
func Greeks(spot, strike, t, r, iv float64, optType domain.OptionType) (domain.OptionGreeks, error) {
	if err := validate(spot, strike, t, iv); err != nil {
		return domain.OptionGreeks{}, err
	}
	d1, d2 := d1d2(spot, strike, t, r, iv)
	pdf := stdNormal.Prob(d1)
	sqrtT := math.Sqrt(t)
	discount := strike * math.Exp(-r*t)

	gamma := pdf / (spot * iv * sqrtT)
	vega := spot * pdf * sqrtT

	var delta, annualTheta, rho float64
	switch optType {
	case domain.Call:
		delta = stdNormal.CDF(d1)
		annualTheta = -(spot*pdf*iv)/(2*sqrtT) - r*discount*stdNormal.CDF(d2)
		rho = t * discount * stdNormal.CDF(d2)
	case domain.Put:
		delta = stdNormal.CDF(d1) - 1
		annualTheta = -(spot*pdf*iv)/(2*sqrtT) + r*discount*stdNormal.CDF(-d2)
		rho = -t * discount * stdNormal.CDF(-d2)
	default:
		return domain.OptionGreeks{}, fmt.Errorf("bsm: invalid option type %q", optType)
	}
	return domain.NewOptionGreeks(delta, gamma, annualTheta/daysPerYear, vega, rho)
}

// bsmVega is the raw sensitivity to volatility, shared with the solver.
func bsmVega(spot, strike, t, r, iv float64) float64 {
	d1, _ := d1d2(spot, strike, t, r, iv)
	return spot * stdNormal.Prob(d1) * math.Sqrt(t)
}
