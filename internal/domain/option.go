package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the contract side.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// GreeksSource records where a contract's Greeks came from.
type GreeksSource string

const (
	GreeksMarket     GreeksSource = "market"
	GreeksCalculated GreeksSource = "calculated"
	GreeksModel      GreeksSource = "model"
)

// OptionGreeks are the first-order sensitivities of an option price.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// NewOptionGreeks rejects values outside their defined ranges:
// delta in [-1, 1], gamma >= 0, vega >= 0.
func NewOptionGreeks(delta, gamma, theta, vega, rho float64) (OptionGreeks, error) {
	if delta < -1 || delta > 1 {
		return OptionGreeks{}, fmt.Errorf("greeks: delta %.4f outside [-1, 1]", delta)
	}
	if gamma < 0 {
		return OptionGreeks{}, fmt.Errorf("greeks: gamma %.4f is negative", gamma)
	}
	if vega < 0 {
		return OptionGreeks{}, fmt.Errorf("greeks: vega %.4f is negative", vega)
	}
	return OptionGreeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega, Rho: rho}, nil
}

// OptionContract is one row of an option chain. IV arrives from the
// vendor already annualized and is stored verbatim.
type OptionContract struct {
	Ticker       string          `json:"ticker"`
	Type         OptionType      `json:"type"`
	Strike       decimal.Decimal `json:"strike"`
	Expiration   time.Time       `json:"expiration"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	IV           float64         `json:"iv"`
	Greeks       *OptionGreeks   `json:"greeks,omitempty"`
	GreeksSource GreeksSource    `json:"greeks_source,omitempty"`
}

// NewOptionContract validates and returns a contract.
func NewOptionContract(ticker string, optType OptionType, strike decimal.Decimal, expiration time.Time,
	bid, ask, last decimal.Decimal, volume, openInterest int64, iv float64) (OptionContract, error) {
	if ticker == "" {
		return OptionContract{}, fmt.Errorf("option contract: ticker is empty")
	}
	if optType != Call && optType != Put {
		return OptionContract{}, fmt.Errorf("option contract %s: invalid type %q", ticker, optType)
	}
	if !strike.IsPositive() {
		return OptionContract{}, fmt.Errorf("option contract %s: strike %s not positive", ticker, strike)
	}
	if volume < 0 || openInterest < 0 {
		return OptionContract{}, fmt.Errorf("option contract %s: negative volume or open interest", ticker)
	}
	if iv <= 0 {
		return OptionContract{}, fmt.Errorf("option contract %s: iv %.4f not positive", ticker, iv)
	}
	return OptionContract{
		Ticker:       ticker,
		Type:         optType,
		Strike:       strike,
		Expiration:   expiration.UTC(),
		Bid:          bid,
		Ask:          ask,
		Last:         last,
		Volume:       volume,
		OpenInterest: openInterest,
		IV:           iv,
	}, nil
}

// WithGreeks returns a copy of the contract carrying validated Greeks
// and their provenance.
func (c OptionContract) WithGreeks(g OptionGreeks, source GreeksSource) OptionContract {
	c.Greeks = &g
	c.GreeksSource = source
	return c
}

// Mid is the bid/ask midpoint.
func (c OptionContract) Mid() decimal.Decimal {
	return c.Bid.Add(c.Ask).Div(decimal.NewFromInt(2))
}

// Spread is ask minus bid.
func (c OptionContract) Spread() decimal.Decimal {
	return c.Ask.Sub(c.Bid)
}

// DTE is the signed number of calendar days from now until expiration.
func (c OptionContract) DTE(now time.Time) int {
	return DaysUntil(c.Expiration, now)
}

// DaysUntil counts whole calendar days from now to target; negative when
// target is in the past.
func DaysUntil(target, now time.Time) int {
	t := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(n).Hours() / 24)
}
