// Package domain holds the value objects that flow through the engine.
// Everything here is constructed through a validating factory and treated
// as read-only afterwards; services copy rather than mutate. Money is
// decimal end to end and only becomes float64 inside indicator and
// option-pricing math.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is a single daily OHLCV observation.
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewPriceBar validates the OHLC relationships and returns the bar.
// All four prices must be strictly positive, the low must not exceed the
// open or close, the high must not be below the open or close, and the
// volume must be non-negative.
func NewPriceBar(date time.Time, open, high, low, closeP decimal.Decimal, volume int64) (PriceBar, error) {
	if !open.IsPositive() || !high.IsPositive() || !low.IsPositive() || !closeP.IsPositive() {
		return PriceBar{}, fmt.Errorf("price bar %s: OHLC must be strictly positive", date.Format("2006-01-02"))
	}
	if volume < 0 {
		return PriceBar{}, fmt.Errorf("price bar %s: volume %d is negative", date.Format("2006-01-02"), volume)
	}
	if low.GreaterThan(decimal.Min(open, closeP)) {
		return PriceBar{}, fmt.Errorf("price bar %s: low %s above min(open, close)", date.Format("2006-01-02"), low)
	}
	if high.LessThan(decimal.Max(open, closeP)) {
		return PriceBar{}, fmt.Errorf("price bar %s: high %s below max(open, close)", date.Format("2006-01-02"), high)
	}
	return PriceBar{
		Date:   date.UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeP,
		Volume: volume,
	}, nil
}

// Bars is an ordered series of daily bars, oldest first.
type Bars []PriceBar

// Closes returns the close series as float64 for indicator feeds.
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close.InexactFloat64()
	}
	return out
}

// Highs returns the high series as float64.
func (b Bars) Highs() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.High.InexactFloat64()
	}
	return out
}

// Lows returns the low series as float64.
func (b Bars) Lows() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Low.InexactFloat64()
	}
	return out
}

// Volumes returns the volume series as float64.
func (b Bars) Volumes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = float64(bar.Volume)
	}
	return out
}

// Last returns the most recent bar; ok is false for an empty series.
func (b Bars) Last() (PriceBar, bool) {
	if len(b) == 0 {
		return PriceBar{}, false
	}
	return b[len(b)-1], true
}
