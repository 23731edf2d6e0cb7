package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time bid/ask/last snapshot for one ticker.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp_utc"`
}

// NewQuote validates and returns a quote. When both sides are quoted the
// bid must not exceed the ask.
func NewQuote(ticker string, bid, ask, last decimal.Decimal, volume int64, ts time.Time) (Quote, error) {
	if ticker == "" {
		return Quote{}, fmt.Errorf("quote: ticker is empty")
	}
	if bid.IsPositive() && ask.IsPositive() && bid.GreaterThan(ask) {
		return Quote{}, fmt.Errorf("quote %s: bid %s above ask %s", ticker, bid, ask)
	}
	if volume < 0 {
		return Quote{}, fmt.Errorf("quote %s: volume %d is negative", ticker, volume)
	}
	return Quote{
		Ticker:    ticker,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Volume:    volume,
		Timestamp: ts.UTC(),
	}, nil
}

// Mid is the bid/ask midpoint. Derived, never stored.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread is ask minus bid. Derived, never stored.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}
