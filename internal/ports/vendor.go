// Package ports declares the interfaces and wire-stable types at the
// engine boundary. External collaborators (CLI, HTTP/SSE servers,
// report renderers) consume these; adapters (vendor client, store,
// LLM client) implement them.
package ports

import (
	"context"
	"time"
)

// HistoryRow is one daily OHLCV row as delivered by the vendor, before
// conversion to domain types.
type HistoryRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// InfoFields is the vendor's flat ticker summary. Zero values mean the
// vendor omitted the field.
type InfoFields struct {
	Symbol           string
	ShortName        string
	QuoteType        string // "EQUITY", "ETF", ...
	Sector           string
	Industry         string
	MarketCap        float64
	Price            float64
	Bid              float64
	Ask              float64
	Volume           int64
	FiftyTwoWeekHigh float64
	FiftyTwoWeekLow  float64
	EarningsDate     *time.Time
}

// OptionRow is one option contract row from the vendor chain. Greeks
// pointers are nil when the vendor does not publish them.
type OptionRow struct {
	ContractSymbol    string
	Strike            float64
	Bid               float64
	Ask               float64
	LastPrice         float64
	Volume            int64
	OpenInterest      int64
	ImpliedVolatility float64 // annualized
	InTheMoney        bool
	Delta             *float64
	Gamma             *float64
	Theta             *float64
	Vega              *float64
	Rho               *float64
}

// ChainSlice is one expiration's worth of chain data.
type ChainSlice struct {
	Expiration time.Time
	Calls      []OptionRow
	Puts       []OptionRow
}

// VendorAPI is the market-data vendor seam. Implementations map vendor
// failures onto the error taxonomy: unknown symbol → TickerNotFound,
// throttling → RateLimitExceeded, transport trouble →
// DataSourceUnavailable.
type VendorAPI interface {
	// History returns daily bars for a lookback period such as "1y".
	History(ctx context.Context, symbol, period string) ([]HistoryRow, error)

	// Info returns the flat ticker summary.
	Info(ctx context.Context, symbol string) (InfoFields, error)

	// Expirations returns the available option expiration dates.
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)

	// OptionChain returns calls and puts for one expiration.
	OptionChain(ctx context.Context, symbol string, expiration time.Time) (ChainSlice, error)
}

// UniverseSource fetches the raw optionable-listing document.
type UniverseSource interface {
	FetchListing(ctx context.Context) ([]byte, error)
}

// ConstituentSource fetches index membership, e.g. S&P 500 symbols.
type ConstituentSource interface {
	Constituents(ctx context.Context) ([]string, error)
}
