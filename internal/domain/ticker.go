package domain

import (
	"fmt"
	"time"
)

// MarketCapTier buckets tickers by market capitalization.
type MarketCapTier string

const (
	TierMicro   MarketCapTier = "micro"
	TierSmall   MarketCapTier = "small"
	TierMid     MarketCapTier = "mid"
	TierLarge   MarketCapTier = "large"
	TierMega    MarketCapTier = "mega"
	TierETF     MarketCapTier = "etf"
	TierUnknown MarketCapTier = "unknown"
)

// Market cap tier boundaries in dollars.
const (
	megaCapFloor  = 200e9
	largeCapFloor = 10e9
	midCapFloor   = 2e9
	smallCapFloor = 300e6
)

// TierForMarketCap maps a market capitalization to its tier. Zero or
// negative caps are unknown.
func TierForMarketCap(marketCap float64) MarketCapTier {
	switch {
	case marketCap <= 0:
		return TierUnknown
	case marketCap >= megaCapFloor:
		return TierMega
	case marketCap >= largeCapFloor:
		return TierLarge
	case marketCap >= midCapFloor:
		return TierMid
	case marketCap >= smallCapFloor:
		return TierSmall
	default:
		return TierMicro
	}
}

// AssetType distinguishes single-name equities from funds.
type AssetType string

const (
	AssetEquity AssetType = "equity"
	AssetETF    AssetType = "etf"
)

// TickerStatus is the lifecycle state of a universe member.
type TickerStatus string

const (
	StatusActive   TickerStatus = "active"
	StatusInactive TickerStatus = "inactive"
	StatusPending  TickerStatus = "pending"
)

// TickerInfo is a universe member. Long-lived; the only field services
// mutate in place is ConsecutiveMisses, and status moves monotonically
// from active to inactive once misses reach the deactivation threshold.
type TickerInfo struct {
	Symbol            string        `json:"symbol"`
	Name              string        `json:"name"`
	Sector            string        `json:"sector"`
	MarketCapTier     MarketCapTier `json:"market_cap_tier"`
	AssetType         AssetType     `json:"asset_type"`
	Source            string        `json:"source"`
	Tags              []string      `json:"tags,omitempty"`
	Status            TickerStatus  `json:"status"`
	DiscoveredAt      time.Time     `json:"discovered_at"`
	LastScannedAt     *time.Time    `json:"last_scanned_at,omitempty"`
	ConsecutiveMisses int           `json:"consecutive_misses"`
}

// NewTickerInfo validates and returns a universe member.
func NewTickerInfo(symbol, name, sector string, tier MarketCapTier, assetType AssetType, source string) (TickerInfo, error) {
	if symbol == "" {
		return TickerInfo{}, fmt.Errorf("ticker info: symbol is empty")
	}
	return TickerInfo{
		Symbol:        symbol,
		Name:          name,
		Sector:        sector,
		MarketCapTier: tier,
		AssetType:     assetType,
		Source:        source,
		Status:        StatusActive,
		DiscoveredAt:  time.Now().UTC(),
	}, nil
}
