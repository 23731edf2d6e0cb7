package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketContext is the flat data snapshot handed to the debate agents.
// It is assembled once per debate from quotes, indicators, and the
// recommended contract, then treated as read-only.
type MarketContext struct {
	Ticker        string          `json:"ticker"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	High52W       decimal.Decimal `json:"high_52w"`
	Low52W        decimal.Decimal `json:"low_52w"`
	IVRank        float64         `json:"iv_rank"`
	IVPercentile  float64         `json:"iv_percentile"`
	ATMIV30D      float64         `json:"atm_iv_30d"`
	RSI14         float64         `json:"rsi_14"`
	MACDSignal    float64         `json:"macd_signal"`
	PutCallRatio  float64         `json:"put_call_ratio"`
	NextEarnings  *time.Time      `json:"next_earnings,omitempty"`
	DTETarget     int             `json:"dte_target"`
	TargetStrike  decimal.Decimal `json:"target_strike"`
	TargetDelta   float64         `json:"target_delta"`
	Sector        string          `json:"sector"`
	DataTimestamp time.Time       `json:"data_timestamp_utc"`
}
