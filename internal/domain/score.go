package domain

import "fmt"

// TickerScore is one ranked row of a scan. Signals maps indicator name to
// its most recent value; Rank starts at 1 with no gaps within a scan.
type TickerScore struct {
	Ticker    string             `json:"ticker"`
	Score     float64            `json:"score"`
	Signals   map[string]float64 `json:"signals"`
	Rank      int                `json:"rank"`
	Direction Direction          `json:"direction"`
}

// NewTickerScore validates and returns a score row.
func NewTickerScore(ticker string, score float64, signals map[string]float64, rank int) (TickerScore, error) {
	if ticker == "" {
		return TickerScore{}, fmt.Errorf("ticker score: ticker is empty")
	}
	if rank < 1 {
		return TickerScore{}, fmt.Errorf("ticker score %s: rank %d below 1", ticker, rank)
	}
	return TickerScore{
		Ticker:    ticker,
		Score:     score,
		Signals:   signals,
		Rank:      rank,
		Direction: Neutral,
	}, nil
}
