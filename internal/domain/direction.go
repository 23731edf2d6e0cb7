package domain

// Direction classifies the directional bias of a ticker.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d == Bullish || d == Bearish || d == Neutral
}
