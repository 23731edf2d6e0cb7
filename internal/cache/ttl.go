package cache

import (
	"strings"
	"time"
)

// Data types routed by the cache. Keys follow
// "<source>:<data_type>:<rest>".
const (
	TypeOHLCV        = "ohlcv"
	TypeChain        = "chain"
	TypeQuote        = "quote"
	TypeIVRank       = "iv_rank"
	TypeIVPercentile = "iv_percentile"
	TypeFundamentals = "fundamentals"
	TypeEarnings     = "earnings"
	TypeFailure      = "failure"
	TypeConstituents = "constituents"
)

// unknownTTL applies to data types outside the table.
const unknownTTL = 5 * time.Minute

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}()

// Key assembles a cache key from source, data type, and the remaining
// segments.
func Key(source, dataType string, rest ...string) string {
	parts := append([]string{source, dataType}, rest...)
	return strings.Join(parts, ":")
}

// DataTypeOf extracts the data_type segment from a key. Keys without
// two separators yield "".
func DataTypeOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Volatile reports whether a data type lives in the memory tier only.
func Volatile(dataType string) bool {
	return dataType == TypeChain || dataType == TypeQuote
}

// IsMarketHours reports whether t falls inside regular trading hours,
// 09:30 to 16:00 Eastern on weekdays. No holiday calendar.
func IsMarketHours(t time.Time) bool {
	et := t.In(eastern)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// TTLFor returns the time-to-live for a data type at time t. Zero
// means the entry never expires. The second return is false for data
// types outside the table, which get the unknown-type default.
func TTLFor(dataType string, t time.Time) (time.Duration, bool) {
	market := IsMarketHours(t)
	switch dataType {
	case TypeOHLCV:
		return 0, true
	case TypeChain:
		if market {
			return 5 * time.Minute, true
		}
		return time.Hour, true
	case TypeQuote:
		if market {
			return time.Minute, true
		}
		return 5 * time.Minute, true
	case TypeIVRank, TypeIVPercentile:
		return time.Hour, true
	case TypeFundamentals, TypeEarnings, TypeFailure:
		return 24 * time.Hour, true
	case TypeConstituents:
		return 7 * 24 * time.Hour, true
	default:
		return unknownTTL, false
	}
}
