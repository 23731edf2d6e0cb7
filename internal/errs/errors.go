// Package errs defines the typed failures shared by the data services.
// Every error carries the ticker it concerns ("*" for universe-wide
// operations) and the source that produced it, so callers can log and
// route failures without string matching.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// TickerNotFoundError means the vendor reports the symbol does not exist.
type TickerNotFoundError struct {
	Ticker string
	Source string
}

func (e *TickerNotFoundError) Error() string {
	return fmt.Sprintf("ticker %s not found (source: %s)", e.Ticker, e.Source)
}

// InsufficientDataError means the request succeeded but returned fewer
// rows than the operation requires.
type InsufficientDataError struct {
	Ticker string
	Source string
	Got    int
	Want   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: got %d rows, need %d (source: %s)",
		e.Ticker, e.Got, e.Want, e.Source)
}

// DataSourceUnavailableError covers transport, parse, and
// unexpected-response failures. It wraps the underlying cause.
type DataSourceUnavailableError struct {
	Ticker string
	Source string
	Err    error
}

func (e *DataSourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data source %s unavailable for %s: %v", e.Source, e.Ticker, e.Err)
	}
	return fmt.Sprintf("data source %s unavailable for %s", e.Source, e.Ticker)
}

func (e *DataSourceUnavailableError) Unwrap() error { return e.Err }

// RateLimitError means the vendor or LLM signalled throttling. RetryAfter
// is a hint from the server; zero means no hint was given.
type RateLimitError struct {
	Ticker     string
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s (source: %s, retry after %s)",
			e.Ticker, e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s (source: %s)", e.Ticker, e.Source)
}

// NotFound builds a TickerNotFoundError.
func NotFound(ticker, source string) error {
	return &TickerNotFoundError{Ticker: ticker, Source: source}
}

// Insufficient builds an InsufficientDataError.
func Insufficient(ticker, source string, got, want int) error {
	return &InsufficientDataError{Ticker: ticker, Source: source, Got: got, Want: want}
}

// Unavailable builds a DataSourceUnavailableError wrapping cause.
func Unavailable(ticker, source string, cause error) error {
	return &DataSourceUnavailableError{Ticker: ticker, Source: source, Err: cause}
}

// RateLimited builds a RateLimitError with an optional retry-after hint.
func RateLimited(ticker, source string, retryAfter time.Duration) error {
	return &RateLimitError{Ticker: ticker, Source: source, RetryAfter: retryAfter}
}

// IsNotFound reports whether err is (or wraps) a TickerNotFoundError.
func IsNotFound(err error) bool {
	var e *TickerNotFoundError
	return errors.As(err, &e)
}

// IsInsufficientData reports whether err is (or wraps) an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var e *InsufficientDataError
	return errors.As(err, &e)
}

// IsUnavailable reports whether err is (or wraps) a DataSourceUnavailableError.
func IsUnavailable(err error) bool {
	var e *DataSourceUnavailableError
	return errors.As(err, &e)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitError.
func IsRateLimited(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

// RetryAfter extracts the retry-after hint from a rate limit error,
// zero when absent.
func RetryAfter(err error) time.Duration {
	var e *RateLimitError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsDomain reports whether err is a domain error that must never be
// retried (not found or insufficient data).
func IsDomain(err error) bool {
	return IsNotFound(err) || IsInsufficientData(err)
}
