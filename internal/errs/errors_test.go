package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		isNotFound,
		isInsufficient,
		isUnavailable,
		isRateLimited bool
	}{
		{"not found", NotFound("AAPL", "yfinance"), true, false, false, false},
		{"insufficient", Insufficient("MSFT", "yfinance", 40, 100), false, true, false, false},
		{"unavailable", Unavailable("*", "cboe", errors.New("connection reset")), false, false, true, false},
		{"rate limited", RateLimited("SPY", "yfinance", 2*time.Second), false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.isInsufficient, IsInsufficientData(tt.err))
			assert.Equal(t, tt.isUnavailable, IsUnavailable(tt.err))
			assert.Equal(t, tt.isRateLimited, IsRateLimited(tt.err))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("fetch quote: %w", NotFound("FAKE", "yfinance"))
	assert.True(t, IsNotFound(err))
	assert.True(t, IsDomain(err))

	err = fmt.Errorf("batch item: %w", RateLimited("AAPL", "yfinance", 0))
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsDomain(err))
}

func TestUnavailableUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("AAPL", "yfinance", cause)
	assert.True(t, errors.Is(err, cause))

	var dsErr *DataSourceUnavailableError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, "AAPL", dsErr.Ticker)
	assert.Equal(t, "yfinance", dsErr.Source)
}

func TestRetryAfterHint(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryAfter(RateLimited("AAPL", "yfinance", 5*time.Second)))
	assert.Equal(t, time.Duration(0), RetryAfter(RateLimited("AAPL", "yfinance", 0)))
	assert.Equal(t, time.Duration(0), RetryAfter(errors.New("plain")))
}

func TestDomainErrorsNeverMatchTransportPredicates(t *testing.T) {
	assert.False(t, IsUnavailable(NotFound("AAPL", "yfinance")))
	assert.False(t, IsRateLimited(Insufficient("AAPL", "yfinance", 3, 100)))
}
