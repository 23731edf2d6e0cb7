package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/metrics"
)

// transportBackoff is the fixed retry schedule for transport failures.
var transportBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Retrier re-runs vendor calls that failed in transport. Domain errors
// (not found, insufficient data) and rate-limit errors pass through
// untouched; the rate limiter above owns throttling retries. Each
// attempt is recorded against the vendor request counters.
type Retrier struct {
	source     string
	maxRetries int
	logger     zerolog.Logger
}

// NewRetrier builds a transport retrier for one vendor source.
func NewRetrier(source string, cfg config.MarketDataConfig) *Retrier {
	retries := cfg.TransportRetries
	if retries < 0 {
		retries = 0
	}
	return &Retrier{
		source:     source,
		maxRetries: retries,
		logger:     config.NewLogger("marketdata"),
	}
}

// Source reports the vendor name this retrier fronts.
func (r *Retrier) Source() string {
	return r.source
}

// Do runs fn, retrying transport failures per the schedule. The last
// error is returned after exhaustion; it already wraps the original
// cause as DataSourceUnavailable.
func (r *Retrier) Do(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	attempts := r.maxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := fn(ctx)
		metrics.RecordVendorRequest(r.source, call, float64(time.Since(start).Milliseconds()), err)
		if err == nil {
			return nil
		}
		if !errs.IsUnavailable(err) || errs.IsRateLimited(err) {
			return err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		delay := transportBackoff[min(attempt, len(transportBackoff)-1)]
		metrics.TransportRetries.Inc()
		r.logger.Warn().
			Str("call", call).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Transport failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error().
		Str("call", call).
		Int("attempts", attempts).
		Msg("Transport retries exhausted")
	return lastErr
}

// RetryFetch runs fn under the retrier and carries its value out.
func RetryFetch[T any](ctx context.Context, r *Retrier, call string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, call, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
