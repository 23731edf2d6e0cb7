// Package ratelimit gates all vendor calls behind a concurrency
// semaphore and a token bucket, and retries throttled calls with
// exponential backoff.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/metrics"
)

// Limiter bounds in-flight vendor calls and their aggregate rate. Only
// rate-limit errors are retried; domain and transport errors pass
// through to the caller untouched.
type Limiter struct {
	sem        *semaphore.Weighted
	bucket     *rate.Limiter
	inFlight   atomic.Int64
	maxRetries int
	backoff    []time.Duration
	logger     zerolog.Logger
}

// New builds a limiter from configuration. An empty backoff schedule
// falls back to a single one-second step.
func New(cfg config.RateLimitConfig) *Limiter {
	backoff := cfg.BackoffSchedule()
	if len(backoff) == 0 {
		backoff = []time.Duration{time.Second}
	}
	return &Limiter{
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		bucket:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.MaxConcurrent),
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		logger:     config.NewLogger("ratelimit"),
	}
}

// Do runs fn under the limiter. The semaphore is held only while fn is
// in flight; backoff sleeps happen with the slot released so other
// callers keep moving.
func (l *Limiter) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempts := l.maxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.once(ctx, fn)
		if err == nil {
			return nil
		}
		if !errs.IsRateLimited(err) {
			return err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		delay := l.delayFor(attempt, err)
		metrics.RateLimitRetries.Inc()
		l.logger.Warn().
			Str("call", label).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Rate limited, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	l.logger.Error().
		Str("call", label).
		Int("attempts", attempts).
		Msg("Rate limit retries exhausted")
	return lastErr
}

func (l *Limiter) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// delayFor picks the backoff step, clamped to the last entry. A server
// supplied retry-after hint overrides the schedule.
func (l *Limiter) delayFor(attempt int, err error) time.Duration {
	if ra := errs.RetryAfter(err); ra > 0 {
		return ra
	}
	if attempt >= len(l.backoff) {
		return l.backoff[len(l.backoff)-1]
	}
	return l.backoff[attempt]
}

// Stats is a point-in-time reading of limiter occupancy.
type Stats struct {
	InFlight int64
	Tokens   float64
}

// Stats reports calls holding a slot and the bucket fill.
func (l *Limiter) Stats() Stats {
	return Stats{InFlight: l.inFlight.Load(), Tokens: l.bucket.Tokens()}
}

// Execute runs fn under the limiter and carries its value out. Methods
// cannot be generic, hence the package-level helper.
func Execute[T any](ctx context.Context, l *Limiter, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
