// Package retry runs operations under a bounded retry policy. Unary calls go
// through Do; pull based streams go through Stream, which re-opens the whole
// underlying stream from scratch on a retryable failure.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/wenshu/pkg/logger"
)

// ErrAttemptsExhausted is returned when a policy allows no attempts at all,
// so no underlying error was ever observed.
var ErrAttemptsExhausted = errors.New("all retry attempts failed")

// DelayFunc returns how long to wait after the failed attempt with the given
// zero-based index.
type DelayFunc func(err error, attempt int) time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// BaseDelay feeds the default constant delay when Delay is nil.
	BaseDelay time.Duration

	// Delay picks the wait after each failed attempt. Defaults to Constant(BaseDelay).
	Delay DelayFunc

	// Retryable reports whether an error may be retried. Errors it rejects end
	// the operation immediately. Defaults to retrying everything.
	Retryable func(error) bool

	// Sleep waits between attempts. Defaults to SleepContext.
	Sleep SleepFunc

	Logger *slog.Logger
}

// Constant waits d after every failure.
func Constant(d time.Duration) DelayFunc {
	return func(error, int) time.Duration {
		return d
	}
}

// MaxDelay caps every wait picked by Exponential.
const MaxDelay = time.Minute

// Exponential waits base * 2^attempt after every failure, capped at MaxDelay.
func Exponential(base time.Duration) DelayFunc {
	return func(_ error, attempt int) time.Duration {
		if base <= 0 {
			return 0
		}

		d := min(base, MaxDelay)
		for range attempt {
			if d >= MaxDelay/2 {
				return MaxDelay
			}
			d <<= 1
		}
		return d
	}
}

// ExponentialOn waits base * 2^attempt (capped at MaxDelay) after failures
// matched by match and a constant base after any other failure.
func ExponentialOn(match func(error) bool, base time.Duration) DelayFunc {
	exp := Exponential(base)
	return func(err error, attempt int) time.Duration {
		if match(err) {
			return exp(err, attempt)
		}
		return base
	}
}

// SleepContext waits for d or until ctx is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. The error of the last attempt is returned as is
// so callers can inspect it with errors.As.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if _, err := p.backoff(ctx, err, attempt); err != nil {
			return err
		}
	}

	return ErrAttemptsExhausted
}

func (p Policy) withDefaults() Policy {
	if p.Delay == nil {
		p.Delay = Constant(p.BaseDelay)
	}
	if p.Retryable == nil {
		p.Retryable = func(error) bool { return true }
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return p
}

// backoff decides what follows the failed attempt with the given zero-based
// index. A nil error means the caller should try again; otherwise the
// returned state is terminal and the error is what the caller surfaces.
func (p Policy) backoff(ctx context.Context, err error, attempt int) (State, error) {
	if !p.Retryable(err) {
		p.Logger.Warn("attempt failed with a non-retryable error",
			"attempt", attempt+1,
			"error", err,
		)
		return StateFailed, err
	}

	if attempt+1 >= p.MaxAttempts {
		p.Logger.Error("all attempts failed",
			"attempts", attempt+1,
			"error", err,
		)
		return StateExhausted, err
	}

	if cerr := ctx.Err(); cerr != nil {
		return StateFailed, cerr
	}

	d := p.Delay(err, attempt)
	p.Logger.Warn("attempt failed, retrying",
		"attempt", attempt+1,
		"max_attempts", p.MaxAttempts,
		"delay", d,
		"error", err,
	)

	if serr := p.Sleep(ctx, d); serr != nil {
		return StateFailed, serr
	}
	return StateRetrying, nil
}
