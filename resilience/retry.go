// Package resilience holds the retry, CAPTCHA and extraction helpers shared by
// every source pipeline.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sleeper waits for d or until ctx is done. Tests inject a recording sleeper
// so backoff schedules can be asserted without real waits.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryError is returned once every attempt has failed.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. WithRetry returns it at once,
// still wrapped in a RetryError so callers see the attempt count.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// BackoffDelay returns base × 2^(attempt-1). The delay is not capped.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

type retryOptions struct {
	sleep Sleeper
	name  string
}

// RetryOption customises WithRetry.
type RetryOption func(*retryOptions)

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) RetryOption {
	return func(o *retryOptions) { o.sleep = s }
}

// WithName labels retry log lines.
func WithName(name string) RetryOption {
	return func(o *retryOptions) { o.name = name }
}

// WithRetry runs op up to maxAttempts times, waiting
// BackoffDelay(baseDelay, n) after the n-th failure. The final error is a
// *RetryError recording how many attempts ran.
func WithRetry[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxAttempts int, baseDelay time.Duration, opts ...RetryOption) (T, error) {
	o := retryOptions{sleep: SleepContext, name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, &RetryError{Attempts: attempt, Err: perm.err}
		}
		if attempt == maxAttempts {
			break
		}

		delay := BackoffDelay(baseDelay, attempt)
		slog.Debug("retrying",
			"op", o.name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if serr := o.sleep(ctx, delay); serr != nil {
			return zero, &RetryError{Attempts: attempt, Err: errors.Join(serr, lastErr)}
		}
	}
	return zero, &RetryError{Attempts: maxAttempts, Err: lastErr}
}
