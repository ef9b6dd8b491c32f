// Package retry provides a bounded-retry wrapper with exponential backoff
// for remote calls. It is agnostic to what the operation does; callers mark
// non-transient failures with Permanent to stop retrying immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the delay before the first retry; it doubles on
	// each subsequent one (1s, 2s, 4s with the defaults).
	DefaultBaseDelay = 1000 * time.Millisecond
)

type options struct {
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a retry loop.
type Option func(*options)

// WithMaxRetries sets how many times a failed operation is retried.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithSleep replaces the sleep function. Tests use this to observe backoff
// timing without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so the retry loop stops immediately and returns it.
// Token invalidation and other authorization rejections go through here:
// retrying a revoked refresh token cannot succeed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op up to maxRetries+1 times, sleeping baseDelay*2^attempt between
// attempts. The last error is returned unchanged (unwrapped from Permanent
// if so marked); intermediate errors are discarded.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = err

		if attempt == o.maxRetries {
			break
		}
		delay := o.baseDelay << uint(attempt)
		if err := o.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
