// Package retry implements the bounded retry policy applied to idempotent
// reads and best-effort notification delivery. Only transient faults are
// retried; classified failures surface immediately.
package retry

import (
	"context"
	"errors"
	"time"

	apperrors "sentinel/pkg/errors"
)

type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the pause between attempts.
	Delay time.Duration
}

func NewPolicy(maxAttempts int, delay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{MaxAttempts: maxAttempts, Delay: delay}
}

// Do runs op until it succeeds, fails terminally, or attempts are exhausted.
// The last error is returned unmodified.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(p.Delay):
		}
	}

	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// IsTransient reports whether an error is worth retrying. Classified
// application errors (validation, conflict, state) and context expiry are
// terminal; everything else is assumed to be a transient infrastructure
// fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsAppError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
