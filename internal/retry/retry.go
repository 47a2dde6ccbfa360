package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes a bounded retry schedule. The zero value performs
// a single attempt with no delays.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first.
	MaxAttempts int

	// Delays are the waits between attempts. Attempt n sleeps
	// Delays[n-1] first; a schedule shorter than the attempt budget
	// repeats its last entry.
	Delays []time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable (terminal markers still
	// stop the loop).
	Retryable func(error) bool
}

// Default is the delivery policy: 3 attempts with 1s/2s/4s backoff.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Single performs one attempt with no backoff. Callers that degrade
// through their own fallback chain instead of looping use this, so
// both paths share one mechanism.
func Single() Policy {
	return Policy{MaxAttempts: 1}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, a
// terminal error is returned, or ctx is cancelled. Returns nil on
// success, otherwise the last error observed.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.delay(attempt-1)); err != nil {
				return lastErr
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsTerminal(err) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p Policy) delay(i int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if i >= len(p.Delays) {
		i = len(p.Delays) - 1
	}
	return p.Delays[i]
}

func sleep(ctx context.Context, d time.Duration) error {
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

// terminalError marks an error that retrying identically cannot fix,
// such as a rejected request.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so Do stops immediately instead of retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err (or anything it wraps) was marked
// with Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
