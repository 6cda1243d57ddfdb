package session

import (
	"context"
	"errors"
	"time"
)

// Backoff bounds a retry loop with exponentially growing delays.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is one attempt plus three retries, 1s apart and doubling.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

// Delay returns the wait before attempt n+1, n starting at 1.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.BaseDelay <= 0 {
		return 0
	}
	d := b.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// RetryResult reports how a retry loop ended.
type RetryResult[T any] struct {
	Value     T
	Attempts  int
	Err       error
	Exhausted bool
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx is done or
// MaxAttempts is reached. When attempts run out Err wraps ErrRetryExhausted
// with the last failure as its source.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context, attempt int) (T, error)) RetryResult[T] {
	if b.MaxAttempts < 1 {
		b.MaxAttempts = 1
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var res RetryResult[T]
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		res.Attempts = attempt

		value, err := fn(ctx, attempt)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			res.Err = perm.err
			return res
		}
		res.Err = err

		if attempt == b.MaxAttempts {
			break
		}
		if serr := sleep(ctx, b.Delay(attempt)); serr != nil {
			res.Err = serr
			return res
		}
	}

	res.Exhausted = true
	res.Err = withDetails(ErrRetryExhausted, res.Err, map[string]any{"attempts": res.Attempts})
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
