// Package retry runs an operation under a bounded exponential backoff.
package retry

import (
	"context"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Base is the wait after the first failure; each following wait doubles.
	Base time.Duration
	// Cap bounds a single wait.
	Cap time.Duration
	// OnRetry, when set, observes every failure that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait before retry number n (starting at 1).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	wait := p.Base
	for i := 1; i < n; i++ {
		wait *= 2
		if p.Cap > 0 && wait >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && wait > p.Cap {
		return p.Cap
	}
	return wait
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempt budget is spent. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || (retryable != nil && !retryable(err)) {
			return err
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
