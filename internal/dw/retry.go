package dw

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is a bounded retry loop with a fixed backoff between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff is the wait between attempts.
	Backoff time.Duration

	// Sleep waits between attempts. Nil means RealSleep.
	Sleep Sleeper
}

// DefaultLockRetry tolerates writers still flushing a new file: five
// attempts one second apart.
func DefaultLockRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: time.Second}
}

// Do calls fn until it succeeds, retryable reports false for its error, or
// the attempts are used up. The last error is returned wrapped with the
// attempt count. A nil retryable retries every error.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = RealSleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if err := sleep(ctx, p.Backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
