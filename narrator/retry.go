package narrator

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a generation call is attempted before the
// failure is surfaced to the caller. Injectable so tests can force immediate
// exhaustion.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryPolicy retries twice after the first failure, doubling the
// delay each time (2s, 4s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 2 * time.Second}
}

// Do runs op up to MaxAttempts times. The delay before attempt n+1 doubles
// relative to the previous one, and the wait respects context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
