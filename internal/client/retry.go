package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// RetryPolicy controls how idempotent (GET) calls are retried.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <= 1 disables retries
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the exponential growth
	Jitter      float64       // fraction of the delay randomized, 0..1
}

// DefaultRetryPolicy returns three attempts with 200ms exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	}
}

// Backoff returns the delay before attempt (0-based) + 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		spread := float64(delay) * min(p.Jitter, 1)
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return max(delay, 0)
}

// isRetryable classifies whether a failed call may be attempted again.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Cancellation means the caller is gone.
	if errors.Is(err, context.Canceled) {
		return false
	}
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.IsRetryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// waitBackoff sleeps for delay or returns early if ctx is cancelled.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
