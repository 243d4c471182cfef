package report

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/flowtrace/errors"
)

// RetryPolicy controls how often a failed publish is attempted again.
// Only transient publish errors are retried.
type RetryPolicy struct {
	MaxAttempts  int           // Total attempts; 0 or 1 means a single attempt
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound of the backoff delay
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	Jitter       bool          // Add up to 25% random delay
}

// NoRetry publishes exactly once
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// DefaultRetryPolicy retries a failed publish twice with a short backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 50 * time.Millisecond
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	// Prevent overflow with extremely large multipliers
	if p.Multiplier > 1000 {
		p.Multiplier = 1000
	}
	return p
}

// do runs fn until it succeeds, returns a non-transient error, ctx is done or
// the attempts are used up. It returns the number of attempts made.
func (p RetryPolicy) do(ctx context.Context, fn func() error) (int, error) {
	p = p.normalized()
	delay := p.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil || !errors.IsTransient(lastErr) || attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		sleep := delay
		if p.Jitter && delay >= 4 {
			sleep += rand.N(delay / 4)
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled during backoff for attempt %d: %w: %w",
				attempt+1, ctx.Err(), lastErr)
		case <-timer.C:
		}

		next := time.Duration(float64(delay) * p.Multiplier)
		if next > p.MaxDelay || next < delay {
			next = p.MaxDelay
		}
		delay = next
	}
}
