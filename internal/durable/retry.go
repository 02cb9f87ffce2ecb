package durable

import (
	"context"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
)

// RetryPolicy bounds the backoff loop around one external call.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultFetchPolicy matches the upstream fair-access expectations of the
// data providers: a handful of attempts with exponential backoff.
var DefaultFetchPolicy = RetryPolicy{
	MaxAttempts:  4,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
}

// DefaultPersistPolicy retries store writes briefly; the database is local
// and either healthy or not.
var DefaultPersistPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// callWithRetry runs fn under the policy. Terminal errors and context
// cancellation end the loop immediately; everything else backs off and
// retries until the attempt ceiling.
func callWithRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if contracts.IsTerminal(lastErr) {
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}
