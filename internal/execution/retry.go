package execution

import (
	"context"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

// RetryPolicy bounds one external-call boundary (a quote fetch, a list
// fetch); it is never applied globally across a whole swap.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, BackoffFactor: 2}
}

// SleepFunc lets tests replace real waiting with a recorded no-op.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetry runs op under the policy with exponential backoff. Terminal
// failures (user rejection, no route, insufficient liquidity or funds, and
// anything else errors.Retryable rules out) surface immediately; other
// errors are retried until the attempt budget is spent and the last error
// is surfaced.
func WithRetry(ctx context.Context, policy RetryPolicy, sleep SleepFunc, op func(context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.BackoffFactor <= 0 {
		policy.BackoffFactor = 2
	}
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !clierr.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}
		delay *= time.Duration(policy.BackoffFactor)
	}
	return lastErr
}
