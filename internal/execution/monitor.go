package execution

import (
	"context"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

type MonitorOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// OnPoll observes each poll; a panicking callback is swallowed so
	// display code can never abort settlement tracking.
	OnPoll func(attempt int, status string)
	Sleep  SleepFunc
}

func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{Interval: 5 * time.Second, MaxAttempts: 60}
}

// StatusFunc reports the order's current status as one of the
// model.OrderStatus values.
type StatusFunc func(ctx context.Context) (string, error)

// WaitForOrder polls an order until it reaches a terminal status or the
// poll budget is spent. Filled returns success; Cancelled and Expired
// return failure immediately. Exhausting the budget while still pending
// raises a monitor timeout: the local wait gave up, but the remote order
// stays live and may still settle.
func WaitForOrder(ctx context.Context, fetch StatusFunc, opts MonitorOptions) (string, error) {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepWithContext
	}

	status := model.OrderStatusPending
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		polled, err := fetch(ctx)
		if err == nil && polled != "" {
			status = polled
		}
		notifyPoll(opts.OnPoll, attempt, status)

		switch status {
		case model.OrderStatusFilled:
			return status, nil
		case model.OrderStatusCancelled:
			return status, clierr.New(clierr.CodeUnavailable, "cross-chain order was cancelled before filling")
		case model.OrderStatusExpired:
			return status, clierr.New(clierr.CodeUnavailable, "cross-chain order expired before filling")
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return status, clierr.Wrap(clierr.CodeActionTimeout, "order wait cancelled", err)
		}
	}
	return model.OrderStatusPending, clierr.New(clierr.CodeActionTimeout, "gave up waiting for order settlement; the order may still fill later")
}

func notifyPoll(onPoll func(int, string), attempt int, status string) {
	if onPoll == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	onPoll(attempt, status)
}
