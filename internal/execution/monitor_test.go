package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

func scriptedStatuses(statuses ...string) (StatusFunc, *int) {
	polls := new(int)
	return func(ctx context.Context) (string, error) {
		idx := *polls
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		*polls++
		return statuses[idx], nil
	}, polls
}

func noSleep() SleepFunc {
	return func(ctx context.Context, d time.Duration) error { return nil }
}

func TestWaitForOrderFillsAfterPendingPolls(t *testing.T) {
	fetch, polls := scriptedStatuses(model.OrderStatusPending, model.OrderStatusPending, model.OrderStatusFilled)
	status, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Sleep:       noSleep(),
	})
	if err != nil {
		t.Fatalf("WaitForOrder failed: %v", err)
	}
	if status != model.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", status)
	}
	if *polls != 3 {
		t.Fatalf("expected 3 polls, got %d", *polls)
	}
}

func TestWaitForOrderCancelledFailsOnFirstPoll(t *testing.T) {
	fetch, polls := scriptedStatuses(model.OrderStatusCancelled)
	status, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Sleep:       noSleep(),
	})
	if err == nil {
		t.Fatal("expected cancelled order error")
	}
	if status != model.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", status)
	}
	if *polls != 1 {
		t.Fatalf("expected exactly one poll, got %d", *polls)
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForOrderExpiredFails(t *testing.T) {
	fetch, _ := scriptedStatuses(model.OrderStatusExpired)
	_, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Sleep:       noSleep(),
	})
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expired order error, got %v", err)
	}
}

func TestWaitForOrderExhaustsBudgetWithMonitorTimeout(t *testing.T) {
	fetch, polls := scriptedStatuses(model.OrderStatusPending)
	status, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 60,
		Sleep:       noSleep(),
	})
	if err == nil {
		t.Fatal("expected monitor timeout")
	}
	if *polls != 60 {
		t.Fatalf("expected 60 polls, got %d", *polls)
	}
	if status != model.OrderStatusPending {
		t.Fatalf("expected pending status after giving up, got %s", status)
	}
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeActionTimeout {
		t.Fatalf("expected action timeout code, got %v", err)
	}
	record := clierr.Classify(err)
	if record.Kind != clierr.KindMonitorTimeout {
		t.Fatalf("expected monitor_timeout kind, got %s", record.Kind)
	}
	if !record.Recoverable {
		t.Fatal("a monitor timeout leaves the order live and must stay recoverable")
	}
}

func TestWaitForOrderToleratesPollErrors(t *testing.T) {
	polls := 0
	fetch := func(ctx context.Context) (string, error) {
		polls++
		if polls < 3 {
			return "", errors.New("status endpoint hiccup")
		}
		return model.OrderStatusFilled, nil
	}
	status, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Sleep:       noSleep(),
	})
	if err != nil {
		t.Fatalf("expected fill despite transient poll errors, got %v", err)
	}
	if status != model.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", status)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestWaitForOrderPollErrorsCountAgainstBudget(t *testing.T) {
	polls := 0
	fetch := func(ctx context.Context) (string, error) {
		polls++
		return "", errors.New("status endpoint down")
	}
	_, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 4,
		Sleep:       noSleep(),
	})
	if err == nil {
		t.Fatal("expected monitor timeout")
	}
	if polls != 4 {
		t.Fatalf("expected failed polls to spend the budget, got %d polls", polls)
	}
}

func TestWaitForOrderSwallowsOnPollPanic(t *testing.T) {
	fetch, _ := scriptedStatuses(model.OrderStatusPending, model.OrderStatusFilled)
	notified := 0
	status, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Sleep:       noSleep(),
		OnPoll: func(attempt int, status string) {
			notified++
			panic("display layer exploded")
		},
	})
	if err != nil {
		t.Fatalf("a panicking observer must not abort monitoring: %v", err)
	}
	if status != model.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", status)
	}
	if notified != 2 {
		t.Fatalf("expected observer to run every poll, got %d", notified)
	}
}

func TestWaitForOrderUsesInjectedSleep(t *testing.T) {
	var delays []time.Duration
	fetch, _ := scriptedStatuses(model.OrderStatusPending, model.OrderStatusPending, model.OrderStatusFilled)
	start := time.Now()
	_, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    5 * time.Second,
		MaxAttempts: 10,
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("WaitForOrder failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("injected sleep must avoid wall-clock waits, took %v", elapsed)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 sleeps between 3 polls, got %v", delays)
	}
	for _, d := range delays {
		if d != 5*time.Second {
			t.Fatalf("expected configured interval, got %v", d)
		}
	}
}

func TestWaitForOrderSleepCancellation(t *testing.T) {
	fetch, _ := scriptedStatuses(model.OrderStatusPending)
	_, err := WaitForOrder(context.Background(), fetch, MonitorOptions{
		Interval:    time.Minute,
		MaxAttempts: 10,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		},
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeActionTimeout {
		t.Fatalf("expected action timeout code, got %v", err)
	}
}
