package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/spf13/cobra"
)

type orderTarget struct {
	provider string
	orderID  string
}

func (s *runtimeState) newOrderCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "order",
		Short: "Track cross-chain order settlement",
	}

	var orderID, providerArg, actionID, intervalArg string
	var watch bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch an order's settlement status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := s.resolveOrderTarget(orderID, providerArg, actionID)
			if err != nil {
				return err
			}
			if watch {
				return s.watchOrder(cmd, target, intervalArg)
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			start := time.Now()
			order, name, err := s.engine.Order(ctx, target.provider, target.orderID)
			statuses := providerStatuses(name, err, start)
			s.captureCommandDiagnostics(nil, statuses, false)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), order, nil, cacheMetaBypass(), statuses, false)
		},
	}
	statusCmd.Flags().StringVar(&orderID, "order-id", "", "Provider order identifier (deposit address for oneclick)")
	statusCmd.Flags().StringVar(&providerArg, "provider", "", "Provider tracking the order (fusion|oneclick)")
	statusCmd.Flags().StringVar(&actionID, "action-id", "", "Resolve the order from a persisted action")
	statusCmd.Flags().BoolVar(&watch, "watch", false, "Poll until the order reaches a terminal status")
	statusCmd.Flags().StringVar(&intervalArg, "interval", "5s", "Polling interval when watching")
	root.AddCommand(statusCmd)
	return root
}

// resolveOrderTarget picks the provider and order id to track. An explicit
// --order-id wins; otherwise the order is recovered from a persisted
// action's submitted step.
func (s *runtimeState) resolveOrderTarget(orderID, providerName, actionID string) (orderTarget, error) {
	orderID = strings.TrimSpace(orderID)
	actionID = strings.TrimSpace(actionID)
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if orderID != "" && actionID != "" {
		return orderTarget{}, clierr.New(clierr.CodeUsage, "use either --order-id or --action-id, not both")
	}
	if orderID != "" {
		return orderTarget{provider: providerName, orderID: orderID}, nil
	}
	if actionID == "" {
		return orderTarget{}, clierr.New(clierr.CodeUsage, "--order-id or --action-id is required")
	}
	if err := s.ensureActionStore(); err != nil {
		return orderTarget{}, err
	}
	action, err := s.actionStore.Get(actionID)
	if err != nil {
		return orderTarget{}, clierr.Wrap(clierr.CodeUsage, "load action", err)
	}
	for _, step := range action.Steps {
		if strings.TrimSpace(step.OrderID) != "" {
			name := providerName
			if name == "" {
				name = action.Provider
			}
			return orderTarget{provider: name, orderID: step.OrderID}, nil
		}
	}
	return orderTarget{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("action %s has no submitted order to track", actionID))
}

// watchOrder polls the provider until the order settles, painting progress
// on stderr so stdout stays a single machine-readable envelope.
func (s *runtimeState) watchOrder(cmd *cobra.Command, target orderTarget, intervalArg string) error {
	interval, err := time.ParseDuration(intervalArg)
	if err != nil || interval <= 0 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --interval %q", intervalArg))
	}

	// One synchronous check first. Bad targets fail here instead of
	// being silently retried by the poll loop.
	checkCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	order, name, err := s.engine.Order(checkCtx, target.provider, target.orderID)
	cancel()
	if err != nil {
		return err
	}
	finalOrder := order
	lastStatus := ""

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.runner.stderr))
	spin.Suffix = fmt.Sprintf(" watching order %s...", target.orderID)
	spin.Start()

	fetch := func(ctx context.Context) (string, error) {
		pollCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
		polled, _, err := s.engine.Order(pollCtx, target.provider, target.orderID)
		if err != nil {
			return "", err
		}
		finalOrder = polled
		return polled.Status, nil
	}

	opts := execution.DefaultMonitorOptions()
	opts.Interval = interval
	opts.OnPoll = func(attempt int, status string) {
		spin.Suffix = fmt.Sprintf(" order %s is %s (check %d)", target.orderID, status, attempt)
		if status != lastStatus {
			spin.Stop()
			_, _ = fmt.Fprintf(s.runner.stderr, "%s %s\n", color.CyanString("order status:"), coloredOrderStatus(status))
			spin.Start()
			lastStatus = status
		}
	}

	start := time.Now()
	finalStatus, waitErr := execution.WaitForOrder(context.Background(), fetch, opts)
	spin.Stop()
	statuses := providerStatuses(name, waitErr, start)
	s.captureCommandDiagnostics(nil, statuses, false)
	if waitErr != nil {
		return waitErr
	}
	_, _ = fmt.Fprintf(s.runner.stderr, "%s %s\n", color.GreenString("order settled:"), coloredOrderStatus(finalStatus))
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), finalOrder, nil, cacheMetaBypass(), statuses, false)
}

func coloredOrderStatus(status string) string {
	switch status {
	case model.OrderStatusFilled:
		return color.GreenString(status)
	case model.OrderStatusPending:
		return color.YellowString(status)
	case model.OrderStatusCancelled, model.OrderStatusExpired:
		return color.RedString(status)
	default:
		return status
	}
}
