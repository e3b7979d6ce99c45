package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/actionbuilder"
	execsigner "github.com/ggonzalez94/swap-cli/internal/execution/signer"
	"github.com/spf13/cobra"
)

// signingFlags groups the flags every executing subcommand repeats: which
// backend signs, how receipts are polled, and the EIP-1559 fee ceilings.
// Each command binds its own instance so flag state never leaks between
// subcommands.
type signingFlags struct {
	signer             string
	keySource          string
	confirmAddress     string
	pollInterval       string
	stepTimeout        string
	gasMultiplier      float64
	maxFeeGwei         string
	maxPriorityFeeGwei string
}

func (f *signingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.signer, "signer", "local", "Signer backend (local)")
	cmd.Flags().StringVar(&f.keySource, "key-source", execsigner.KeySourceAuto, "Key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&f.confirmAddress, "confirm-address", "", "Require signer address to match this value")
	cmd.Flags().StringVar(&f.pollInterval, "poll-interval", "2s", "Receipt polling interval")
	cmd.Flags().StringVar(&f.stepTimeout, "step-timeout", "2m", "Per-step receipt timeout")
	cmd.Flags().Float64Var(&f.gasMultiplier, "gas-multiplier", 1.2, "Gas estimate safety multiplier")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "Optional EIP-1559 max fee (gwei)")
	cmd.Flags().StringVar(&f.maxPriorityFeeGwei, "max-priority-fee-gwei", "", "Optional EIP-1559 max priority fee (gwei)")
}

// signerMatching loads the configured signer and rejects it when its
// address differs from the planned sender. An empty sender skips the
// check, covering actions persisted before a sender was recorded.
func (f *signingFlags) signerMatching(sender string) (execsigner.Signer, error) {
	txSigner, err := newExecutionSigner(f.signer, f.keySource, f.confirmAddress)
	if err != nil {
		return nil, err
	}
	sender = strings.TrimSpace(sender)
	if sender != "" && !strings.EqualFold(sender, txSigner.Address().Hex()) {
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer address %s does not match sender %s", txSigner.Address().Hex(), sender))
	}
	return txSigner, nil
}

// executeOptions resolves the polling and fee flags into executor
// options. Simulation is passed by the caller because plan-shaped
// commands own that flag.
func (f *signingFlags) executeOptions(simulate bool) (execution.ExecuteOptions, error) {
	opts := execution.DefaultExecuteOptions()
	opts.Simulate = simulate
	if strings.TrimSpace(f.pollInterval) != "" {
		parsed, err := time.ParseDuration(f.pollInterval)
		if err != nil || parsed <= 0 {
			return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --poll-interval %q", f.pollInterval))
		}
		opts.PollInterval = parsed
	}
	if strings.TrimSpace(f.stepTimeout) != "" {
		parsed, err := time.ParseDuration(f.stepTimeout)
		if err != nil || parsed <= 0 {
			return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --step-timeout %q", f.stepTimeout))
		}
		opts.StepTimeout = parsed
	}
	if f.gasMultiplier > 0 {
		opts.GasMultiplier = f.gasMultiplier
	}
	opts.MaxFeeGwei = strings.TrimSpace(f.maxFeeGwei)
	opts.MaxPriorityFeeGwei = strings.TrimSpace(f.maxPriorityFeeGwei)
	return opts, nil
}

func (s *runtimeState) executeActionWithTimeout(action *execution.Action, txSigner execsigner.Signer, opts execution.ExecuteOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), executionBudget(action, opts, s.settings.Timeout))
	defer cancel()
	return execution.ExecuteAction(ctx, s.actionStore, action, txSigner, opts)
}

// executionBudget sizes the deadline for a full action run. The provider
// fetch timeout only covers RPC setup; every transactional step may wait
// out its whole receipt window, and settlement steps also poll the order
// until the monitor budget is spent.
func executionBudget(action *execution.Action, opts execution.ExecuteOptions, base time.Duration) time.Duration {
	budget := base
	monitor := opts.Monitor
	if monitor.Interval <= 0 {
		monitor.Interval = execution.DefaultMonitorOptions().Interval
	}
	if monitor.MaxAttempts <= 0 {
		monitor.MaxAttempts = execution.DefaultMonitorOptions().MaxAttempts
	}
	for _, step := range action.Steps {
		budget += opts.StepTimeout
		if step.Type == execution.StepTypeOrder || step.Type == execution.StepTypeDeposit {
			budget += monitor.Interval * time.Duration(monitor.MaxAttempts)
		}
	}
	return budget
}

func (s *runtimeState) ensureActionStore() error {
	if s.actionStore != nil {
		return nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open action store", err)
	}
	s.actionStore = store
	return nil
}

// persistPlannedAction saves a freshly planned action, opening the store
// on first use.
func (s *runtimeState) persistPlannedAction(action execution.Action) error {
	if err := s.ensureActionStore(); err != nil {
		return err
	}
	if err := s.actionStore.Save(action); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "persist planned action", err)
	}
	return nil
}

func (s *runtimeState) actionBuilderRegistry() *actionbuilder.Registry {
	if s.builders == nil {
		s.builders = actionbuilder.New(s.swapProviders)
	}
	return s.builders
}

// attachOrderHandler wires the provider's settlement surface into the
// executor when the provider has one. AMM actions carry no order steps,
// so a missing handler is not an error here.
func (s *runtimeState) attachOrderHandler(opts *execution.ExecuteOptions, providerName string, txSigner execsigner.Signer) {
	orderProvider, err := s.actionBuilderRegistry().OrderProvider(providerName)
	if err != nil {
		return
	}
	opts.Orders = orderProvider.OrderHandler(txSigner)
}

// resolveActionID merges --action-id with its deprecated aliases. Distinct
// non-empty values are a caller mistake, not a silent preference.
func resolveActionID(values ...string) (string, error) {
	resolved := ""
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if resolved != "" && resolved != value {
			return "", clierr.New(clierr.CodeUsage, "conflicting action identifiers provided")
		}
		resolved = value
	}
	if resolved == "" {
		return "", clierr.New(clierr.CodeUsage, "--action-id is required")
	}
	return resolved, nil
}

func newExecutionSigner(backend, keySource string, confirmAddress ...string) (execsigner.Signer, error) {
	if strings.ToLower(strings.TrimSpace(backend)) != "local" {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported signer backend %q (local)", backend))
	}
	txSigner, err := execsigner.NewLocalSignerFromEnv(keySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	for _, confirm := range confirmAddress {
		confirm = strings.TrimSpace(confirm)
		if confirm == "" {
			continue
		}
		if !strings.EqualFold(confirm, txSigner.Address().Hex()) {
			return nil, clierr.New(clierr.CodeSigner, "signer address does not match --confirm-address")
		}
	}
	return txSigner, nil
}

// shouldOpenActionStore reports whether a command needs the persisted
// action database. The store opens eagerly for these paths so storage
// problems surface before any provider work happens.
func shouldOpenActionStore(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	switch path {
	case "plan", "run", "submit", "status":
		return true
	}
	return strings.HasPrefix(path, "approvals") || strings.HasPrefix(path, "order") || strings.HasPrefix(path, "actions")
}
