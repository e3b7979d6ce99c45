package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/spf13/cobra"
)

// swapRouteArgs carries the route-shaped flags shared by quote, plan and
// run. Each command binds its own instance so flag state never leaks
// between subcommands.
type swapRouteArgs struct {
	providerArg   string
	chainArg      string
	toChainArg    string
	fromAssetArg  string
	toAssetArg    string
	amountBase    string
	amountDecimal string
	tradeTypeArg  string
	fromAddress   string
	recipient     string
	slippagePct   float64
	slippageSet   bool
	rpcURL        string
}

func addSwapRouteFlags(cmd *cobra.Command, route *swapRouteArgs) {
	cmd.Flags().StringVar(&route.providerArg, "provider", "", "Swap provider (uniswapv3|fusion|oneclick)")
	cmd.Flags().StringVar(&route.chainArg, "chain", "", "Source chain")
	cmd.Flags().StringVar(&route.toChainArg, "to-chain", "", "Destination chain (defaults to --chain)")
	cmd.Flags().StringVar(&route.fromAssetArg, "from-asset", "", "Asset to sell on the source chain")
	cmd.Flags().StringVar(&route.toAssetArg, "to-asset", "", "Asset to buy on the destination chain")
	cmd.Flags().StringVar(&route.amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&route.amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&route.tradeTypeArg, "trade-type", "", "Trade type (exact-input|exact-output; defaults by route shape)")
	cmd.Flags().StringVar(&route.fromAddress, "from-address", "", "Sender EOA address")
	cmd.Flags().StringVar(&route.recipient, "recipient", "", "Recipient address (defaults to --from-address)")
	cmd.Flags().Float64Var(&route.slippagePct, "slippage-pct", 0.5, "Max slippage percent")
	cmd.Flags().StringVar(&route.rpcURL, "rpc-url", "", "RPC URL override for the source chain")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("from-asset")
}

// buildSwapRequest resolves the route flags into a provider request.
// Cross-chain routes may omit --to-asset; the destination asset is then
// inferred from the source symbol, falling back to the configured
// settlement asset. The amount is denominated in the asset the trade type
// fixes, so exact-output amounts resolve against the destination asset.
func (s *runtimeState) buildSwapRequest(route swapRouteArgs) (providers.QuoteRequest, error) {
	fromChain, err := id.ParseChain(route.chainArg)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	toChain := fromChain
	if strings.TrimSpace(route.toChainArg) != "" {
		toChain, err = id.ParseChain(route.toChainArg)
		if err != nil {
			return providers.QuoteRequest{}, err
		}
	}
	sameChain := fromChain.CAIP2 == toChain.CAIP2

	fromAsset, err := id.ParseAsset(route.fromAssetArg, fromChain)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	toAssetInput := strings.TrimSpace(route.toAssetArg)
	if toAssetInput == "" {
		if sameChain {
			return providers.QuoteRequest{}, clierr.New(clierr.CodeUsage, "--to-asset is required")
		}
		toAssetInput = fromAsset.Symbol
		if toAssetInput == "" {
			toAssetInput = s.settings.SettlementAsset
		}
	}
	toAsset, err := id.ParseAsset(toAssetInput, toChain)
	if err != nil {
		return providers.QuoteRequest{}, clierr.Wrap(clierr.CodeUsage, "resolve destination asset", err)
	}

	tradeType, err := resolveTradeType(route.tradeTypeArg, sameChain)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	amountAsset := fromAsset
	if tradeType == providers.TradeTypeExactOutput {
		amountAsset = toAsset
	}
	decimals := amountAsset.Decimals
	if decimals <= 0 {
		decimals = 18
	}
	base, decimal, err := id.NormalizeAmount(route.amountBase, route.amountDecimal, decimals)
	if err != nil {
		return providers.QuoteRequest{}, err
	}

	req := providers.QuoteRequest{
		FromChain:       fromChain,
		ToChain:         toChain,
		FromAsset:       fromAsset,
		ToAsset:         toAsset,
		TradeType:       tradeType,
		AmountBaseUnits: base,
		AmountDecimal:   decimal,
		Sender:          strings.TrimSpace(route.fromAddress),
		Recipient:       strings.TrimSpace(route.recipient),
		RPCURL:          route.rpcURL,
	}
	if route.slippageSet {
		pct := route.slippagePct
		req.SlippagePct = &pct
	}
	return req, nil
}

// resolveTradeType defaults by route shape: same-chain swaps quote
// exact-output (the AMM path), cross-chain swaps quote exact-input (the
// aggregator path).
func resolveTradeType(arg string, sameChain bool) (providers.TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "":
		if sameChain {
			return providers.TradeTypeExactOutput, nil
		}
		return providers.TradeTypeExactInput, nil
	case "exact-input":
		return providers.TradeTypeExactInput, nil
	case "exact-output":
		return providers.TradeTypeExactOutput, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported trade type %q (exact-input|exact-output)", arg))
	}
}

func (s *runtimeState) addSwapExecutionCommands(root *cobra.Command) {
	var planRoute swapRouteArgs
	var planSimulate bool
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and persist a swap action plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			planRoute.slippageSet = cmd.Flags().Changed("slippage-pct")
			req, err := s.buildSwapRequest(planRoute)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			start := time.Now()
			action, name, err := s.engine.Plan(ctx, planRoute.providerArg, req, providers.ExecutionOptions{
				Sender:      req.Sender,
				Recipient:   req.Recipient,
				SlippagePct: planRoute.slippagePct,
				Simulate:    planSimulate,
				RPCURL:      planRoute.rpcURL,
			})
			statuses := providerStatuses(name, err, start)
			s.captureCommandDiagnostics(nil, statuses, false)
			if err != nil {
				return err
			}
			if err := s.persistPlannedAction(action); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), statuses, false)
		},
	}
	addSwapRouteFlags(planCmd, &planRoute)
	planCmd.Flags().BoolVar(&planSimulate, "simulate", true, "Include simulation checks during execution")
	_ = planCmd.MarkFlagRequired("from-address")

	var runRoute swapRouteArgs
	var runSimulate, runYes bool
	var runExec signingFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a swap in one shot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !runYes {
				return clierr.New(clierr.CodeUsage, "run requires --yes")
			}
			runRoute.slippageSet = cmd.Flags().Changed("slippage-pct")
			req, err := s.buildSwapRequest(runRoute)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			start := time.Now()
			action, name, err := s.engine.Plan(ctx, runRoute.providerArg, req, providers.ExecutionOptions{
				Sender:      req.Sender,
				Recipient:   req.Recipient,
				SlippagePct: runRoute.slippagePct,
				Simulate:    runSimulate,
				RPCURL:      runRoute.rpcURL,
			})
			statuses := providerStatuses(name, err, start)
			s.captureCommandDiagnostics(nil, statuses, false)
			if err != nil {
				return err
			}
			if err := s.persistPlannedAction(action); err != nil {
				return err
			}
			txSigner, err := runExec.signerMatching(runRoute.fromAddress)
			if err != nil {
				return err
			}
			execOpts, err := runExec.executeOptions(runSimulate)
			if err != nil {
				return err
			}
			s.attachOrderHandler(&execOpts, action.Provider, txSigner)
			if err := s.executeActionWithTimeout(&action, txSigner, execOpts); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), statuses, false)
		},
	}
	addSwapRouteFlags(runCmd, &runRoute)
	runCmd.Flags().BoolVar(&runSimulate, "simulate", true, "Run preflight simulation before submission")
	runCmd.Flags().BoolVar(&runYes, "yes", false, "Confirm execution")
	runExec.register(runCmd)
	_ = runCmd.MarkFlagRequired("from-address")

	var submitActionID, submitPlanID string
	var submitYes, submitSimulate bool
	var submitExec signingFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Execute a previously planned swap action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !submitYes {
				return clierr.New(clierr.CodeUsage, "submit requires --yes")
			}
			actionID, err := resolveActionID(submitActionID, submitPlanID)
			if err != nil {
				return err
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			action, err := s.actionStore.Get(actionID)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load action", err)
			}
			if action.IntentType != "swap" {
				return clierr.New(clierr.CodeUsage, "action is not a swap intent")
			}
			txSigner, err := submitExec.signerMatching(action.FromAddress)
			if err != nil {
				return err
			}
			execOpts, err := submitExec.executeOptions(submitSimulate)
			if err != nil {
				return err
			}
			s.attachOrderHandler(&execOpts, action.Provider, txSigner)
			if err := s.executeActionWithTimeout(&action, txSigner, execOpts); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), nil, false)
		},
	}
	submitCmd.Flags().StringVar(&submitActionID, "action-id", "", "Action identifier")
	submitCmd.Flags().StringVar(&submitPlanID, "plan-id", "", "Deprecated alias for --action-id")
	submitCmd.Flags().BoolVar(&submitYes, "yes", false, "Confirm execution")
	submitCmd.Flags().BoolVar(&submitSimulate, "simulate", true, "Run preflight simulation before submission")
	submitExec.register(submitCmd)

	var statusActionID, statusPlanID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Get a persisted action's status (latest when no id is given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			var action execution.Action
			if strings.TrimSpace(statusActionID) == "" && strings.TrimSpace(statusPlanID) == "" {
				latest, err := s.actionStore.Latest()
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "load latest action", err)
				}
				action = latest
			} else {
				actionID, err := resolveActionID(statusActionID, statusPlanID)
				if err != nil {
					return err
				}
				loaded, err := s.actionStore.Get(actionID)
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "load action", err)
				}
				action = loaded
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), nil, false)
		},
	}
	statusCmd.Flags().StringVar(&statusActionID, "action-id", "", "Action identifier")
	statusCmd.Flags().StringVar(&statusPlanID, "plan-id", "", "Deprecated alias for --action-id")

	root.AddCommand(planCmd)
	root.AddCommand(runCmd)
	root.AddCommand(submitCmd)
	root.AddCommand(statusCmd)
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "actions",
		Short: "Inspect persisted swap actions",
	}
	var listStatus string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent actions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			actions, err := s.actionStore.List(listStatus, listLimit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actions, nil, cacheMetaBypass(), nil, false)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by action status (planned|running|completed|failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum actions to return")

	var estimateActionID, estimatePlanID string
	var estimateSteps []string
	var estimateBlockTag string
	var estimateGasMultiplier float64
	var estimateMaxFeeGwei, estimateMaxPriorityFeeGwei string
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate gas fees for a planned action without signing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actionID, err := resolveActionID(estimateActionID, estimatePlanID)
			if err != nil {
				return err
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			action, err := s.actionStore.Get(actionID)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load action", err)
			}
			opts := execution.DefaultEstimateOptions()
			opts.StepIDs = estimateSteps
			opts.BlockTag = execution.EstimateBlockTag(estimateBlockTag)
			if estimateGasMultiplier > 0 {
				opts.GasMultiplier = estimateGasMultiplier
			}
			opts.MaxFeeGwei = strings.TrimSpace(estimateMaxFeeGwei)
			opts.MaxPriorityFeeGwei = strings.TrimSpace(estimateMaxPriorityFeeGwei)
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			report, err := execution.EstimateActionGas(ctx, action, opts)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, nil, cacheMetaBypass(), nil, false)
		},
	}
	estimateCmd.Flags().StringVar(&estimateActionID, "action-id", "", "Action identifier")
	estimateCmd.Flags().StringVar(&estimatePlanID, "plan-id", "", "Deprecated alias for --action-id")
	estimateCmd.Flags().StringSliceVar(&estimateSteps, "step", nil, "Estimate only the named step ids")
	estimateCmd.Flags().StringVar(&estimateBlockTag, "block-tag", "pending", "Fee basis block tag (pending|latest)")
	estimateCmd.Flags().Float64Var(&estimateGasMultiplier, "gas-multiplier", 1.2, "Gas estimate safety multiplier")
	estimateCmd.Flags().StringVar(&estimateMaxFeeGwei, "max-fee-gwei", "", "Optional EIP-1559 max fee (gwei)")
	estimateCmd.Flags().StringVar(&estimateMaxPriorityFeeGwei, "max-priority-fee-gwei", "", "Optional EIP-1559 max priority fee (gwei)")

	root.AddCommand(listCmd)
	root.AddCommand(estimateCmd)
	return root
}

func providerStatuses(name string, err error, start time.Time) []model.ProviderStatus {
	if name == "" {
		return nil
	}
	return []model.ProviderStatus{{Name: name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
}
