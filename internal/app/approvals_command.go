package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/planner"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/registry"
	"github.com/spf13/cobra"
)

// approvalTarget carries the allowance-shaped flags shared by the
// approvals subcommands: which asset, which spender, and how much the
// owner wants cleared for spending.
type approvalTarget struct {
	chainArg      string
	assetArg      string
	spender       string
	amountBase    string
	amountDecimal string
	owner         string
	simulate      bool
	rpcURL        string
}

func addApprovalTargetFlags(cmd *cobra.Command, target *approvalTarget) {
	cmd.Flags().StringVar(&target.chainArg, "chain", "", "Chain identifier")
	cmd.Flags().StringVar(&target.assetArg, "asset", "", "Asset symbol/address/CAIP-19")
	cmd.Flags().StringVar(&target.spender, "spender", "", "Spender address")
	cmd.Flags().StringVar(&target.amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&target.amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&target.owner, "from-address", "", "Owner EOA address")
	cmd.Flags().StringVar(&target.rpcURL, "rpc-url", "", "RPC URL override for the selected chain")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("spender")
	_ = cmd.MarkFlagRequired("from-address")
}

// resolveApprovalTarget parses the chain and asset flags and normalizes
// the requested amount into base units of the asset's own decimals.
func resolveApprovalTarget(target approvalTarget) (id.Chain, id.Asset, string, error) {
	chain, err := id.ParseChain(target.chainArg)
	if err != nil {
		return id.Chain{}, id.Asset{}, "", err
	}
	asset, err := id.ParseAsset(target.assetArg, chain)
	if err != nil {
		return id.Chain{}, id.Asset{}, "", err
	}
	decimals := asset.Decimals
	if decimals <= 0 {
		decimals = 18
	}
	base, _, err := id.NormalizeAmount(target.amountBase, target.amountDecimal, decimals)
	if err != nil {
		return id.Chain{}, id.Asset{}, "", err
	}
	return chain, asset, base, nil
}

// planApprovalAction builds a standalone exact-amount approval action.
// The allowance read happens at execution time, so planning stays
// offline.
func (s *runtimeState) planApprovalAction(target approvalTarget) (execution.Action, error) {
	chain, asset, base, err := resolveApprovalTarget(target)
	if err != nil {
		return execution.Action{}, err
	}
	return s.actionBuilderRegistry().BuildApprovalAction(planner.ApprovalRequest{
		Chain:           chain,
		Asset:           asset,
		AmountBaseUnits: base,
		Sender:          target.owner,
		Spender:         target.spender,
		Simulate:        target.simulate,
		RPCURL:          target.rpcURL,
	})
}

func (s *runtimeState) newApprovalsCommand() *cobra.Command {
	root := &cobra.Command{Use: "approvals", Short: "Token allowance planning and execution"}

	var check approvalTarget
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Read the live allowance and report whether an approval is needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chain, asset, base, err := resolveApprovalTarget(check)
			if err != nil {
				return err
			}
			required, ok := new(big.Int).SetString(base, 10)
			if !ok || required.Sign() <= 0 {
				return clierr.New(clierr.CodeUsage, "allowance check requires a positive amount")
			}
			endpoint, err := registry.ResolveRPCURL(check.rpcURL, chain.EVMChainID)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			client, err := ethclient.DialContext(ctx, endpoint)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
			}
			defer client.Close()
			start := time.Now()
			_, record, err := planner.EnsureAllowanceStep(ctx, client, planner.EnsureAllowanceRequest{
				Chain:    chain,
				Asset:    asset,
				Owner:    check.owner,
				Spender:  check.spender,
				Required: required,
				RPCURL:   check.rpcURL,
			})
			status := []model.ProviderStatus{{Name: "rpc", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
			s.captureCommandDiagnostics(nil, status, false)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record, nil, cacheMetaBypass(), status, false)
		},
	}
	addApprovalTargetFlags(checkCmd, &check)

	var plan approvalTarget
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and persist an approval action plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			action, err := s.planApprovalAction(plan)
			status := []model.ProviderStatus{{Name: "native", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
			s.captureCommandDiagnostics(nil, status, false)
			if err != nil {
				return err
			}
			if err := s.persistPlannedAction(action); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), status, false)
		},
	}
	addApprovalTargetFlags(planCmd, &plan)
	planCmd.Flags().BoolVar(&plan.simulate, "simulate", true, "Include simulation checks during execution")

	var run approvalTarget
	var runExec signingFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute an approval in one shot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			action, err := s.planApprovalAction(run)
			status := []model.ProviderStatus{{Name: "native", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
			s.captureCommandDiagnostics(nil, status, false)
			if err != nil {
				return err
			}
			if err := s.persistPlannedAction(action); err != nil {
				return err
			}
			txSigner, err := runExec.signerMatching(run.owner)
			if err != nil {
				return err
			}
			execOpts, err := runExec.executeOptions(run.simulate)
			if err != nil {
				return err
			}
			if err := s.executeActionWithTimeout(&action, txSigner, execOpts); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), status, false)
		},
	}
	addApprovalTargetFlags(runCmd, &run)
	runCmd.Flags().BoolVar(&run.simulate, "simulate", true, "Run preflight simulation before submission")
	runExec.register(runCmd)

	var submitActionID string
	var submitSimulate bool
	var submitExec signingFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Execute an existing approval action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actionID, err := resolveActionID(submitActionID)
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
			if action.IntentType != "approve" {
				return clierr.New(clierr.CodeUsage, "action is not an approval intent")
			}
			txSigner, err := submitExec.signerMatching(action.FromAddress)
			if err != nil {
				return err
			}
			execOpts, err := submitExec.executeOptions(submitSimulate)
			if err != nil {
				return err
			}
			if err := s.executeActionWithTimeout(&action, txSigner, execOpts); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), nil, false)
		},
	}
	submitCmd.Flags().StringVar(&submitActionID, "action-id", "", "Action identifier")
	submitCmd.Flags().BoolVar(&submitSimulate, "simulate", true, "Run preflight simulation before submission")
	submitExec.register(submitCmd)

	var statusActionID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Get approval action status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actionID, err := resolveActionID(statusActionID)
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
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass(), nil, false)
		},
	}
	statusCmd.Flags().StringVar(&statusActionID, "action-id", "", "Action identifier")

	root.AddCommand(checkCmd)
	root.AddCommand(planCmd)
	root.AddCommand(runCmd)
	root.AddCommand(submitCmd)
	root.AddCommand(statusCmd)
	return root
}
