package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

var (
	policyERC20ABI  = mustPolicyABI(registry.ERC20MinimalABI)
	policyRouterABI = mustPolicyABI(registry.UniswapV3RouterABI)

	policyApproveSelector   = policyERC20ABI.Methods["approve"].ID
	policySwapMethod        = policyRouterABI.Methods["exactOutputSingle"].ID
	policyMulticallSelector = policyRouterABI.Methods["multicall"].ID
)

func validateStepPolicy(action *Action, step *ActionStep, chainID int64, data []byte, opts ExecuteOptions) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if step.Type != StepTypeOrder && !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApprovalPolicy(action, chainID, data, opts)
	case StepTypeSwap:
		return validateSwapPolicy(action, step, chainID, data)
	case StepTypeDeposit, StepTypeOrder:
		return validateSettlementPolicy(action, step, opts)
	default:
		return nil
	}
}

// validateApprovalPolicy keeps approvals bounded: the calldata must be a
// plain ERC20 approve, the spender must be the provider's canonical
// contract when one is pinned, and the amount never exceeds the action's
// slippage-adjusted input amount unless the user explicitly opted into
// max approvals.
func validateApprovalPolicy(action *Action, chainID int64, data []byte, opts ExecuteOptions) error {
	if len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	if !opts.UnsafeProviderTx && action != nil {
		if expected, pinned := expectedApprovalSpender(action.Provider, chainID); pinned && spender != expected {
			return clierr.New(
				clierr.CodeActionPlan,
				fmt.Sprintf("approval step grants %s but the provider settles through %s; use --unsafe-provider-tx to override", spender.Hex(), expected.Hex()),
			)
		}
	}
	if opts.AllowMaxApproval {
		return nil
	}
	if action == nil {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds without action context")
	}
	requested, ok := parsePositiveBaseUnits(action.InputAmount)
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds for non-numeric input amount; use --allow-max-approval to override")
	}
	limit := MaxInputWithSlippage(requested, action.Constraints.SlippagePct)
	if amount.Cmp(limit) > 0 {
		return clierr.New(
			clierr.CodeActionPlan,
			fmt.Sprintf("approval amount %s exceeds slippage-adjusted input amount %s; use --allow-max-approval to override", amount.String(), limit.String()),
		)
	}
	return nil
}

// expectedApprovalSpender returns the contract a provider's approvals
// should authorize. Standalone approvals carry the "native" provider and
// may name any spender, so they report no pin.
func expectedApprovalSpender(provider string, chainID int64) (common.Address, bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "uniswapv3":
		contracts, ok := registry.UniswapV3Contracts(chainID)
		if !ok {
			return common.Address{}, false
		}
		return common.HexToAddress(contracts.Router), true
	case "fusion":
		return common.HexToAddress(registry.FusionRouterV6Address), true
	default:
		return common.Address{}, false
	}
}

func validateSwapPolicy(action *Action, step *ActionStep, chainID int64, data []byte) error {
	if action == nil || !strings.EqualFold(strings.TrimSpace(action.Provider), "uniswapv3") {
		return nil
	}
	if len(data) < 4 {
		return clierr.New(clierr.CodeActionPlan, "swap step calldata is too short")
	}
	selector := data[:4]
	if !bytes.Equal(selector, policySwapMethod) && !bytes.Equal(selector, policyMulticallSelector) {
		return clierr.New(clierr.CodeActionPlan, "swap step must call exactOutputSingle or multicall")
	}
	contracts, ok := registry.UniswapV3Contracts(chainID)
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "swap step has unsupported chain")
	}
	expectedRouter := common.HexToAddress(contracts.Router).Hex()
	if !strings.EqualFold(common.HexToAddress(step.Target).Hex(), expectedRouter) {
		return clierr.New(clierr.CodeActionPlan, "swap step target does not match canonical router")
	}
	return nil
}

// validateSettlementPolicy gates deposit and order steps on a known
// aggregator and an allowlisted status endpoint so a tampered plan cannot
// point settlement polling at an arbitrary host.
func validateSettlementPolicy(action *Action, step *ActionStep, opts ExecuteOptions) error {
	if opts.UnsafeProviderTx {
		return nil
	}
	provider := ""
	if step.ExpectedOutputs != nil {
		provider = strings.ToLower(strings.TrimSpace(step.ExpectedOutputs["order_provider"]))
	}
	if provider == "" && action != nil {
		provider = strings.ToLower(strings.TrimSpace(action.Provider))
	}
	if provider != "fusion" && provider != "oneclick" {
		return clierr.New(clierr.CodeActionPlan, "settlement step has unknown order provider; use --unsafe-provider-tx to override")
	}
	if action != nil && strings.TrimSpace(action.Provider) != "" && !strings.EqualFold(strings.TrimSpace(action.Provider), provider) {
		return clierr.New(clierr.CodeActionPlan, "settlement step provider does not match action provider")
	}
	statusEndpoint := ""
	if step.ExpectedOutputs != nil {
		statusEndpoint = strings.TrimSpace(step.ExpectedOutputs["order_status_endpoint"])
	}
	if !registry.IsAllowedOrderStatusURL(provider, statusEndpoint) {
		return clierr.New(clierr.CodeActionPlan, "settlement step status endpoint is not allowed; use --unsafe-provider-tx to override")
	}
	return nil
}

func parsePositiveBaseUnits(value string) (*big.Int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, false
	}
	return parsed, true
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
