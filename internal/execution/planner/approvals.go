package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// AllowanceBackend reads contract state for allowance checks.
// *ethclient.Client satisfies it.
type AllowanceBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type ApprovalRequest struct {
	Chain           id.Chain
	Asset           id.Asset
	AmountBaseUnits string
	Sender          string
	Spender         string
	Simulate        bool
	RPCURL          string
}

// EnsureAllowanceRequest describes one spender's claim on one token.
// Required is the exact base-unit amount the upcoming transaction will
// pull from the owner.
type EnsureAllowanceRequest struct {
	Chain    id.Chain
	Asset    id.Asset
	Owner    string
	Spender  string
	Required *big.Int
	RPCURL   string
}

// ReadAllowance returns the current ERC20 allowance granted by owner to
// spender. A token that reverts or returns malformed data reads as zero.
func ReadAllowance(ctx context.Context, backend AllowanceBackend, token, owner, spender common.Address) (*big.Int, error) {
	data, err := plannerERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance calldata", err)
	}
	raw, err := backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token allowance", err)
	}
	if len(raw) < 32 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw[:32]), nil
}

// EnsureAllowanceStep compares the live allowance against the required
// amount and returns an approval step only when the allowance falls short.
// The approval is always for exactly the required amount, never unbounded.
// Native assets spend directly and never produce a step.
func EnsureAllowanceStep(ctx context.Context, backend AllowanceBackend, req EnsureAllowanceRequest) (*execution.ActionStep, model.Allowance, error) {
	if req.Required == nil || req.Required.Sign() <= 0 {
		return nil, model.Allowance{}, clierr.New(clierr.CodeUsage, "allowance check requires a positive amount")
	}
	owner := strings.TrimSpace(req.Owner)
	spender := strings.TrimSpace(req.Spender)
	if !common.IsHexAddress(owner) {
		return nil, model.Allowance{}, clierr.New(clierr.CodeUsage, "allowance check requires a valid owner address")
	}
	if !common.IsHexAddress(spender) {
		return nil, model.Allowance{}, clierr.New(clierr.CodeUsage, "allowance check requires a valid spender address")
	}

	record := model.Allowance{
		ChainID:  req.Chain.CAIP2,
		Owner:    common.HexToAddress(owner).Hex(),
		Spender:  common.HexToAddress(spender).Hex(),
		Required: req.Required.String(),
	}
	if req.Asset.Native || id.IsNativeAddress(req.Asset.Address) {
		record.Token = req.Asset.Address
		record.Current = req.Required.String()
		return nil, record, nil
	}
	if !common.IsHexAddress(req.Asset.Address) {
		return nil, model.Allowance{}, clierr.New(clierr.CodeUsage, "allowance check requires an ERC20 token address")
	}
	record.Token = common.HexToAddress(req.Asset.Address).Hex()

	current, err := ReadAllowance(ctx, backend, common.HexToAddress(req.Asset.Address), common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, model.Allowance{}, err
	}
	record.Current = current.String()
	if current.Cmp(req.Required) >= 0 {
		return nil, record, nil
	}
	record.NeedsApproval = true

	rpcURL, err := registry.ResolveRPCURL(req.RPCURL, req.Chain.EVMChainID)
	if err != nil {
		return nil, model.Allowance{}, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	approveData, err := plannerERC20ABI.Pack("approve", common.HexToAddress(spender), new(big.Int).Set(req.Required))
	if err != nil {
		return nil, model.Allowance{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	step := &execution.ActionStep{
		StepID:      "approve-token",
		Type:        execution.StepTypeApproval,
		Status:      execution.StepStatusPending,
		ChainID:     req.Chain.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Approve %s for spender", strings.ToUpper(req.Asset.Symbol)),
		Target:      record.Token,
		Data:        "0x" + common.Bytes2Hex(approveData),
		Value:       "0",
	}
	return step, record, nil
}

func BuildApprovalAction(req ApprovalRequest) (execution.Action, error) {
	sender := strings.TrimSpace(req.Sender)
	if sender == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval requires sender address")
	}
	if !common.IsHexAddress(sender) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval sender must be a valid EVM address")
	}
	spender := strings.TrimSpace(req.Spender)
	if spender == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval requires spender address")
	}
	if !common.IsHexAddress(spender) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval spender must be a valid EVM address")
	}
	if !common.IsHexAddress(req.Asset.Address) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval requires ERC20 token address")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountBaseUnits), 10)
	if !ok || amount.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval amount must be a positive integer in base units")
	}

	rpcURL, err := registry.ResolveRPCURL(req.RPCURL, req.Chain.EVMChainID)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}

	approveData, err := plannerERC20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	action := execution.NewAction(execution.NewActionID(), "approve", req.Chain.CAIP2, execution.Constraints{Simulate: req.Simulate})
	action.Provider = "native"
	action.FromAddress = common.HexToAddress(sender).Hex()
	action.ToAddress = common.HexToAddress(spender).Hex()
	action.InputAmount = amount.String()
	action.Metadata = map[string]any{
		"asset_id": req.Asset.AssetID,
		"spender":  common.HexToAddress(spender).Hex(),
	}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "approve-token",
		Type:        execution.StepTypeApproval,
		Status:      execution.StepStatusPending,
		ChainID:     req.Chain.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Approve %s for spender", strings.ToUpper(req.Asset.Symbol)),
		Target:      common.HexToAddress(req.Asset.Address).Hex(),
		Data:        "0x" + common.Bytes2Hex(approveData),
		Value:       "0",
	})
	return action, nil
}

var plannerERC20ABI = mustPlannerABI(registry.ERC20MinimalABI)

func mustPlannerABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
