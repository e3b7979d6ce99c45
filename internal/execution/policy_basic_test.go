package execution

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

func TestValidateApprovalPolicyBounded(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100"}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	if err := validateStepPolicy(action, step, 1, data, ExecuteOptions{}); err != nil {
		t.Fatalf("expected bounded approval to pass, got err=%v", err)
	}
}

func TestValidateApprovalPolicyRejectsUnlimitedByDefault(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(101))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100"}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	err = validateStepPolicy(action, step, 1, data, ExecuteOptions{})
	if err == nil {
		t.Fatal("expected bounded-approval validation to fail")
	}
	if !strings.Contains(err.Error(), "allow-max-approval") {
		t.Fatalf("expected override hint, got err=%v", err)
	}
}

func TestValidateApprovalPolicyHonorsSlippageHeadroom(t *testing.T) {
	// 0.5% on 1_000_000 allows approvals up to 1_005_000.
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(1_005_000))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "1000000", Constraints: Constraints{SlippagePct: 0.5}}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	if err := validateStepPolicy(action, step, 1, data, ExecuteOptions{}); err != nil {
		t.Fatalf("expected slippage-adjusted approval to pass, got err=%v", err)
	}

	over, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(1_005_001))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	if err := validateStepPolicy(action, step, 1, over, ExecuteOptions{}); err == nil {
		t.Fatal("expected approval above slippage-adjusted bound to fail")
	}
}

func TestValidateApprovalPolicyAllowsOverride(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(101))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100"}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	if err := validateStepPolicy(action, step, 1, data, ExecuteOptions{AllowMaxApproval: true}); err != nil {
		t.Fatalf("expected approval override to pass, got err=%v", err)
	}
}

func TestValidateApprovalPolicyPinsProviderSpender(t *testing.T) {
	contracts, ok := registry.UniswapV3Contracts(8453)
	if !ok {
		t.Fatal("expected base contracts")
	}
	foreign, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ab"), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{Provider: "uniswapv3", InputAmount: "100"}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	err = validateStepPolicy(action, step, 8453, foreign, ExecuteOptions{})
	if err == nil {
		t.Fatal("expected foreign spender to fail for uniswapv3 action")
	}
	if !strings.Contains(err.Error(), "unsafe-provider-tx") {
		t.Fatalf("expected override hint, got err=%v", err)
	}
	if err := validateStepPolicy(action, step, 8453, foreign, ExecuteOptions{UnsafeProviderTx: true}); err != nil {
		t.Fatalf("expected unsafe override to pass, got err=%v", err)
	}

	pinned, err := policyERC20ABI.Pack("approve", common.HexToAddress(contracts.Router), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	if err := validateStepPolicy(action, step, 8453, pinned, ExecuteOptions{}); err != nil {
		t.Fatalf("expected canonical router spender to pass, got err=%v", err)
	}

	fusionAction := &Action{Provider: "fusion", InputAmount: "100"}
	fusionData, err := policyERC20ABI.Pack("approve", common.HexToAddress(registry.FusionRouterV6Address), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	if err := validateStepPolicy(fusionAction, step, 1, fusionData, ExecuteOptions{}); err != nil {
		t.Fatalf("expected fusion router spender to pass, got err=%v", err)
	}

	standalone := &Action{Provider: "native", InputAmount: "100"}
	if err := validateStepPolicy(standalone, step, 1, foreign, ExecuteOptions{}); err != nil {
		t.Fatalf("expected standalone approval to accept any spender, got err=%v", err)
	}
}

func TestValidateSwapPolicyRouterTarget(t *testing.T) {
	action := &Action{Provider: "uniswapv3"}
	step := &ActionStep{
		Type:   StepTypeSwap,
		Target: "0x00000000000000000000000000000000000000cd",
	}
	if err := validateStepPolicy(action, step, 8453, policySwapMethod, ExecuteOptions{}); err == nil {
		t.Fatal("expected router mismatch to fail")
	}

	contracts, ok := registry.UniswapV3Contracts(8453)
	if !ok {
		t.Fatal("expected base contracts")
	}
	step.Target = contracts.Router
	if err := validateStepPolicy(action, step, 8453, policySwapMethod, ExecuteOptions{}); err != nil {
		t.Fatalf("expected canonical router to pass, got err=%v", err)
	}
	if err := validateStepPolicy(action, step, 8453, policyMulticallSelector, ExecuteOptions{}); err != nil {
		t.Fatalf("expected multicall wrapper to pass, got err=%v", err)
	}
}

func TestValidateSwapPolicyRejectsForeignSelector(t *testing.T) {
	action := &Action{Provider: "uniswapv3"}
	contracts, _ := registry.UniswapV3Contracts(1)
	step := &ActionStep{Type: StepTypeSwap, Target: contracts.Router}
	if err := validateStepPolicy(action, step, 1, []byte{0xde, 0xad, 0xbe, 0xef}, ExecuteOptions{}); err == nil {
		t.Fatal("expected unknown selector to fail")
	}
}

func TestValidateSettlementPolicyEndpointGuard(t *testing.T) {
	action := &Action{Provider: "fusion"}
	step := &ActionStep{
		Type:   StepTypeDeposit,
		Target: "0x00000000000000000000000000000000000000cd",
		ExpectedOutputs: map[string]string{
			"order_provider":        "fusion",
			"order_status_endpoint": "https://evil.example/status",
		},
	}
	err := validateStepPolicy(action, step, 1, []byte{0x01}, ExecuteOptions{})
	if err == nil {
		t.Fatal("expected invalid settlement endpoint to fail")
	}
	if err := validateStepPolicy(action, step, 1, []byte{0x01}, ExecuteOptions{UnsafeProviderTx: true}); err != nil {
		t.Fatalf("expected unsafe provider override to pass, got err=%v", err)
	}

	step.ExpectedOutputs["order_status_endpoint"] = registry.FusionOrderStatusURL + "/0xabc"
	if err := validateStepPolicy(action, step, 1, []byte{0x01}, ExecuteOptions{}); err != nil {
		t.Fatalf("expected canonical settlement endpoint to pass, got err=%v", err)
	}
}

func TestValidateSettlementPolicyOrderStepSkipsTargetCheck(t *testing.T) {
	action := &Action{Provider: "oneclick"}
	step := &ActionStep{
		Type: StepTypeOrder,
		ExpectedOutputs: map[string]string{
			"order_provider":        "oneclick",
			"order_status_endpoint": registry.OneClickOrderStatusURL,
		},
	}
	if err := validateStepPolicy(action, step, 0, nil, ExecuteOptions{}); err != nil {
		t.Fatalf("expected order step without target to pass, got err=%v", err)
	}
}
