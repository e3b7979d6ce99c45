package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ggonzalez94/swap-cli/internal/config"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/providers"
)

func TestResolveTradeTypeDefaultsByRouteShape(t *testing.T) {
	tt, err := resolveTradeType("", true)
	if err != nil || tt != providers.TradeTypeExactOutput {
		t.Fatalf("expected same-chain default exact-output, got %s %v", tt, err)
	}
	tt, err = resolveTradeType("", false)
	if err != nil || tt != providers.TradeTypeExactInput {
		t.Fatalf("expected cross-chain default exact-input, got %s %v", tt, err)
	}
	if _, err := resolveTradeType("exact-out", true); err == nil {
		t.Fatal("expected unknown trade type to be rejected")
	} else if cErr, ok := clierr.As(err); !ok || cErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestBuildSwapRequestCarriesSymbolAcrossChains(t *testing.T) {
	s := &runtimeState{settings: config.Settings{SettlementAsset: "USDC"}}
	req, err := s.buildSwapRequest(swapRouteArgs{
		chainArg:      "base",
		toChainArg:    "arbitrum",
		fromAssetArg:  "ETH",
		amountDecimal: "0.5",
	})
	if err != nil {
		t.Fatalf("buildSwapRequest failed: %v", err)
	}
	if req.TradeType != providers.TradeTypeExactInput {
		t.Fatalf("expected cross-chain exact-input, got %s", req.TradeType)
	}
	if req.ToAsset.Symbol != "ETH" {
		t.Fatalf("expected destination asset to carry the source symbol, got %s", req.ToAsset.Symbol)
	}
	if req.ToChain.Slug != "arbitrum" {
		t.Fatalf("unexpected destination chain: %s", req.ToChain.Slug)
	}
	if req.AmountBaseUnits != "500000000000000000" {
		t.Fatalf("unexpected base units: %s", req.AmountBaseUnits)
	}
}

func TestBuildSwapRequestFallsBackToSettlementAsset(t *testing.T) {
	s := &runtimeState{settings: config.Settings{SettlementAsset: "USDC"}}
	req, err := s.buildSwapRequest(swapRouteArgs{
		chainArg:     "base",
		toChainArg:   "arbitrum",
		fromAssetArg: "0x1111111111111111111111111111111111111111",
		amountBase:   "1000000000000000000",
	})
	if err != nil {
		t.Fatalf("buildSwapRequest failed: %v", err)
	}
	if req.ToAsset.Symbol != "USDC" {
		t.Fatalf("expected settlement asset fallback, got %s", req.ToAsset.Symbol)
	}
}

func TestBuildSwapRequestRequiresToAssetSameChain(t *testing.T) {
	s := &runtimeState{settings: config.Settings{SettlementAsset: "USDC"}}
	_, err := s.buildSwapRequest(swapRouteArgs{
		chainArg:     "base",
		fromAssetArg: "USDC",
		amountBase:   "1000000",
	})
	if err == nil {
		t.Fatal("expected missing --to-asset error on a same-chain route")
	}
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRunnerQuoteRejectsAMMCrossChain(t *testing.T) {
	setHermeticEnv(t)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{
		"quote",
		"--chain", "base",
		"--to-chain", "arbitrum",
		"--from-asset", "USDC",
		"--to-asset", "USDC",
		"--amount", "1000000",
		"--provider", "uniswapv3",
	})
	if code != 13 {
		t.Fatalf("expected unsupported exit code 13, got %d stderr=%s", code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "unsupported" {
		t.Fatalf("expected unsupported error type, got %v", errBody)
	}
}

func TestRunnerQuoteRejectsUnknownTradeType(t *testing.T) {
	setHermeticEnv(t)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{
		"quote",
		"--chain", "base",
		"--from-asset", "ETH",
		"--to-asset", "USDC",
		"--amount-decimal", "0.5",
		"--trade-type", "exact-out",
	})
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d stderr=%s", code, stderr.String())
	}
}
