package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestUniswapV3Contracts(t *testing.T) {
	supported := []int64{1, 10, 56, 137, 8453, 42161, 43114}
	for _, chainID := range supported {
		contracts, ok := UniswapV3Contracts(chainID)
		if !ok {
			t.Fatalf("expected uniswap-v3 contracts for chain %d", chainID)
		}
		if contracts.QuoterV2 == "" || contracts.Router == "" || contracts.WrappedNative == "" {
			t.Fatalf("incomplete contract set for chain %d: %+v", chainID, contracts)
		}
	}

	if _, ok := UniswapV3Contracts(999999); ok {
		t.Fatal("did not expect uniswap-v3 contracts for unsupported chain")
	}
}

func TestWrappedNative(t *testing.T) {
	weth, ok := WrappedNative(1)
	if !ok || !strings.EqualFold(weth, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") {
		t.Fatalf("unexpected mainnet wrapped native: ok=%v addr=%s", ok, weth)
	}
	if _, ok := WrappedNative(999999); ok {
		t.Fatal("did not expect wrapped native for unsupported chain")
	}
}

func TestABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20MinimalABI,
		UniswapV3QuoterV2ABI,
		UniswapV3RouterABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestDefaultRPCURL(t *testing.T) {
	if rpc, ok := DefaultRPCURL(1); !ok || rpc == "" {
		t.Fatalf("expected mainnet rpc default, got ok=%v rpc=%q", ok, rpc)
	}
	if rpc, ok := DefaultRPCURL(8453); !ok || rpc == "" {
		t.Fatalf("expected base rpc default, got ok=%v rpc=%q", ok, rpc)
	}
	if _, ok := DefaultRPCURL(999999); ok {
		t.Fatal("did not expect rpc default for unsupported chain")
	}
}

func TestResolveRPCURL(t *testing.T) {
	override, err := ResolveRPCURL(" https://rpc.example.test ", 1)
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if override != "https://rpc.example.test" {
		t.Fatalf("unexpected override value: %q", override)
	}

	defaultRPC, err := ResolveRPCURL("", 1)
	if err != nil {
		t.Fatalf("resolve with default: %v", err)
	}
	if defaultRPC == "" {
		t.Fatal("expected non-empty default rpc")
	}

	if _, err := ResolveRPCURL("", 999999); err == nil {
		t.Fatal("expected missing chain default rpc error")
	}
}

func TestOrderStatusURL(t *testing.T) {
	got, ok := OrderStatusURL("fusion")
	if !ok || got != FusionOrderStatusURL {
		t.Fatalf("unexpected fusion status url: ok=%v url=%q", ok, got)
	}
	got, ok = OrderStatusURL("oneclick")
	if !ok || got != OneClickOrderStatusURL {
		t.Fatalf("unexpected oneclick status url: ok=%v url=%q", ok, got)
	}
	if _, ok := OrderStatusURL("unknown"); ok {
		t.Fatal("did not expect status url for unknown provider")
	}
}

func TestIsAllowedOrderStatusURL(t *testing.T) {
	if !IsAllowedOrderStatusURL("fusion", "") {
		t.Fatal("expected empty endpoint to be allowed")
	}
	if !IsAllowedOrderStatusURL("fusion", FusionOrderStatusURL) {
		t.Fatal("expected canonical fusion endpoint to be allowed")
	}
	if !IsAllowedOrderStatusURL("fusion", "https://api.1inch.dev:443/fusion-plus/orders/v1.0/order/status") {
		t.Fatal("expected canonical endpoint with explicit default port to be allowed")
	}
	if IsAllowedOrderStatusURL("fusion", OneClickOrderStatusURL) {
		t.Fatal("did not expect oneclick endpoint to be allowed for fusion")
	}
	if IsAllowedOrderStatusURL("fusion", "http://api.1inch.dev/fusion-plus/orders/v1.0/order/status") {
		t.Fatal("did not expect non-https endpoint to be allowed for non-loopback")
	}
	if IsAllowedOrderStatusURL("fusion", "https://api.1inch.dev/fusion-plus/other") {
		t.Fatal("did not expect non-canonical fusion path to be allowed")
	}
	if IsAllowedOrderStatusURL("oneclick", "https://1click.chaindefuser.com/v0/status-batch") {
		t.Fatal("did not expect sibling path sharing the canonical prefix to be allowed")
	}
	if !IsAllowedOrderStatusURL("oneclick", "https://1click.chaindefuser.com/v0/status/") {
		t.Fatal("expected canonical path with trailing slash to be allowed")
	}
	if !IsAllowedOrderStatusURL("oneclick", "http://127.0.0.1:8080/v0/status") {
		t.Fatal("expected loopback endpoint to be allowed for tests/dev")
	}
	if IsAllowedOrderStatusURL("oneclick", "not-a-url") {
		t.Fatal("did not expect malformed endpoint to be allowed")
	}
}
