package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/signer"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

const fusionTestKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var fusionERC20TestABI = mustTestABI(registry.ERC20MinimalABI)

func mustTestABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func newTestClient(baseURL string) *Client {
	c := New(httpx.New(2*time.Second, 0), "test-key")
	c.baseURL = baseURL
	return c
}

func crossChainAssets(t *testing.T) (id.Chain, id.Chain, id.Asset, id.Asset) {
	t.Helper()
	from, err := id.ParseChain("ethereum")
	if err != nil {
		t.Fatalf("ParseChain ethereum failed: %v", err)
	}
	to, err := id.ParseChain("arbitrum")
	if err != nil {
		t.Fatalf("ParseChain arbitrum failed: %v", err)
	}
	srcUSDC, err := id.ParseAsset("USDC", from)
	if err != nil {
		t.Fatalf("ParseAsset source USDC failed: %v", err)
	}
	dstUSDC, err := id.ParseAsset("USDC", to)
	if err != nil {
		t.Fatalf("ParseAsset destination USDC failed: %v", err)
	}
	return from, to, srcUSDC, dstUSDC
}

func quotePayload() map[string]any {
	return map[string]any{
		"quoteId":           "q-123",
		"srcTokenAmount":    "250000000",
		"dstTokenAmount":    "249100000",
		"recommendedPreset": "fast",
		"presets": map[string]any{
			"fast": map[string]any{
				"auctionStartAmount": "249500000",
				"auctionEndAmount":   "247800000",
				"auctionDuration":    24,
				"startAuctionIn":     12,
			},
			"slow": map[string]any{
				"auctionStartAmount": "249900000",
				"auctionEndAmount":   "248900000",
				"auctionDuration":    180,
				"startAuctionIn":     12,
			},
		},
	}
}

func newQuoteAPIServer(t *testing.T, payload map[string]any, gotQuery *url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quoter/v1.0/quote/receive" {
			t.Errorf("unexpected quote path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// newAllowanceServer answers every eth_call with the given allowance.
func newAllowanceServer(t *testing.T, allowance *big.Int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Method != "eth_call" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not supported in test"}}`, rawIDOrDefault(req.ID))
			return
		}
		payload, err := fusionERC20TestABI.Methods["allowance"].Outputs.Pack(allowance)
		if err != nil {
			t.Errorf("pack allowance output: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x%x"}`, rawIDOrDefault(req.ID), payload)
	}))
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

func TestGetQuoteNormalizesRecommendedPreset(t *testing.T) {
	var gotQuery url.Values
	server := newQuoteAPIServer(t, quotePayload(), &gotQuery)
	defer server.Close()

	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	c := newTestClient(server.URL)
	quote, err := c.GetQuote(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		TradeType:       providers.TradeTypeExactInput,
		AmountBaseUnits: "250000000",
	})
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if c.Kind() != providers.KindAggregator {
		t.Fatalf("expected aggregator kind, got %s", c.Kind())
	}
	if quote.Provider != "fusion" || quote.Kind != "aggregator" {
		t.Fatalf("unexpected provider identity: %s/%s", quote.Provider, quote.Kind)
	}
	if quote.TradeType != "EXACT_INPUT" {
		t.Fatalf("unexpected trade type: %s", quote.TradeType)
	}
	if quote.OutputAmount.AmountBaseUnits != "249100000" {
		t.Fatalf("expected venue output amount, got %s", quote.OutputAmount.AmountBaseUnits)
	}
	if quote.MinOutputAmount == nil || quote.MinOutputAmount.AmountBaseUnits != "247800000" {
		t.Fatalf("expected auction floor as minimum output, got %+v", quote.MinOutputAmount)
	}
	if quote.Route != "fusion-fast" {
		t.Fatalf("expected recommended preset in route, got %s", quote.Route)
	}
	if quote.EstimatedTimeS != 36 {
		t.Fatalf("expected auction window 36s, got %d", quote.EstimatedTimeS)
	}
	if quote.FromChainID != "eip155:1" || quote.ToChainID != "eip155:42161" {
		t.Fatalf("unexpected chain ids: %s -> %s", quote.FromChainID, quote.ToChainID)
	}

	if gotQuery.Get("srcChain") != "1" || gotQuery.Get("dstChain") != "42161" {
		t.Fatalf("unexpected chain query params: %v", gotQuery)
	}
	if gotQuery.Get("amount") != "250000000" {
		t.Fatalf("unexpected amount param: %s", gotQuery.Get("amount"))
	}
	// Quote-only requests use the placeholder wallet.
	if gotQuery.Get("walletAddress") != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("unexpected wallet param: %s", gotQuery.Get("walletAddress"))
	}
	if gotQuery.Get("enableEstimate") != "false" {
		t.Fatalf("quote requests must not arm estimation, got %s", gotQuery.Get("enableEstimate"))
	}
}

func TestGetQuoteRejectsQuoteWithoutRecommendedPreset(t *testing.T) {
	payload := quotePayload()
	delete(payload, "recommendedPreset")
	server := newQuoteAPIServer(t, payload, nil)
	defer server.Close()

	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	_, err := newTestClient(server.URL).GetQuote(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		AmountBaseUnits: "250000000",
	})
	if err == nil {
		t.Fatal("expected rejection of quote without recommended preset")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestGetQuoteRejectsPresetMissingAuctionAmounts(t *testing.T) {
	payload := quotePayload()
	payload["presets"] = map[string]any{
		"fast": map[string]any{"auctionDuration": 24},
	}
	server := newQuoteAPIServer(t, payload, nil)
	defer server.Close()

	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	_, err := newTestClient(server.URL).GetQuote(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		AmountBaseUnits: "250000000",
	})
	if err == nil {
		t.Fatal("expected rejection of preset without auction amounts")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestGetQuoteRejectsNativeInput(t *testing.T) {
	from, to, _, dstUSDC := crossChainAssets(t)
	_, err := New(httpx.New(time.Second, 0), "").GetQuote(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       id.NativeAsset(from),
		ToAsset:         dstUSDC,
		AmountBaseUnits: "1000000000000000000",
	})
	if err == nil {
		t.Fatal("expected native input rejection")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestGetQuoteRejectsExactOutput(t *testing.T) {
	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	_, err := New(httpx.New(time.Second, 0), "").GetQuote(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		TradeType:       providers.TradeTypeExactOutput,
		AmountBaseUnits: "250000000",
	})
	if err == nil {
		t.Fatal("expected exact-output rejection")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeUnsupported {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestBuildSwapActionPlansApprovalThenOrder(t *testing.T) {
	var gotQuery url.Values
	server := newQuoteAPIServer(t, quotePayload(), &gotQuery)
	defer server.Close()
	rpc := newAllowanceServer(t, big.NewInt(0))
	defer rpc.Close()

	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	sender := "0x00000000000000000000000000000000000000Aa"
	action, err := newTestClient(server.URL).BuildSwapAction(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		AmountBaseUnits: "250000000",
	}, providers.ExecutionOptions{
		Sender: sender,
		RPCURL: rpc.URL,
	})
	if err != nil {
		t.Fatalf("BuildSwapAction failed: %v", err)
	}

	if gotQuery.Get("walletAddress") != sender {
		t.Fatalf("execution quote must use the sender wallet, got %s", gotQuery.Get("walletAddress"))
	}
	if gotQuery.Get("enableEstimate") != "true" {
		t.Fatalf("execution quotes must arm estimation, got %s", gotQuery.Get("enableEstimate"))
	}

	if action.Provider != "fusion" || action.InputAmount != "250000000" {
		t.Fatalf("unexpected action identity: %s/%s", action.Provider, action.InputAmount)
	}
	if len(action.Steps) != 2 {
		t.Fatalf("expected approval + order steps, got %d", len(action.Steps))
	}
	approve := action.Steps[0]
	if approve.Type != execution.StepTypeApproval {
		t.Fatalf("expected first step approval, got %s", approve.Type)
	}
	if !strings.EqualFold(approve.Target, srcUSDC.Address) {
		t.Fatalf("approval must target the input token, got %s", approve.Target)
	}
	args, err := fusionERC20TestABI.Methods["approve"].Inputs.Unpack(common.FromHex(approve.Data)[4:])
	if err != nil {
		t.Fatalf("unpack approve calldata: %v", err)
	}
	if spender := args[0].(common.Address); spender != common.HexToAddress(registry.FusionRouterV6Address) {
		t.Fatalf("approval spender must be the settlement router, got %s", spender)
	}
	// Orders pull the making amount exactly, no slippage headroom.
	if amount := args[1].(*big.Int); amount.String() != "250000000" {
		t.Fatalf("expected approval for exactly 250000000, got %s", amount)
	}

	order := action.Steps[1]
	if order.Type != execution.StepTypeOrder {
		t.Fatalf("expected second step order, got %s", order.Type)
	}
	if order.ExpectedOutputs["order_provider"] != "fusion" {
		t.Fatalf("expected fusion order provider, got %s", order.ExpectedOutputs["order_provider"])
	}
	if order.ExpectedOutputs["order_status_endpoint"] != registry.FusionOrderStatusURL {
		t.Fatalf("expected canonical status endpoint, got %s", order.ExpectedOutputs["order_status_endpoint"])
	}
	if order.ExpectedOutputs["min_amount_out"] != "247800000" {
		t.Fatalf("expected auction floor in expected outputs, got %s", order.ExpectedOutputs["min_amount_out"])
	}

	for key, want := range map[string]string{
		"quote_id":      "q-123",
		"preset":        "fast",
		"src_chain_id":  "1",
		"making_amount": "250000000",
		"taking_amount": "247800000",
		"receiver":      common.HexToAddress(sender).Hex(),
	} {
		if got, _ := action.ProviderData[key].(string); got != want {
			t.Fatalf("provider data %s: expected %s, got %q", key, want, got)
		}
	}
}

func TestBuildSwapActionSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	server := newQuoteAPIServer(t, quotePayload(), nil)
	defer server.Close()
	rpc := newAllowanceServer(t, big.NewInt(250_000_000))
	defer rpc.Close()

	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	action, err := newTestClient(server.URL).BuildSwapAction(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		AmountBaseUnits: "250000000",
	}, providers.ExecutionOptions{
		Sender: "0x00000000000000000000000000000000000000Aa",
		RPCURL: rpc.URL,
	})
	if err != nil {
		t.Fatalf("BuildSwapAction failed: %v", err)
	}
	if len(action.Steps) != 1 {
		t.Fatalf("expected order step only, got %d", len(action.Steps))
	}
	if action.Steps[0].Type != execution.StepTypeOrder {
		t.Fatalf("expected order step, got %s", action.Steps[0].Type)
	}
}

func TestBuildSwapActionRequiresSender(t *testing.T) {
	from, to, srcUSDC, dstUSDC := crossChainAssets(t)
	_, err := New(httpx.New(time.Second, 0), "").BuildSwapAction(context.Background(), providers.QuoteRequest{
		FromChain:       from,
		ToChain:         to,
		FromAsset:       srcUSDC,
		ToAsset:         dstUSDC,
		AmountBaseUnits: "250000000",
	}, providers.ExecutionOptions{})
	if err == nil {
		t.Fatal("expected missing sender error")
	}
}

func plannedOrderAction(deadline int64) execution.Action {
	action := execution.NewAction("act_test", "swap", "eip155:1", execution.Constraints{})
	action.Provider = "fusion"
	action.ProviderData = map[string]interface{}{
		"quote_id":      "q-123",
		"preset":        "fast",
		"src_chain_id":  "1",
		"maker_asset":   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"taker_asset":   "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
		"making_amount": "250000000",
		"taking_amount": "247800000",
		"receiver":      "0x00000000000000000000000000000000000000Bb",
		"deadline":      fmt.Sprintf("%d", deadline),
	}
	return action
}

func TestOrderHandlerSubmitSignsAndPostsOrder(t *testing.T) {
	deadline := time.Now().Add(time.Hour).Unix()
	var got submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/relayer/v1.0/submit" {
			t.Errorf("unexpected submit request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode submit body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderHash":"0x60c7a1e3f9"}`))
	}))
	defer server.Close()

	txSigner, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: fusionTestKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	action := plannedOrderAction(deadline)
	step := execution.ActionStep{StepID: "submit-order", Type: execution.StepTypeOrder}

	handler := newTestClient(server.URL).OrderHandler(txSigner)
	orderHash, err := handler.Submit(context.Background(), &action, &step)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if orderHash != "0x60c7a1e3f9" {
		t.Fatalf("expected relayer order hash, got %s", orderHash)
	}

	if got.SrcChainID != 1 || got.QuoteID != "q-123" {
		t.Fatalf("unexpected submission envelope: %+v", got)
	}
	if got.Order.Maker != txSigner.Address().Hex() {
		t.Fatalf("order maker must be the signer, got %s", got.Order.Maker)
	}
	if got.Order.MakingAmount != "250000000" || got.Order.TakingAmount != "247800000" {
		t.Fatalf("unexpected order amounts: %+v", got.Order)
	}
	traits, ok := new(big.Int).SetString(got.Order.MakerTraits, 10)
	if !ok {
		t.Fatalf("maker traits must be a decimal integer, got %s", got.Order.MakerTraits)
	}
	if packed := new(big.Int).Rsh(traits, 80).Int64(); packed != deadline {
		t.Fatalf("expected deadline %d packed into maker traits, got %d", deadline, packed)
	}

	// The posted signature must recover to the maker over the same typed data.
	sig := common.FromHex(got.Signature)
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d bytes", len(sig))
	}
	hash, _, err := apitypes.TypedDataAndHash(orderTypedData(got.Order, got.SrcChainID))
	if err != nil {
		t.Fatalf("hash posted order: %v", err)
	}
	recovered := make([]byte, 65)
	copy(recovered, sig)
	recovered[64] -= 27
	pub, err := crypto.SigToPub(hash, recovered)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if addr := crypto.PubkeyToAddress(*pub); addr != txSigner.Address() {
		t.Fatalf("signature recovers to %s, want %s", addr.Hex(), txSigner.Address().Hex())
	}
}

func TestOrderHandlerSubmitRequiresPlannedOrderData(t *testing.T) {
	txSigner, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: fusionTestKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	action := execution.NewAction("act_test", "swap", "eip155:1", execution.Constraints{})
	step := execution.ActionStep{StepID: "submit-order", Type: execution.StepTypeOrder}

	_, err = New(httpx.New(time.Second, 0), "").OrderHandler(txSigner).Submit(context.Background(), &action, &step)
	if err == nil {
		t.Fatal("expected missing order data error")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeActionPlan {
		t.Fatalf("expected action plan error, got %v", err)
	}
}

func TestOrderHandlerSubmitRejectsPassedDeadline(t *testing.T) {
	txSigner, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: fusionTestKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	action := plannedOrderAction(time.Now().Add(-time.Minute).Unix())
	step := execution.ActionStep{StepID: "submit-order", Type: execution.StepTypeOrder}

	_, err = New(httpx.New(time.Second, 0), "").OrderHandler(txSigner).Submit(context.Background(), &action, &step)
	if err == nil {
		t.Fatal("expected expired deadline error")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeActionPlan {
		t.Fatalf("expected action plan error, got %v", err)
	}
}

func TestOrderStatusMapsAuctionLifecycle(t *testing.T) {
	cases := []struct {
		venue string
		want  string
	}{
		{"pending", model.OrderStatusPending},
		{"refunding", model.OrderStatusPending},
		{"executed", model.OrderStatusFilled},
		{"expired", model.OrderStatusExpired},
		{"cancelled", model.OrderStatusCancelled},
		{"refunded", model.OrderStatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.venue, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprintf(w, `{"status":%q}`, tc.venue)
			}))
			defer server.Close()

			// Status polling never signs anything.
			status, err := newTestClient(server.URL).OrderHandler(nil).Status(context.Background(), "0xabc")
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if status != tc.want {
				t.Fatalf("expected %s for venue status %s, got %s", tc.want, tc.venue, status)
			}
		})
	}
}

func TestLookupOrderBuildsOrderRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/v1.0/order/status/0xabc" {
			t.Errorf("unexpected status path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "executed",
			"srcChainId": 1,
			"dstChainId": 42161,
			"createdAt": "2024-05-01T12:00:00Z",
			"order": {"makingAmount": "250000000"},
			"approximateTakingAmount": "248000000",
			"fills": [{"txHash": "0x111"}, {"txHash": "0x222"}]
		}`))
	}))
	defer server.Close()

	order, err := newTestClient(server.URL).LookupOrder(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("LookupOrder failed: %v", err)
	}
	if order.OrderID != "0xabc" || order.Provider != "fusion" {
		t.Fatalf("unexpected order identity: %+v", order)
	}
	if order.Status != model.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", order.Status)
	}
	if order.FromChainID != "eip155:1" || order.ToChainID != "eip155:42161" {
		t.Fatalf("unexpected chain ids: %s -> %s", order.FromChainID, order.ToChainID)
	}
	if order.AmountIn != "250000000" || order.AmountOut != "248000000" {
		t.Fatalf("unexpected amounts: in=%s out=%s", order.AmountIn, order.AmountOut)
	}
	if len(order.FillTxHashes) != 2 || order.FillTxHashes[0] != "0x111" {
		t.Fatalf("unexpected fill hashes: %v", order.FillTxHashes)
	}
}

func TestLookupOrderRequiresHash(t *testing.T) {
	_, err := New(httpx.New(time.Second, 0), "").LookupOrder(context.Background(), "  ")
	if err == nil {
		t.Fatal("expected missing order hash error")
	}
	cliErr, ok := clierr.As(err)
	if !ok || cliErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}
