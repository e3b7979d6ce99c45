// Package fusion routes cross-chain swaps through the 1inch Fusion+
// order-matching auction. Quoting reads the venue's preset-based REST
// quote; execution signs an EIP-712 order with the local signer, submits
// it to the relayer and polls the order hash to a terminal status. No
// source-chain transaction is broadcast beyond the token approval.
package fusion

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/planner"
	"github.com/ggonzalez94/swap-cli/internal/execution/signer"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// Orders stay biddable for the auction window; the grace period covers
// resolver settlement after the last accepted bid.
const settlementGrace = 5 * time.Minute

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: registry.FusionBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		now:     time.Now,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "fusion",
		Type:          "swap",
		RequiresKey:   true,
		KeyEnvVarName: "SWAP_FUSION_API_KEY",
		Capabilities: []string{
			"swap.quote",
			"swap.plan",
			"swap.execute",
			"order.status",
		},
	}
}

func (c *Client) Kind() providers.Kind {
	return providers.KindAggregator
}

type quotePreset struct {
	AuctionStartAmount string `json:"auctionStartAmount"`
	AuctionEndAmount   string `json:"auctionEndAmount"`
	AuctionDuration    int64  `json:"auctionDuration"`
	StartAuctionIn     int64  `json:"startAuctionIn"`
}

type quoteResponse struct {
	QuoteID           string                 `json:"quoteId"`
	SrcTokenAmount    string                 `json:"srcTokenAmount"`
	DstTokenAmount    string                 `json:"dstTokenAmount"`
	RecommendedPreset string                 `json:"recommendedPreset"`
	Presets           map[string]quotePreset `json:"presets"`
}

func (c *Client) GetQuote(ctx context.Context, req providers.QuoteRequest) (model.SwapQuote, error) {
	if err := validateOrderRequest(req); err != nil {
		return model.SwapQuote{}, err
	}
	amountIn, err := parseOrderAmount(req.AmountBaseUnits)
	if err != nil {
		return model.SwapQuote{}, err
	}
	wallet := strings.TrimSpace(req.Sender)
	if wallet == "" {
		// The quoter insists on a wallet; quote-only requests use a
		// placeholder the venue accepts.
		wallet = "0x0000000000000000000000000000000000000001"
	}
	if !common.IsHexAddress(wallet) {
		return model.SwapQuote{}, clierr.New(clierr.CodeUsage, "fusion quote sender must be a valid EVM address")
	}

	resp, err := c.fetchQuote(ctx, req, amountIn, wallet, false)
	if err != nil {
		return model.SwapQuote{}, err
	}
	presetName, preset, err := preferredPreset(resp)
	if err != nil {
		return model.SwapQuote{}, err
	}

	inDecimal := req.AmountDecimal
	if inDecimal == "" {
		inDecimal = id.FormatDecimalCompat(amountIn.String(), req.FromAsset.Decimals)
	}
	return model.SwapQuote{
		Provider:    "fusion",
		Kind:        string(providers.KindAggregator),
		TradeType:   model.TradeTypeExactInput,
		FromChainID: req.FromChain.CAIP2,
		ToChainID:   req.ToChain.CAIP2,
		FromAssetID: req.FromAsset.AssetID,
		ToAssetID:   req.ToAsset.AssetID,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: amountIn.String(),
			AmountDecimal:   inDecimal,
			Decimals:        req.FromAsset.Decimals,
		},
		OutputAmount: model.AmountInfo{
			AmountBaseUnits: resp.DstTokenAmount,
			AmountDecimal:   id.FormatDecimalCompat(resp.DstTokenAmount, req.ToAsset.Decimals),
			Decimals:        req.ToAsset.Decimals,
		},
		MinOutputAmount: &model.AmountInfo{
			AmountBaseUnits: preset.AuctionEndAmount,
			AmountDecimal:   id.FormatDecimalCompat(preset.AuctionEndAmount, req.ToAsset.Decimals),
			Decimals:        req.ToAsset.Decimals,
		},
		EstimatedTimeS: preset.StartAuctionIn + preset.AuctionDuration,
		Route:          "fusion-" + presetName,
		SourceURL:      "https://app.1inch.io",
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) BuildSwapAction(ctx context.Context, req providers.QuoteRequest, opts providers.ExecutionOptions) (execution.Action, error) {
	if err := validateOrderRequest(req); err != nil {
		return execution.Action{}, err
	}
	sender := strings.TrimSpace(opts.Sender)
	if sender == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "fusion order requires sender address")
	}
	if !common.IsHexAddress(sender) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "fusion order sender must be a valid EVM address")
	}
	recipient := strings.TrimSpace(opts.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "fusion order recipient must be a valid EVM address")
	}
	amountIn, err := parseOrderAmount(req.AmountBaseUnits)
	if err != nil {
		return execution.Action{}, err
	}

	resp, err := c.fetchQuote(ctx, req, amountIn, sender, true)
	if err != nil {
		return execution.Action{}, err
	}
	presetName, preset, err := preferredPreset(resp)
	if err != nil {
		return execution.Action{}, err
	}
	floor, ok := new(big.Int).SetString(preset.AuctionEndAmount, 10)
	if !ok || floor.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeUnavailable, "fusion preset auction floor is not a positive integer")
	}

	deadline := req.Deadline
	if deadline.IsZero() {
		auctionWindow := time.Duration(preset.StartAuctionIn+preset.AuctionDuration) * time.Second
		deadline = c.now().Add(auctionWindow + settlementGrace)
	}

	action := execution.NewAction(execution.NewActionID(), "swap", req.FromChain.CAIP2, execution.Constraints{
		SlippagePct: opts.SlippagePct,
		Deadline:    deadline.UTC().Format(time.RFC3339),
		Simulate:    opts.Simulate,
	})
	action.Provider = "fusion"
	action.FromAddress = common.HexToAddress(sender).Hex()
	action.ToAddress = common.HexToAddress(recipient).Hex()
	action.InputAmount = amountIn.String()
	action.Metadata = map[string]any{
		"to_chain_id":   req.ToChain.CAIP2,
		"from_asset_id": req.FromAsset.AssetID,
		"to_asset_id":   req.ToAsset.AssetID,
		"quote_id":      resp.QuoteID,
		"preset":        presetName,
		"amount_out":    resp.DstTokenAmount,
	}
	// Submission happens later, possibly in another process, so everything
	// the signed order needs is carried as plain strings on the action.
	action.ProviderData = map[string]interface{}{
		"quote_id":      resp.QuoteID,
		"preset":        presetName,
		"src_chain_id":  strconv.FormatInt(req.FromChain.EVMChainID, 10),
		"maker_asset":   common.HexToAddress(req.FromAsset.Address).Hex(),
		"taker_asset":   strings.ToLower(strings.TrimSpace(req.ToAsset.Address)),
		"making_amount": amountIn.String(),
		"taking_amount": floor.String(),
		"receiver":      common.HexToAddress(recipient).Hex(),
		"deadline":      strconv.FormatInt(deadline.Unix(), 10),
	}

	// The router pulls exactly the making amount when a resolver fills the
	// order, so that is the allowance it needs.
	backend, err := dialAllowanceBackend(ctx, req.FromChain, opts.RPCURL)
	if err != nil {
		return execution.Action{}, err
	}
	defer backend.Close()
	approvalStep, _, err := planner.EnsureAllowanceStep(ctx, backend, planner.EnsureAllowanceRequest{
		Chain:    req.FromChain,
		Asset:    req.FromAsset,
		Owner:    sender,
		Spender:  registry.FusionRouterV6Address,
		Required: amountIn,
		RPCURL:   opts.RPCURL,
	})
	if err != nil {
		return execution.Action{}, err
	}
	if approvalStep != nil {
		action.Steps = append(action.Steps, *approvalStep)
	}

	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "submit-order",
		Type:        execution.StepTypeOrder,
		Status:      execution.StepStatusPending,
		ChainID:     req.FromChain.CAIP2,
		Description: fmt.Sprintf("Submit Fusion %s order for cross-chain fill", presetName),
		Target:      registry.FusionRouterV6Address,
		Data:        "0x",
		Value:       "0",
		ExpectedOutputs: map[string]string{
			"order_provider":        "fusion",
			"order_status_endpoint": registry.FusionOrderStatusURL,
			"amount_out":            resp.DstTokenAmount,
			"min_amount_out":        floor.String(),
		},
	})
	return action, nil
}

func (c *Client) OrderHandler(txSigner signer.Signer) execution.OrderHandler {
	return &orderHandler{client: c, signer: txSigner}
}

type statusResponse struct {
	Status     string `json:"status"`
	SrcChainID int64  `json:"srcChainId"`
	DstChainID int64  `json:"dstChainId"`
	CreatedAt  string `json:"createdAt"`
	Order      struct {
		MakingAmount string `json:"makingAmount"`
	} `json:"order"`
	ApproximateTakingAmount string `json:"approximateTakingAmount"`
	Fills                   []struct {
		TxHash string `json:"txHash"`
	} `json:"fills"`
}

func (c *Client) LookupOrder(ctx context.Context, orderID string) (model.Order, error) {
	hash := strings.TrimSpace(orderID)
	if hash == "" {
		return model.Order{}, clierr.New(clierr.CodeUsage, "order lookup requires an order hash")
	}
	statusURL := c.baseURL + "/orders/v1.0/order/status/" + url.PathEscape(hash)
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return model.Order{}, clierr.Wrap(clierr.CodeInternal, "build fusion status request", err)
	}
	c.authorize(hReq)
	var resp statusResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.Order{}, err
	}
	if strings.TrimSpace(resp.Status) == "" {
		return model.Order{}, clierr.New(clierr.CodeUnavailable, "fusion order status missing status field")
	}

	order := model.Order{
		OrderID:   hash,
		Provider:  "fusion",
		Status:    mapOrderStatus(resp.Status),
		AmountIn:  resp.Order.MakingAmount,
		AmountOut: resp.ApproximateTakingAmount,
		CreatedAt: resp.CreatedAt,
		FetchedAt: c.now().UTC().Format(time.RFC3339),
	}
	if resp.SrcChainID != 0 {
		order.FromChainID = fmt.Sprintf("eip155:%d", resp.SrcChainID)
	}
	if resp.DstChainID != 0 {
		order.ToChainID = fmt.Sprintf("eip155:%d", resp.DstChainID)
	}
	for _, fill := range resp.Fills {
		if strings.TrimSpace(fill.TxHash) != "" {
			order.FillTxHashes = append(order.FillTxHashes, fill.TxHash)
		}
	}
	return order, nil
}

type orderHandler struct {
	client *Client
	signer signer.Signer
}

type orderPayload struct {
	Salt         string `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	MakerTraits  string `json:"makerTraits"`
}

type submitRequest struct {
	Order      orderPayload `json:"order"`
	SrcChainID int64        `json:"srcChainId"`
	Signature  string       `json:"signature"`
	QuoteID    string       `json:"quoteId"`
}

type submitResponse struct {
	OrderHash string `json:"orderHash"`
}

// Submit signs the planned order as EIP-712 typed data and hands it to
// the relayer. The returned order hash is the settlement identifier every
// later status poll keys on.
func (h *orderHandler) Submit(ctx context.Context, action *execution.Action, step *execution.ActionStep) (string, error) {
	if h.signer == nil {
		return "", clierr.New(clierr.CodeSigner, "fusion order submission requires a signer")
	}
	quoteID, err := providerDataString(action, "quote_id")
	if err != nil {
		return "", err
	}
	makerAsset, err := providerDataString(action, "maker_asset")
	if err != nil {
		return "", err
	}
	takerAsset, err := providerDataString(action, "taker_asset")
	if err != nil {
		return "", err
	}
	makingAmount, err := providerDataString(action, "making_amount")
	if err != nil {
		return "", err
	}
	takingAmount, err := providerDataString(action, "taking_amount")
	if err != nil {
		return "", err
	}
	receiver, err := providerDataString(action, "receiver")
	if err != nil {
		return "", err
	}
	chainIDRaw, err := providerDataString(action, "src_chain_id")
	if err != nil {
		return "", err
	}
	chainID, err := strconv.ParseInt(chainIDRaw, 10, 64)
	if err != nil || chainID <= 0 {
		return "", clierr.New(clierr.CodeActionPlan, "fusion order plan has invalid source chain id")
	}
	deadlineRaw, err := providerDataString(action, "deadline")
	if err != nil {
		return "", err
	}
	deadline, err := strconv.ParseInt(deadlineRaw, 10, 64)
	if err != nil || deadline <= 0 {
		return "", clierr.New(clierr.CodeActionPlan, "fusion order plan has invalid deadline")
	}
	if h.client.now().Unix() >= deadline {
		return "", clierr.New(clierr.CodeActionPlan, "fusion order plan deadline has already passed; re-plan the swap")
	}

	salt, err := newOrderSalt()
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "generate order salt", err)
	}
	// The order's expiration lives in bits 80..119 of makerTraits.
	traits := new(big.Int).Lsh(big.NewInt(deadline), 80)
	order := orderPayload{
		Salt:         salt.String(),
		Maker:        h.signer.Address().Hex(),
		Receiver:     receiver,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		MakerTraits:  traits.String(),
	}

	sig, err := h.signer.SignTypedData(orderTypedData(order, chainID))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign fusion order", err)
	}

	body, err := json.Marshal(submitRequest{
		Order:      order,
		SrcChainID: chainID,
		Signature:  hexutil.Encode(sig),
		QuoteID:    quoteID,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode fusion order submission", err)
	}

	var resp submitResponse
	submitURL := h.client.baseURL + "/relayer/v1.0/submit"
	if _, err := httpx.DoBodyJSON(ctx, h.client.http, http.MethodPost, submitURL, body, h.client.authHeaders(), &resp); err != nil {
		return "", err
	}
	orderHash := strings.TrimSpace(resp.OrderHash)
	if orderHash == "" {
		return "", clierr.New(clierr.CodeUnavailable, "fusion relayer did not return an order hash")
	}
	return orderHash, nil
}

func (h *orderHandler) Status(ctx context.Context, orderID string) (string, error) {
	order, err := h.client.LookupOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (c *Client) fetchQuote(ctx context.Context, req providers.QuoteRequest, amountIn *big.Int, wallet string, forExecution bool) (quoteResponse, error) {
	vals := url.Values{}
	vals.Set("srcChain", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("dstChain", strconv.FormatInt(req.ToChain.EVMChainID, 10))
	vals.Set("srcTokenAddress", strings.ToLower(strings.TrimSpace(req.FromAsset.Address)))
	vals.Set("dstTokenAddress", strings.ToLower(strings.TrimSpace(req.ToAsset.Address)))
	vals.Set("amount", amountIn.String())
	vals.Set("walletAddress", wallet)
	vals.Set("enableEstimate", strconv.FormatBool(forExecution))

	quoteURL := c.baseURL + "/quoter/v1.0/quote/receive?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
	if err != nil {
		return quoteResponse{}, clierr.Wrap(clierr.CodeInternal, "build fusion quote request", err)
	}
	c.authorize(hReq)
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return quoteResponse{}, err
	}
	if strings.TrimSpace(resp.DstTokenAmount) == "" {
		return quoteResponse{}, clierr.New(clierr.CodeUnavailable, "fusion quote missing output amount")
	}
	return resp, nil
}

// preferredPreset resolves the auction parameters the venue recommends.
// A quote whose recommended preset is absent or incomplete is rejected
// rather than normalized into a route with made-up amounts.
func preferredPreset(resp quoteResponse) (string, quotePreset, error) {
	name := strings.TrimSpace(resp.RecommendedPreset)
	if name == "" {
		return "", quotePreset{}, clierr.New(clierr.CodeUnavailable, "fusion quote missing recommended preset")
	}
	preset, ok := resp.Presets[name]
	if !ok {
		return "", quotePreset{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("fusion quote does not include recommended preset %q", name))
	}
	if strings.TrimSpace(preset.AuctionStartAmount) == "" || strings.TrimSpace(preset.AuctionEndAmount) == "" {
		return "", quotePreset{}, clierr.New(clierr.CodeUnavailable, "fusion preset missing auction amounts")
	}
	return name, preset, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) authHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func validateOrderRequest(req providers.QuoteRequest) error {
	if !req.FromChain.IsEVM() || !req.ToChain.IsEVM() {
		return clierr.New(clierr.CodeUnsupported, "fusion orders support only EVM chains")
	}
	if req.TradeType == providers.TradeTypeExactOutput {
		return clierr.New(clierr.CodeUnsupported, "fusion orders quote exact-input; specify the amount to send")
	}
	if req.FromAsset.Native || id.IsNativeAddress(req.FromAsset.Address) {
		return clierr.New(clierr.CodeUsage, "fusion orders require an ERC20 input asset; wrap the native token first")
	}
	if !common.IsHexAddress(req.FromAsset.Address) {
		return clierr.New(clierr.CodeUsage, "fusion orders require an EVM input token address")
	}
	if strings.TrimSpace(req.ToAsset.Address) == "" {
		return clierr.New(clierr.CodeUsage, "fusion orders require a destination token address")
	}
	return nil
}

// orderTypedData shapes the order for EIP-712 signing against the v6
// settlement router on the source chain.
func orderTypedData(order orderPayload, srcChainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "receiver", Type: "address"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
				{Name: "takingAmount", Type: "uint256"},
				{Name: "makerTraits", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "1inch Aggregation Router",
			Version:           "6",
			ChainId:           math.NewHexOrDecimal256(srcChainID),
			VerifyingContract: registry.FusionRouterV6Address,
		},
		Message: apitypes.TypedDataMessage{
			"salt":         order.Salt,
			"maker":        order.Maker,
			"receiver":     order.Receiver,
			"makerAsset":   order.MakerAsset,
			"takerAsset":   order.TakerAsset,
			"makingAmount": order.MakingAmount,
			"takingAmount": order.TakingAmount,
			"makerTraits":  order.MakerTraits,
		},
	}
}

func dialAllowanceBackend(ctx context.Context, chain id.Chain, rpcOverride string) (*ethclient.Client, error) {
	rpcURL, err := registry.ResolveRPCURL(rpcOverride, chain.EVMChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return client, nil
}

func providerDataString(action *execution.Action, key string) (string, error) {
	if action == nil || action.ProviderData == nil {
		return "", clierr.New(clierr.CodeActionPlan, "fusion order step is missing its planned order data")
	}
	raw, ok := action.ProviderData[key]
	if !ok {
		return "", clierr.New(clierr.CodeActionPlan, fmt.Sprintf("fusion order plan missing %s", key))
	}
	v, ok := raw.(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", clierr.New(clierr.CodeActionPlan, fmt.Sprintf("fusion order plan missing %s", key))
	}
	return strings.TrimSpace(v), nil
}

// mapOrderStatus folds the venue's lifecycle vocabulary onto the four
// monitor states. Refunding is still in flight, so it polls as pending.
func mapOrderStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "executed", "filled":
		return model.OrderStatusFilled
	case "expired":
		return model.OrderStatusExpired
	case "cancelled", "refunded":
		return model.OrderStatusCancelled
	default:
		return model.OrderStatusPending
	}
}

func parseOrderAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be a positive integer in base units")
	}
	return amount, nil
}

func newOrderSalt() (*big.Int, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}
