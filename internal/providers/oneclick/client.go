// Package oneclick routes cross-chain swaps through the NEAR Intents
// 1Click API. The venue reserves a per-swap deposit address; funding it
// with the input asset is the only on-chain transaction, and settlement
// is polled by that deposit address until the destination transfer lands.
package oneclick

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/signer"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// Deposits that miss the quote deadline are refunded by the venue, so
// the default funding window is generous.
const depositWindow = 24 * time.Hour

// Basis points the venue applies when the caller does not set a slippage
// tolerance.
const defaultSlippageBps = 100

// venueChains maps EVM chain ids to the blockchain identifiers the venue
// lists tokens under.
var venueChains = map[int64]string{
	1:     "eth",
	10:    "op",
	56:    "bsc",
	137:   "pol",
	8453:  "base",
	42161: "arb",
	43114: "avax",
}

// venueAPI is the slice of the 1Click service the provider consumes. The
// real implementation wraps the generated SDK client; tests substitute a
// fake.
type venueAPI interface {
	Tokens(ctx context.Context) ([]venueToken, error)
	RequestQuote(ctx context.Context, params quoteParams) (venueQuote, error)
	SubmitDeposit(ctx context.Context, depositAddress, txHash string) error
	ExecutionStatus(ctx context.Context, depositAddress string) (venueStatus, error)
}

// venueToken is one row of the venue's token inventory.
type venueToken struct {
	AssetID  string
	Symbol   string
	Chain    string
	Address  string
	Decimals int
	PriceUSD float64
}

type quoteParams struct {
	Dry              bool
	OriginAsset      string
	DestinationAsset string
	AmountBaseUnits  string
	Recipient        string
	RefundTo         string
	SlippageBps      int32
	Deadline         time.Time
}

type venueQuote struct {
	DepositAddress string
	AmountIn       string
	AmountOut      string
	MinAmountOut   string
	TimeEstimateS  int64
}

type venueStatus struct {
	Status        string
	UpdatedAt     time.Time
	AmountIn      string
	AmountOut     string
	DepositTxHash string
	FillTxHashes  []string
}

type Client struct {
	api venueAPI
	now func() time.Time
}

func New(jwt string) *Client {
	return &Client{api: newSDKClient(jwt), now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "oneclick",
		Type:          "swap",
		RequiresKey:   true,
		KeyEnvVarName: "SWAP_ONECLICK_JWT",
		Capabilities: []string{
			"swap.quote",
			"swap.plan",
			"swap.execute",
			"order.status",
			"tokens.list",
		},
	}
}

func (c *Client) Kind() providers.Kind {
	return providers.KindAggregator
}

func (c *Client) GetQuote(ctx context.Context, req providers.QuoteRequest) (model.SwapQuote, error) {
	if err := validateIntentRequest(req); err != nil {
		return model.SwapQuote{}, err
	}
	amountIn, err := parseDepositAmount(req.AmountBaseUnits)
	if err != nil {
		return model.SwapQuote{}, err
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = strings.TrimSpace(req.Sender)
	}
	if recipient == "" {
		// The venue validates the recipient even on dry quotes, so
		// quote-only requests use a placeholder it accepts.
		recipient = "0x0000000000000000000000000000000000000001"
	}
	if !common.IsHexAddress(recipient) {
		return model.SwapQuote{}, clierr.New(clierr.CodeUsage, "oneclick quote recipient must be a valid EVM address")
	}
	refundTo := strings.TrimSpace(req.Sender)
	if refundTo == "" {
		refundTo = recipient
	}

	origin, dest, err := c.resolveVenueAssets(ctx, req)
	if err != nil {
		return model.SwapQuote{}, err
	}

	pct := 0.0
	if req.SlippagePct != nil {
		pct = *req.SlippagePct
	}
	quote, err := c.api.RequestQuote(ctx, quoteParams{
		Dry:              true,
		OriginAsset:      origin.AssetID,
		DestinationAsset: dest.AssetID,
		AmountBaseUnits:  amountIn.String(),
		Recipient:        recipient,
		RefundTo:         refundTo,
		SlippageBps:      slippageToleranceBps(pct),
		Deadline:         c.depositDeadline(req.Deadline),
	})
	if err != nil {
		return model.SwapQuote{}, err
	}
	if strings.TrimSpace(quote.AmountOut) == "" {
		return model.SwapQuote{}, clierr.New(clierr.CodeUnavailable, "oneclick quote missing output amount")
	}

	inDecimal := req.AmountDecimal
	if inDecimal == "" {
		inDecimal = id.FormatDecimalCompat(amountIn.String(), req.FromAsset.Decimals)
	}
	out := model.SwapQuote{
		Provider:    "oneclick",
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
			AmountBaseUnits: quote.AmountOut,
			AmountDecimal:   id.FormatDecimalCompat(quote.AmountOut, req.ToAsset.Decimals),
			Decimals:        req.ToAsset.Decimals,
		},
		EstimatedTimeS: quote.TimeEstimateS,
		DepositAddress: strings.TrimSpace(quote.DepositAddress),
		Route:          "near-intents",
		SourceURL:      registry.OneClickBaseURL,
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}
	if strings.TrimSpace(quote.MinAmountOut) != "" {
		out.MinOutputAmount = &model.AmountInfo{
			AmountBaseUnits: quote.MinAmountOut,
			AmountDecimal:   id.FormatDecimalCompat(quote.MinAmountOut, req.ToAsset.Decimals),
			Decimals:        req.ToAsset.Decimals,
		}
	}
	return out, nil
}

func (c *Client) BuildSwapAction(ctx context.Context, req providers.QuoteRequest, opts providers.ExecutionOptions) (execution.Action, error) {
	if err := validateIntentRequest(req); err != nil {
		return execution.Action{}, err
	}
	sender := strings.TrimSpace(opts.Sender)
	if sender == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "oneclick swap requires sender address")
	}
	if !common.IsHexAddress(sender) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "oneclick swap sender must be a valid EVM address")
	}
	recipient := strings.TrimSpace(opts.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "oneclick swap recipient must be a valid EVM address")
	}
	amountIn, err := parseDepositAmount(req.AmountBaseUnits)
	if err != nil {
		return execution.Action{}, err
	}
	origin, dest, err := c.resolveVenueAssets(ctx, req)
	if err != nil {
		return execution.Action{}, err
	}

	deadline := c.depositDeadline(req.Deadline)
	// A non-dry quote reserves a deposit address dedicated to this swap.
	quote, err := c.api.RequestQuote(ctx, quoteParams{
		Dry:              false,
		OriginAsset:      origin.AssetID,
		DestinationAsset: dest.AssetID,
		AmountBaseUnits:  amountIn.String(),
		Recipient:        common.HexToAddress(recipient).Hex(),
		RefundTo:         common.HexToAddress(sender).Hex(),
		SlippageBps:      slippageToleranceBps(opts.SlippagePct),
		Deadline:         deadline,
	})
	if err != nil {
		return execution.Action{}, err
	}
	depositAddress := strings.TrimSpace(quote.DepositAddress)
	if depositAddress == "" {
		return execution.Action{}, clierr.New(clierr.CodeUnavailable, "oneclick quote did not reserve a deposit address")
	}

	rpcURL, err := registry.ResolveRPCURL(opts.RPCURL, req.FromChain.EVMChainID)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	target, data, value, err := depositCall(req.FromAsset, depositAddress, amountIn)
	if err != nil {
		return execution.Action{}, err
	}

	action := execution.NewAction(execution.NewActionID(), "swap", req.FromChain.CAIP2, execution.Constraints{
		SlippagePct: opts.SlippagePct,
		Deadline:    deadline.UTC().Format(time.RFC3339),
		Simulate:    opts.Simulate,
	})
	action.Provider = "oneclick"
	action.FromAddress = common.HexToAddress(sender).Hex()
	action.ToAddress = common.HexToAddress(recipient).Hex()
	action.InputAmount = amountIn.String()
	action.Metadata = map[string]any{
		"to_chain_id":     req.ToChain.CAIP2,
		"from_asset_id":   req.FromAsset.AssetID,
		"to_asset_id":     req.ToAsset.AssetID,
		"deposit_address": depositAddress,
		"amount_out":      quote.AmountOut,
	}
	action.ProviderData = map[string]interface{}{
		"deposit_address": depositAddress,
	}

	step := execution.ActionStep{
		StepID:      "fund-deposit",
		Type:        execution.StepTypeDeposit,
		Status:      execution.StepStatusPending,
		ChainID:     req.FromChain.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Transfer %s %s to the swap deposit address", id.FormatDecimalCompat(amountIn.String(), req.FromAsset.Decimals), origin.Symbol),
		Target:      target,
		Data:        data,
		Value:       value,
		ExpectedOutputs: map[string]string{
			"order_provider":        "oneclick",
			"order_status_endpoint": registry.OneClickOrderStatusURL,
			"deposit_address":       depositAddress,
			"amount_out":            quote.AmountOut,
		},
	}
	if strings.TrimSpace(quote.MinAmountOut) != "" {
		step.ExpectedOutputs["min_amount_out"] = quote.MinAmountOut
	}
	action.Steps = append(action.Steps, step)
	return action, nil
}

// OrderHandler returns the settlement handler. Deposits are ordinary
// transactions signed by the executor, so the signer is not needed here.
func (c *Client) OrderHandler(txSigner signer.Signer) execution.OrderHandler {
	return &orderHandler{client: c}
}

type orderHandler struct {
	client *Client
}

// Submit registers the confirmed deposit transaction with the venue. The
// deposit address doubles as the settlement identifier every later
// status poll keys on.
func (h *orderHandler) Submit(ctx context.Context, action *execution.Action, step *execution.ActionStep) (string, error) {
	if step == nil {
		return "", clierr.New(clierr.CodeActionPlan, "oneclick settlement requires a deposit step")
	}
	depositAddress := strings.TrimSpace(step.ExpectedOutputs["deposit_address"])
	if depositAddress == "" {
		return "", clierr.New(clierr.CodeActionPlan, "oneclick deposit step is missing its deposit address")
	}
	txHash := strings.TrimSpace(step.TxHash)
	if txHash == "" {
		return "", clierr.New(clierr.CodeActionPlan, "oneclick deposit step has no confirmed transaction hash")
	}
	if err := h.client.api.SubmitDeposit(ctx, depositAddress, txHash); err != nil {
		return "", err
	}
	return depositAddress, nil
}

func (h *orderHandler) Status(ctx context.Context, orderID string) (string, error) {
	status, err := h.client.api.ExecutionStatus(ctx, orderID)
	if err != nil {
		return "", err
	}
	return mapSettlementStatus(status.Status), nil
}

func (c *Client) LookupOrder(ctx context.Context, orderID string) (model.Order, error) {
	depositAddress := strings.TrimSpace(orderID)
	if depositAddress == "" {
		return model.Order{}, clierr.New(clierr.CodeUsage, "order lookup requires a deposit address")
	}
	status, err := c.api.ExecutionStatus(ctx, depositAddress)
	if err != nil {
		return model.Order{}, err
	}
	order := model.Order{
		OrderID:        depositAddress,
		Provider:       "oneclick",
		Status:         mapSettlementStatus(status.Status),
		DepositAddress: depositAddress,
		DepositTxHash:  status.DepositTxHash,
		AmountIn:       status.AmountIn,
		AmountOut:      status.AmountOut,
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}
	if !status.UpdatedAt.IsZero() {
		order.UpdatedAt = status.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, hash := range status.FillTxHashes {
		if strings.TrimSpace(hash) != "" {
			order.FillTxHashes = append(order.FillTxHashes, hash)
		}
	}
	return order, nil
}

// Tokens lists the venue's inventory for one chain, normalized to
// engine asset identifiers. Native listings carry an empty contract
// address on the venue side.
func (c *Client) Tokens(ctx context.Context, chain id.Chain) ([]model.TokenInfo, error) {
	slug, ok := venueChains[chain.EVMChainID]
	if !ok || !chain.IsEVM() {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("oneclick does not support chain %s", chain.CAIP2))
	}
	inventory, err := c.api.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.TokenInfo, 0, len(inventory))
	for _, t := range inventory {
		if !strings.EqualFold(t.Chain, slug) {
			continue
		}
		info := model.TokenInfo{
			Symbol:   strings.ToUpper(t.Symbol),
			ChainID:  chain.CAIP2,
			Decimals: t.Decimals,
			PriceUSD: t.PriceUSD,
		}
		if strings.TrimSpace(t.Address) == "" {
			info.Address = id.NativeAddressSentinel
			info.AssetID = fmt.Sprintf("%s/native:%s", chain.CAIP2, strings.ToLower(chain.NativeSymbol))
			info.Native = true
		} else {
			info.Address = strings.ToLower(t.Address)
			info.AssetID = fmt.Sprintf("%s/erc20:%s", chain.CAIP2, strings.ToLower(t.Address))
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) resolveVenueAssets(ctx context.Context, req providers.QuoteRequest) (venueToken, venueToken, error) {
	inventory, err := c.api.Tokens(ctx)
	if err != nil {
		return venueToken{}, venueToken{}, err
	}
	origin, err := matchVenueToken(inventory, venueChains[req.FromChain.EVMChainID], req.FromAsset)
	if err != nil {
		return venueToken{}, venueToken{}, err
	}
	dest, err := matchVenueToken(inventory, venueChains[req.ToChain.EVMChainID], req.ToAsset)
	if err != nil {
		return venueToken{}, venueToken{}, err
	}
	return origin, dest, nil
}

// matchVenueToken finds the venue listing for one engine asset. Native
// assets are listed with an empty contract address on their chain.
func matchVenueToken(inventory []venueToken, slug string, asset id.Asset) (venueToken, error) {
	for _, t := range inventory {
		if !strings.EqualFold(t.Chain, slug) {
			continue
		}
		if asset.Native || id.IsNativeAddress(asset.Address) {
			if strings.TrimSpace(t.Address) == "" {
				return t, nil
			}
			continue
		}
		if strings.EqualFold(t.Address, asset.Address) {
			return t, nil
		}
	}
	return venueToken{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("oneclick does not list asset %s", asset.AssetID))
}

// depositCall shapes the funding transaction. Native deposits send value
// straight to the deposit address; ERC-20 deposits call transfer on the
// token contract.
func depositCall(asset id.Asset, depositAddress string, amount *big.Int) (target, data, value string, err error) {
	if !common.IsHexAddress(depositAddress) {
		return "", "", "", clierr.New(clierr.CodeUnavailable, "oneclick deposit address is not a valid EVM address")
	}
	if asset.Native || id.IsNativeAddress(asset.Address) {
		return common.HexToAddress(depositAddress).Hex(), "0x", amount.String(), nil
	}
	if !common.IsHexAddress(asset.Address) {
		return "", "", "", clierr.New(clierr.CodeUsage, "oneclick swap requires an EVM input token address")
	}
	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return "", "", "", clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	calldata, err := parsed.Pack("transfer", common.HexToAddress(depositAddress), amount)
	if err != nil {
		return "", "", "", clierr.Wrap(clierr.CodeInternal, "encode transfer calldata", err)
	}
	return common.HexToAddress(asset.Address).Hex(), hexutil.Encode(calldata), "0", nil
}

func validateIntentRequest(req providers.QuoteRequest) error {
	if _, ok := venueChains[req.FromChain.EVMChainID]; !ok || !req.FromChain.IsEVM() {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("oneclick does not support chain %s", req.FromChain.CAIP2))
	}
	if _, ok := venueChains[req.ToChain.EVMChainID]; !ok || !req.ToChain.IsEVM() {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("oneclick does not support chain %s", req.ToChain.CAIP2))
	}
	if req.TradeType == providers.TradeTypeExactOutput {
		return clierr.New(clierr.CodeUnsupported, "oneclick quotes exact-input; specify the amount to send")
	}
	return nil
}

func (c *Client) depositDeadline(requested time.Time) time.Time {
	if !requested.IsZero() {
		return requested
	}
	return c.now().Add(depositWindow)
}

func slippageToleranceBps(pct float64) int32 {
	if pct <= 0 {
		return defaultSlippageBps
	}
	return int32(math.Round(pct * 100))
}

// mapSettlementStatus folds the venue's deposit lifecycle onto the four
// monitor states. A refund means the deposit missed its quote deadline.
func mapSettlementStatus(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED":
		return model.OrderStatusFilled
	case "FAILED":
		return model.OrderStatusCancelled
	case "REFUNDED":
		return model.OrderStatusExpired
	default:
		return model.OrderStatusPending
	}
}

func parseDepositAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be a positive integer in base units")
	}
	return amount, nil
}
