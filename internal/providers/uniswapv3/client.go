// Package uniswapv3 quotes and executes same-chain swaps against canonical
// Uniswap V3 deployments. Quoting is exact-output: the caller names the
// output amount and the quoter reports the input each fee tier demands.
package uniswapv3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/planner"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/multicall"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// Candidate pool fee tiers in ascending order. The quoter is asked about
// every tier in one batch; selection prefers the cheapest input and, on a
// tie, the earlier tier in this list.
var feeTiers = []uint32{100, 500, 3000, 10000}

var (
	quoterABI = mustABI(registry.UniswapV3QuoterV2ABI)
	routerABI = mustABI(registry.UniswapV3RouterABI)
)

// routerHoldAddress is SwapRouter02's sentinel recipient meaning "keep the
// output in the router", used when a trailing unwrapWETH9 call pays it out.
var routerHoldAddress = common.HexToAddress("0x0000000000000000000000000000000000000002")

const defaultSlippagePct = 0.5

type Client struct {
	now func() time.Time
}

func New() *Client {
	return &Client{now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "uniswapv3",
		Type:        "swap",
		RequiresKey: false,
		Capabilities: []string{
			"swap.quote",
			"swap.plan",
			"swap.execute",
		},
	}
}

func (c *Client) Kind() providers.Kind {
	return providers.KindAMM
}

type quoteExactOutputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Amount            *big.Int       `abi:"amount"`
	Fee               *big.Int       `abi:"fee"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type exactOutputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	AmountOut         *big.Int       `abi:"amountOut"`
	AmountInMaximum   *big.Int       `abi:"amountInMaximum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

func (c *Client) GetQuote(ctx context.Context, req providers.QuoteRequest) (model.SwapQuote, error) {
	if err := validateSameChain(req); err != nil {
		return model.SwapQuote{}, err
	}
	rpcURL, contracts, err := chainConfig(req.FromChain, req.RPCURL)
	if err != nil {
		return model.SwapQuote{}, err
	}
	amountOut, err := parseQuoteAmount(req.AmountBaseUnits)
	if err != nil {
		return model.SwapQuote{}, err
	}
	tokenIn, tokenOut, err := poolPair(req.FromAsset, req.ToAsset, contracts)
	if err != nil {
		return model.SwapQuote{}, err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return model.SwapQuote{}, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	best, err := quoteExactOutput(ctx, client, common.HexToAddress(contracts.QuoterV2), tokenIn, tokenOut, amountOut)
	if err != nil {
		return model.SwapQuote{}, err
	}

	outDecimal := req.AmountDecimal
	if outDecimal == "" {
		outDecimal = id.FormatDecimalCompat(amountOut.String(), req.ToAsset.Decimals)
	}
	quote := model.SwapQuote{
		Provider:    "uniswapv3",
		Kind:        string(providers.KindAMM),
		TradeType:   model.TradeTypeExactOutput,
		FromChainID: req.FromChain.CAIP2,
		ToChainID:   req.FromChain.CAIP2,
		FromAssetID: req.FromAsset.AssetID,
		ToAssetID:   req.ToAsset.AssetID,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: best.amountIn.String(),
			AmountDecimal:   id.FormatDecimalCompat(best.amountIn.String(), req.FromAsset.Decimals),
			Decimals:        req.FromAsset.Decimals,
		},
		OutputAmount: model.AmountInfo{
			AmountBaseUnits: amountOut.String(),
			AmountDecimal:   outDecimal,
			Decimals:        req.ToAsset.Decimals,
		},
		Path: []model.PathHop{
			{TokenIn: tokenIn.Hex(), TokenOut: tokenOut.Hex(), FeeTier: int64(best.fee)},
		},
		Fees:         &model.QuoteFees{PoolFeeTier: int64(best.fee)},
		EstimatedGas: best.gas.String(),
		Route:        fmt.Sprintf("uniswapv3-fee-%d", best.fee),
		SourceURL:    "https://app.uniswap.org",
		FetchedAt:    c.now().UTC().Format(time.RFC3339),
	}
	if req.SlippagePct != nil {
		maxIn := execution.MaxInputWithSlippage(best.amountIn, *req.SlippagePct)
		quote.MaxInputAmount = &model.AmountInfo{
			AmountBaseUnits: maxIn.String(),
			AmountDecimal:   id.FormatDecimalCompat(maxIn.String(), req.FromAsset.Decimals),
			Decimals:        req.FromAsset.Decimals,
		}
	}
	return quote, nil
}

func (c *Client) BuildSwapAction(ctx context.Context, req providers.QuoteRequest, opts providers.ExecutionOptions) (execution.Action, error) {
	if err := validateSameChain(req); err != nil {
		return execution.Action{}, err
	}
	sender := strings.TrimSpace(opts.Sender)
	if sender == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "swap execution requires sender address")
	}
	if !common.IsHexAddress(sender) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "swap execution sender must be a valid EVM address")
	}
	recipient := strings.TrimSpace(opts.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "swap execution recipient must be a valid EVM address")
	}
	slippage := opts.SlippagePct
	if slippage <= 0 {
		slippage = defaultSlippagePct
	}
	if slippage >= 100 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "slippage percent must be less than 100")
	}

	rpcURL, contracts, err := chainConfig(req.FromChain, opts.RPCURL)
	if err != nil {
		return execution.Action{}, err
	}
	amountOut, err := parseQuoteAmount(req.AmountBaseUnits)
	if err != nil {
		return execution.Action{}, err
	}
	tokenIn, tokenOut, err := poolPair(req.FromAsset, req.ToAsset, contracts)
	if err != nil {
		return execution.Action{}, err
	}
	nativeIn := isNative(req.FromAsset)
	nativeOut := isNative(req.ToAsset)
	senderAddr := common.HexToAddress(sender)
	recipientAddr := common.HexToAddress(recipient)
	router := common.HexToAddress(contracts.Router)

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	best, err := quoteExactOutput(ctx, client, common.HexToAddress(contracts.QuoterV2), tokenIn, tokenOut, amountOut)
	if err != nil {
		return execution.Action{}, err
	}
	maxIn := execution.MaxInputWithSlippage(best.amountIn, slippage)

	action := execution.NewAction(execution.NewActionID(), "swap", req.FromChain.CAIP2, execution.Constraints{SlippagePct: slippage, Simulate: opts.Simulate})
	action.Provider = "uniswapv3"
	action.FromAddress = senderAddr.Hex()
	action.ToAddress = recipientAddr.Hex()
	action.InputAmount = best.amountIn.String()
	action.Metadata = map[string]any{
		"token_in":      tokenIn.Hex(),
		"token_out":     tokenOut.Hex(),
		"fee":           best.fee,
		"amount_out":    amountOut.String(),
		"amount_in":     best.amountIn.String(),
		"amount_in_max": maxIn.String(),
	}

	// The router may pull anything up to the slippage-widened maximum, so
	// that is the allowance it needs. Native input carries value instead.
	approvalStep, _, err := planner.EnsureAllowanceStep(ctx, client, planner.EnsureAllowanceRequest{
		Chain:    req.FromChain,
		Asset:    req.FromAsset,
		Owner:    sender,
		Spender:  contracts.Router,
		Required: maxIn,
		RPCURL:   opts.RPCURL,
	})
	if err != nil {
		return execution.Action{}, err
	}
	if approvalStep != nil {
		action.Steps = append(action.Steps, *approvalStep)
	}

	swapRecipient := recipientAddr
	if nativeOut {
		// Output stays in the router until the unwrap call pays it out as
		// the gas token.
		swapRecipient = routerHoldAddress
	}
	swapData, err := routerABI.Pack("exactOutputSingle", exactOutputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(best.fee)),
		Recipient:         swapRecipient,
		AmountOut:         amountOut,
		AmountInMaximum:   maxIn,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack swap calldata", err)
	}

	data := swapData
	value := "0"
	switch {
	case nativeIn:
		refundData, err := routerABI.Pack("refundETH")
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack refund calldata", err)
		}
		data, err = routerABI.Pack("multicall", [][]byte{swapData, refundData})
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack router multicall", err)
		}
		value = maxIn.String()
	case nativeOut:
		unwrapData, err := routerABI.Pack("unwrapWETH9", amountOut, recipientAddr)
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack unwrap calldata", err)
		}
		data, err = routerABI.Pack("multicall", [][]byte{swapData, unwrapData})
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack router multicall", err)
		}
	}

	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "swap-exact-output",
		Type:        execution.StepTypeSwap,
		Status:      execution.StepStatusPending,
		ChainID:     req.FromChain.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Swap for exact output via Uniswap V3 fee tier %d", best.fee),
		Target:      router.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       value,
		ExpectedOutputs: map[string]string{
			"amount_out":    amountOut.String(),
			"amount_in_max": maxIn.String(),
		},
	})
	return action, nil
}

type tierQuote struct {
	fee      uint32
	amountIn *big.Int
	gas      *big.Int
}

// quoteExactOutput asks the quoter what every candidate fee tier charges
// for the requested output, in one aggregate3 batch. Tiers without a pool
// revert inside their own slot and simply drop out of the selection.
func quoteExactOutput(ctx context.Context, backend multicall.Backend, quoter, tokenIn, tokenOut common.Address, amountOut *big.Int) (tierQuote, error) {
	calls := make([]multicall.Call, 0, len(feeTiers))
	for _, fee := range feeTiers {
		callData, err := quoterABI.Pack("quoteExactOutputSingle", quoteExactOutputSingleParams{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			Amount:            amountOut,
			Fee:               big.NewInt(int64(fee)),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return tierQuote{}, clierr.Wrap(clierr.CodeInternal, "pack quoter calldata", err)
		}
		calls = append(calls, multicall.Call{Target: quoter, CallData: callData})
	}

	results, err := multicall.NewCaller(backend).Aggregate(ctx, calls)
	if err != nil {
		return tierQuote{}, err
	}

	var best *tierQuote
	for i, result := range results {
		if !result.Success {
			continue
		}
		decoded, err := quoterABI.Unpack("quoteExactOutputSingle", result.ReturnData)
		if err != nil || len(decoded) < 4 {
			continue
		}
		amountIn, ok := decoded[0].(*big.Int)
		if !ok || amountIn == nil || amountIn.Sign() <= 0 {
			continue
		}
		gas, ok := decoded[3].(*big.Int)
		if !ok || gas == nil {
			gas = big.NewInt(0)
		}
		// Strict less keeps the earlier tier when inputs tie.
		if best == nil || amountIn.Cmp(best.amountIn) < 0 {
			best = &tierQuote{
				fee:      feeTiers[i],
				amountIn: new(big.Int).Set(amountIn),
				gas:      new(big.Int).Set(gas),
			}
		}
	}
	if best == nil {
		return tierQuote{}, clierr.New(clierr.CodeUnavailable, "no pool with sufficient liquidity for this pair")
	}
	return *best, nil
}

func validateSameChain(req providers.QuoteRequest) error {
	if req.ToChain.CAIP2 != "" && req.ToChain.CAIP2 != req.FromChain.CAIP2 {
		return clierr.New(clierr.CodeUnsupported, "uniswapv3 cannot route across chains")
	}
	if req.TradeType == providers.TradeTypeExactInput {
		return clierr.New(clierr.CodeUnsupported, "uniswapv3 quoting is exact-output; specify the amount to receive")
	}
	return nil
}

func chainConfig(chain id.Chain, rpcOverride string) (string, registry.SwapContracts, error) {
	contracts, ok := registry.UniswapV3Contracts(chain.EVMChainID)
	if !ok {
		return "", registry.SwapContracts{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("uniswapv3 has no deployment registered for chain %s", chain.CAIP2))
	}
	rpcURL, err := registry.ResolveRPCURL(rpcOverride, chain.EVMChainID)
	if err != nil {
		return "", registry.SwapContracts{}, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	return rpcURL, contracts, nil
}

func isNative(asset id.Asset) bool {
	return asset.Native || id.IsNativeAddress(asset.Address)
}

// poolPair maps both assets to the addresses actually quoted on-chain.
// Native assets trade through the chain's wrapped token; the visible quote
// still reports the asset the caller asked about.
func poolPair(from, to id.Asset, contracts registry.SwapContracts) (common.Address, common.Address, error) {
	wrapped := common.HexToAddress(contracts.WrappedNative)
	tokenIn, err := poolToken(from, wrapped)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	tokenOut, err := poolToken(to, wrapped)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if tokenIn == tokenOut {
		return common.Address{}, common.Address{}, clierr.New(clierr.CodeUsage, "from and to assets resolve to the same pool token")
	}
	return tokenIn, tokenOut, nil
}

func poolToken(asset id.Asset, wrapped common.Address) (common.Address, error) {
	if isNative(asset) {
		return wrapped, nil
	}
	if !common.IsHexAddress(asset.Address) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("asset %s has no EVM token address", asset.AssetID))
	}
	return common.HexToAddress(asset.Address), nil
}

func parseQuoteAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be a positive integer in base units")
	}
	return amount, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
