package providers

import (
	"context"
	"time"

	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/signer"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

// Kind partitions providers by how a swap settles: an AMM executes
// atomically in one transaction on one chain, an aggregator settles
// asynchronously through an off-chain order.
type Kind string

const (
	KindAMM        Kind = "amm"
	KindAggregator Kind = "aggregator"
)

type TradeType string

const (
	TradeTypeExactInput  TradeType = "exact-input"
	TradeTypeExactOutput TradeType = "exact-output"
)

type Provider interface {
	Info() model.ProviderInfo
}

// QuoteRequest carries one swap intent through quoting and planning.
// Same-chain swaps set FromChain and ToChain to the same chain.
type QuoteRequest struct {
	FromChain       id.Chain
	ToChain         id.Chain
	FromAsset       id.Asset
	ToAsset         id.Asset
	TradeType       TradeType
	AmountBaseUnits string
	AmountDecimal   string
	Sender          string
	Recipient       string
	SlippagePct     *float64
	Deadline        time.Time
	RPCURL          string
}

type ExecutionOptions struct {
	Sender      string
	Recipient   string
	SlippagePct float64
	Simulate    bool
	RPCURL      string
}

// SwapProvider is the one interface every venue implements, AMM and
// aggregator alike.
type SwapProvider interface {
	Provider
	Kind() Kind
	GetQuote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error)
	BuildSwapAction(ctx context.Context, req QuoteRequest, opts ExecutionOptions) (execution.Action, error)
}

// OrderProvider is implemented by aggregators whose fills settle through an
// off-chain order that must be submitted and then polled to a terminal
// status. The handler may need the signer, for venues that take signed
// typed-data orders instead of transactions.
type OrderProvider interface {
	SwapProvider
	OrderHandler(txSigner signer.Signer) execution.OrderHandler
	LookupOrder(ctx context.Context, orderID string) (model.Order, error)
}

// TokenListProvider exposes a venue's supported token inventory.
type TokenListProvider interface {
	Provider
	Tokens(ctx context.Context, chain id.Chain) ([]model.TokenInfo, error)
}
