package model

import "time"

const EnvelopeVersion = "v1"

const (
	TradeTypeExactInput  = "EXACT_INPUT"
	TradeTypeExactOutput = "EXACT_OUTPUT"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
)

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code        int    `json:"code"`
	Type        string `json:"type"`
	Message     string `json:"message"`
	Category    string `json:"category,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Recoverable bool   `json:"recoverable"`
	Action      string `json:"action,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name           string                   `json:"name"`
	Type           string                   `json:"type"`
	RequiresKey    bool                     `json:"requires_key"`
	Capabilities   []string                 `json:"capabilities"`
	KeyEnvVarName  string                   `json:"key_env_var,omitempty"`
	CapabilityAuth []ProviderCapabilityAuth `json:"capability_auth,omitempty"`
}

type ProviderCapabilityAuth struct {
	Capability  string `json:"capability"`
	KeyEnvVar   string `json:"key_env_var"`
	Description string `json:"description,omitempty"`
}

type ChainInfo struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	ChainID       string `json:"chain_id"`
	EVMChainID    int64  `json:"evm_chain_id"`
	NativeSymbol  string `json:"native_symbol"`
	WrappedNative string `json:"wrapped_native,omitempty"`
	Multicall     string `json:"multicall,omitempty"`
	RPCURL        string `json:"rpc_url,omitempty"`
}

// TokenInfo is a token listing. PriceUSD is advisory and only present
// when the listing venue publishes one.
type TokenInfo struct {
	Symbol   string  `json:"symbol"`
	ChainID  string  `json:"chain_id"`
	AssetID  string  `json:"asset_id"`
	Address  string  `json:"address"`
	Decimals int     `json:"decimals"`
	Native   bool    `json:"native,omitempty"`
	PriceUSD float64 `json:"price_usd,omitempty"`
}

type AssetResolution struct {
	Input       string `json:"input"`
	ChainID     string `json:"chain_id"`
	Symbol      string `json:"symbol"`
	AssetID     string `json:"asset_id"`
	Address     string `json:"address"`
	Decimals    int    `json:"decimals"`
	ResolvedBy  string `json:"resolved_by"`
	Unambiguous bool   `json:"unambiguous"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type FeeAmount struct {
	AmountBaseUnits string  `json:"amount_base_units,omitempty"`
	AmountDecimal   string  `json:"amount_decimal,omitempty"`
	AmountUSD       float64 `json:"amount_usd,omitempty"`
}

type BalanceEntry struct {
	AssetID string     `json:"asset_id"`
	Symbol  string     `json:"symbol,omitempty"`
	Address string     `json:"address"`
	Native  bool       `json:"native,omitempty"`
	Balance AmountInfo `json:"balance"`
}

type BalancesReport struct {
	Owner     string         `json:"owner"`
	ChainID   string         `json:"chain_id"`
	Balances  []BalanceEntry `json:"balances"`
	FetchedAt string         `json:"fetched_at"`
}

// PathHop is one pool traversal inside an AMM route.
type PathHop struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	FeeTier  int64  `json:"fee_tier"`
}

type QuoteFees struct {
	PoolFeeTier     int64      `json:"pool_fee_tier,omitempty"`
	ProtocolFee     *FeeAmount `json:"protocol_fee,omitempty"`
	EstimatedGasUSD float64    `json:"estimated_gas_usd,omitempty"`
}

// SwapQuote is the engine-wide quote shape. AMM quotes fill the exact-output
// fields (InputAmount is what the pool demands for the requested output);
// aggregator quotes fill MinOutputAmount and the deposit metadata instead.
type SwapQuote struct {
	Provider        string      `json:"provider"`
	Kind            string      `json:"kind"`
	TradeType       string      `json:"trade_type"`
	FromChainID     string      `json:"from_chain_id"`
	ToChainID       string      `json:"to_chain_id"`
	FromAssetID     string      `json:"from_asset_id"`
	ToAssetID       string      `json:"to_asset_id"`
	InputAmount     AmountInfo  `json:"input_amount"`
	OutputAmount    AmountInfo  `json:"output_amount"`
	MinOutputAmount *AmountInfo `json:"min_output_amount,omitempty"`
	MaxInputAmount  *AmountInfo `json:"max_input_amount,omitempty"`
	Path            []PathHop   `json:"path,omitempty"`
	Fees            *QuoteFees  `json:"fees,omitempty"`
	EstimatedGas    string      `json:"estimated_gas,omitempty"`
	EstimatedTimeS  int64       `json:"estimated_time_s,omitempty"`
	DepositAddress  string      `json:"deposit_address,omitempty"`
	DepositMemo     string      `json:"deposit_memo,omitempty"`
	Route           string      `json:"route,omitempty"`
	SourceURL       string      `json:"source_url,omitempty"`
	FetchedAt       string      `json:"fetched_at"`
}

// Route is the normalized cross-chain route every aggregator response is
// reduced to before anything downstream sees it.
type Route struct {
	RouteID     string            `json:"route_id"`
	Provider    string            `json:"provider"`
	FromChainID string            `json:"from_chain_id"`
	ToChainID   string            `json:"to_chain_id"`
	FromAssetID string            `json:"from_asset_id"`
	ToAssetID   string            `json:"to_asset_id"`
	FromAmount  AmountInfo        `json:"from_amount"`
	ToAmount    AmountInfo        `json:"to_amount"`
	Steps       []RouteStep       `json:"steps"`
	CreatedAt   string            `json:"created_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}

type RouteStep struct {
	ID                  string  `json:"id"`
	Kind                string  `json:"kind"`
	Tool                string  `json:"tool"`
	EstimatedGasCostUSD float64 `json:"estimated_gas_cost_usd,omitempty"`
}

type Order struct {
	OrderID        string   `json:"order_id"`
	Provider       string   `json:"provider"`
	FromChainID    string   `json:"from_chain_id"`
	ToChainID      string   `json:"to_chain_id"`
	Status         string   `json:"status"`
	DepositAddress string   `json:"deposit_address,omitempty"`
	DepositTxHash  string   `json:"deposit_tx_hash,omitempty"`
	FillTxHashes   []string `json:"fill_tx_hashes,omitempty"`
	AmountIn       string   `json:"amount_in,omitempty"`
	AmountOut      string   `json:"amount_out,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	FetchedAt      string   `json:"fetched_at"`
}

type Allowance struct {
	ChainID       string `json:"chain_id"`
	Owner         string `json:"owner"`
	Token         string `json:"token"`
	Spender       string `json:"spender"`
	Current       string `json:"current"`
	Required      string `json:"required"`
	NeedsApproval bool   `json:"needs_approval"`
}
