package execution

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

type EstimateBlockTag string

const (
	EstimateBlockTagLatest  EstimateBlockTag = "latest"
	EstimateBlockTagPending EstimateBlockTag = "pending"
)

// fallbackBaseFeeWei stands in for the base fee on pre-London chains so
// the EIP-1559 fee math still produces a bounded cap.
const fallbackBaseFeeWei = 1_000_000_000

type EstimateOptions struct {
	StepIDs            []string
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	BlockTag           EstimateBlockTag
}

type ActionGasEstimate struct {
	ActionID      string                        `json:"action_id"`
	EstimatedAt   string                        `json:"estimated_at"`
	BlockTag      string                        `json:"block_tag"`
	Steps         []ActionGasEstimateStep       `json:"steps"`
	SkippedSteps  []ActionGasEstimateSkip       `json:"skipped_steps,omitempty"`
	TotalsByChain []ActionGasEstimateChainTotal `json:"totals_by_chain"`
}

type ActionGasEstimateStep struct {
	StepID                  string     `json:"step_id"`
	Type                    StepType   `json:"type"`
	Status                  StepStatus `json:"status"`
	ChainID                 string     `json:"chain_id"`
	GasEstimateRaw          string     `json:"gas_estimate_raw"`
	GasLimit                string     `json:"gas_limit"`
	BaseFeePerGasWei        string     `json:"base_fee_per_gas_wei"`
	MaxPriorityFeePerGasWei string     `json:"max_priority_fee_per_gas_wei"`
	MaxFeePerGasWei         string     `json:"max_fee_per_gas_wei"`
	EffectiveGasPriceWei    string     `json:"effective_gas_price_wei"`
	LikelyFeeWei            string     `json:"likely_fee_wei"`
	WorstCaseFeeWei         string     `json:"worst_case_fee_wei"`
}

// ActionGasEstimateSkip records a step the estimate left out and why, so
// a partially executed action explains its own report.
type ActionGasEstimateSkip struct {
	StepID string `json:"step_id"`
	Reason string `json:"reason"`
}

type ActionGasEstimateChainTotal struct {
	ChainID         string `json:"chain_id"`
	LikelyFeeWei    string `json:"likely_fee_wei"`
	WorstCaseFeeWei string `json:"worst_case_fee_wei"`
}

func DefaultEstimateOptions() EstimateOptions {
	return EstimateOptions{
		GasMultiplier: 1.2,
		BlockTag:      EstimateBlockTagPending,
	}
}

// EstimateActionGas prices the remaining on-chain work of an action. Order
// steps settle over HTTP and carry no transaction; steps that already
// landed are skipped unless --step names them explicitly. Steps sharing an
// RPC endpoint share one dial and one fee reading.
func EstimateActionGas(ctx context.Context, action Action, opts EstimateOptions) (ActionGasEstimate, error) {
	if strings.TrimSpace(action.ActionID) == "" {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "missing action id")
	}
	if len(action.Steps) == 0 {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	if opts.GasMultiplier <= 1 {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be > 1")
	}
	blockTag, err := normalizeEstimateBlockTag(opts.BlockTag)
	if err != nil {
		return ActionGasEstimate{}, err
	}
	from, err := estimateFromAddress(action.FromAddress)
	if err != nil {
		return ActionGasEstimate{}, err
	}

	selected, skipped, err := partitionGasSteps(action.Steps, stepIDSet(opts.StepIDs))
	if err != nil {
		return ActionGasEstimate{}, err
	}

	pool := newFeeSessionPool(blockTag, opts)
	defer pool.Close()

	steps := make([]ActionGasEstimateStep, 0, len(selected))
	totals := map[string]*chainFees{}
	for _, step := range selected {
		est, err := estimateStep(ctx, pool, from, step, opts.GasMultiplier, blockTag)
		if err != nil {
			return ActionGasEstimate{}, err
		}
		steps = append(steps, est.report)
		tallyChainFees(totals, est)
	}

	return ActionGasEstimate{
		ActionID:      action.ActionID,
		EstimatedAt:   time.Now().UTC().Format(time.RFC3339),
		BlockTag:      string(blockTag),
		Steps:         steps,
		SkippedSteps:  skipped,
		TotalsByChain: sortedChainTotals(totals),
	}, nil
}

// partitionGasSteps splits the plan into steps to price and steps the
// report explains as skipped. An explicit filter re-includes landed steps.
func partitionGasSteps(steps []ActionStep, filter map[string]struct{}) ([]ActionStep, []ActionGasEstimateSkip, error) {
	var selected []ActionStep
	var skipped []ActionGasEstimateSkip
	for _, step := range steps {
		named := filterNames(filter, step.StepID)
		if len(filter) > 0 && !named {
			continue
		}
		if step.Type == StepTypeOrder {
			skipped = append(skipped, ActionGasEstimateSkip{
				StepID: step.StepID,
				Reason: "order step settles over HTTP and carries no transaction",
			})
			continue
		}
		if (step.Status == StepStatusConfirmed || step.Status == StepStatusFilled) && !named {
			skipped = append(skipped, ActionGasEstimateSkip{
				StepID: step.StepID,
				Reason: "step already landed on chain",
			})
			continue
		}
		selected = append(selected, step)
	}
	if len(selected) == 0 {
		return nil, nil, clierr.New(clierr.CodeUsage, "no gas-bearing action steps matched the requested selection")
	}
	return selected, skipped, nil
}

func stepIDSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if n := strings.ToLower(strings.TrimSpace(id)); n != "" {
			out[n] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterNames(filter map[string]struct{}, stepID string) bool {
	_, ok := filter[strings.ToLower(strings.TrimSpace(stepID))]
	return ok
}

// feeSession caches one endpoint's dial and fee context. Sibling steps on
// the same chain reuse it instead of repeating the chain id, tip, and base
// fee lookups.
type feeSession struct {
	client   *ethclient.Client
	chainKey string
	baseFee  *big.Int
	tipCap   *big.Int
	feeCap   *big.Int
}

type feeSessionPool struct {
	blockTag EstimateBlockTag
	opts     EstimateOptions
	byURL    map[string]*feeSession
}

func newFeeSessionPool(blockTag EstimateBlockTag, opts EstimateOptions) *feeSessionPool {
	return &feeSessionPool{blockTag: blockTag, opts: opts, byURL: map[string]*feeSession{}}
}

func (p *feeSessionPool) Close() {
	for _, s := range p.byURL {
		s.client.Close()
	}
}

func (p *feeSessionPool) session(ctx context.Context, rpcURL string) (*feeSession, error) {
	if s, ok := p.byURL[rpcURL]; ok {
		return s, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	tipCap, err := resolveTipCap(ctx, client, p.opts.MaxPriorityFeeGwei)
	if err != nil {
		client.Close()
		return nil, err
	}
	baseFee, err := baseFeeAtBlockTag(ctx, client, p.blockTag)
	if err != nil {
		client.Close()
		return nil, err
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, p.opts.MaxFeeGwei)
	if err != nil {
		client.Close()
		return nil, err
	}

	s := &feeSession{
		client:   client,
		chainKey: fmt.Sprintf("eip155:%d", chainID.Int64()),
		baseFee:  baseFee,
		tipCap:   tipCap,
		feeCap:   feeCap,
	}
	p.byURL[rpcURL] = s
	return s, nil
}

// stepEstimate keeps the per-step fees as integers alongside the rendered
// report so chain totals avoid reparsing.
type stepEstimate struct {
	report ActionGasEstimateStep
	likely *big.Int
	worst  *big.Int
}

func estimateStep(ctx context.Context, pool *feeSessionPool, from common.Address, step ActionStep, multiplier float64, blockTag EstimateBlockTag) (stepEstimate, error) {
	rpcURL := strings.TrimSpace(step.RPCURL)
	if rpcURL == "" {
		return stepEstimate{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s is missing rpc_url", step.StepID))
	}
	target := strings.TrimSpace(step.Target)
	if target == "" || !common.IsHexAddress(target) {
		return stepEstimate{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid target address", step.StepID))
	}

	sess, err := pool.session(ctx, rpcURL)
	if err != nil {
		return stepEstimate{}, err
	}
	if declared := strings.TrimSpace(step.ChainID); declared != "" && !strings.EqualFold(declared, sess.chainKey) {
		return stepEstimate{}, clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, got %s", sess.chainKey, step.ChainID))
	}

	msg, err := stepCallMsg(step, from)
	if err != nil {
		return stepEstimate{}, err
	}
	rawGas, err := estimateGasWithBlockTag(ctx, sess.client, msg, blockTag)
	if err != nil {
		return stepEstimate{}, wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err)
	}
	gasLimit := uint64(float64(rawGas) * multiplier)
	if gasLimit == 0 {
		return stepEstimate{}, clierr.New(clierr.CodeActionSim, "estimate gas returned zero")
	}

	effective := new(big.Int).Add(sess.baseFee, sess.tipCap)
	if effective.Cmp(sess.feeCap) > 0 {
		effective = new(big.Int).Set(sess.feeCap)
	}
	limit := new(big.Int).SetUint64(gasLimit)
	likely := new(big.Int).Mul(limit, effective)
	worst := new(big.Int).Mul(limit, sess.feeCap)

	return stepEstimate{
		report: ActionGasEstimateStep{
			StepID:                  step.StepID,
			Type:                    step.Type,
			Status:                  step.Status,
			ChainID:                 sess.chainKey,
			GasEstimateRaw:          strconv.FormatUint(rawGas, 10),
			GasLimit:                strconv.FormatUint(gasLimit, 10),
			BaseFeePerGasWei:        sess.baseFee.String(),
			MaxPriorityFeePerGasWei: sess.tipCap.String(),
			MaxFeePerGasWei:         sess.feeCap.String(),
			EffectiveGasPriceWei:    effective.String(),
			LikelyFeeWei:            likely.String(),
			WorstCaseFeeWei:         worst.String(),
		},
		likely: likely,
		worst:  worst,
	}, nil
}

type chainFees struct {
	likely *big.Int
	worst  *big.Int
}

func tallyChainFees(totals map[string]*chainFees, est stepEstimate) {
	t := totals[est.report.ChainID]
	if t == nil {
		t = &chainFees{likely: big.NewInt(0), worst: big.NewInt(0)}
		totals[est.report.ChainID] = t
	}
	t.likely.Add(t.likely, est.likely)
	t.worst.Add(t.worst, est.worst)
}

func sortedChainTotals(totals map[string]*chainFees) []ActionGasEstimateChainTotal {
	chains := make([]string, 0, len(totals))
	for chain := range totals {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	out := make([]ActionGasEstimateChainTotal, 0, len(chains))
	for _, chain := range chains {
		out = append(out, ActionGasEstimateChainTotal{
			ChainID:         chain,
			LikelyFeeWei:    totals[chain].likely.String(),
			WorstCaseFeeWei: totals[chain].worst.String(),
		})
	}
	return out
}

func estimateFromAddress(raw string) (common.Address, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "action has invalid from_address")
	}
	return common.HexToAddress(clean), nil
}

func stepCallMsg(step ActionStep, from common.Address) (ethereum.CallMsg, error) {
	target := common.HexToAddress(strings.TrimSpace(step.Target))
	data, err := decodeHex(step.Data)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	value, err := parseWeiValue(step.Value)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "parse step value", err)
	}
	return ethereum.CallMsg{From: from, To: &target, Value: value, Data: data}, nil
}

func parseWeiValue(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("invalid base-units integer")
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	return value, nil
}

func normalizeEstimateBlockTag(input EstimateBlockTag) (EstimateBlockTag, error) {
	switch strings.ToLower(strings.TrimSpace(string(input))) {
	case "", string(EstimateBlockTagPending):
		return EstimateBlockTagPending, nil
	case string(EstimateBlockTagLatest):
		return EstimateBlockTagLatest, nil
	default:
		return "", clierr.New(clierr.CodeUsage, "--block-tag must be one of: pending,latest")
	}
}

// estimateGasWithBlockTag issues eth_estimateGas pinned to a block tag.
// Nodes that reject the pending tag fall back to latest, then to the SDK
// default call shape.
func estimateGasWithBlockTag(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, blockTag EstimateBlockTag) (uint64, error) {
	arg := map[string]any{"from": msg.From.Hex()}
	if msg.To != nil {
		arg["to"] = msg.To.Hex()
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}

	tags := []EstimateBlockTag{blockTag}
	if blockTag == EstimateBlockTagPending {
		tags = append(tags, EstimateBlockTagLatest)
	}
	var firstErr error
	for _, tag := range tags {
		var estimated hexutil.Uint64
		err := client.Client().CallContext(ctx, &estimated, "eth_estimateGas", arg, string(tag))
		if err == nil {
			return uint64(estimated), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if fallback, err := client.EstimateGas(ctx, msg); err == nil {
		return fallback, nil
	}
	return 0, firstErr
}

// baseFeeAtBlockTag reads the base fee for the chosen tag, falling back
// from pending to latest to a plain header fetch.
func baseFeeAtBlockTag(ctx context.Context, client *ethclient.Client, blockTag EstimateBlockTag) (*big.Int, error) {
	tags := []EstimateBlockTag{blockTag}
	if blockTag == EstimateBlockTagPending {
		tags = append(tags, EstimateBlockTagLatest)
	}
	var firstErr error
	for _, tag := range tags {
		var block struct {
			BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
		}
		if err := client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(tag), false); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if block.BaseFeePerGas == nil {
			return big.NewInt(fallbackBaseFeeWei), nil
		}
		return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
	}

	header, headerErr := client.HeaderByNumber(ctx, nil)
	if headerErr != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", firstErr)
	}
	if header.BaseFee == nil {
		return big.NewInt(fallbackBaseFeeWei), nil
	}
	return new(big.Int).Set(header.BaseFee), nil
}
