package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution/signer"
)

// OrderHandler submits a cross-chain order to its aggregator and reports
// its settlement status. Aggregator providers supply one; same-chain
// actions never need it.
type OrderHandler interface {
	Submit(ctx context.Context, action *Action, step *ActionStep) (string, error)
	Status(ctx context.Context, orderID string) (string, error)
}

type ExecuteOptions struct {
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	AllowMaxApproval   bool
	UnsafeProviderTx   bool
	Orders             OrderHandler
	Monitor            MonitorOptions
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
		Monitor:       DefaultMonitorOptions(),
	}
}

// ExecuteAction drives every pending step of an action to completion:
// approval and swap steps are simulated, submitted and confirmed on-chain;
// deposit steps additionally hand off to the order handler for settlement
// monitoring; order steps are pure aggregator submissions with no
// transaction of their own. Progress is persisted through the store after
// every transition so an interrupted run can be resumed.
func ExecuteAction(ctx context.Context, store *Store, action *Action, txSigner signer.Signer, opts ExecuteOptions) error {
	if action == nil {
		return clierr.New(clierr.CodeInternal, "missing action")
	}
	if txSigner == nil {
		return clierr.New(clierr.CodeSigner, "missing signer")
	}
	if len(action.Steps) == 0 {
		return clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	action.Status = ActionStatusRunning
	action.FromAddress = txSigner.Address().Hex()
	action.Touch()
	saveAction(store, action)

	for i := range action.Steps {
		step := &action.Steps[i]
		if step.Status == StepStatusConfirmed || step.Status == StepStatusFilled {
			continue
		}

		if step.Type == StepTypeOrder {
			if err := validateStepPolicy(action, step, 0, nil, opts); err != nil {
				markStepFailed(action, step, err.Error())
				saveAction(store, action)
				return err
			}
			if err := settleOrderStep(ctx, action, step, opts); err != nil {
				markStepFailed(action, step, err.Error())
				saveAction(store, action)
				return err
			}
			action.Touch()
			saveAction(store, action)
			continue
		}

		if strings.TrimSpace(step.RPCURL) == "" {
			markStepFailed(action, step, "missing rpc url")
			saveAction(store, action)
			return clierr.New(clierr.CodeUsage, "missing rpc url for action step")
		}
		if strings.TrimSpace(step.Target) == "" {
			markStepFailed(action, step, "missing target")
			saveAction(store, action)
			return clierr.New(clierr.CodeUsage, "missing target for action step")
		}
		if !common.IsHexAddress(strings.TrimSpace(step.Target)) {
			markStepFailed(action, step, "invalid target address")
			saveAction(store, action)
			return clierr.New(clierr.CodeUsage, "invalid target address for action step")
		}
		client, err := ethclient.DialContext(ctx, step.RPCURL)
		if err != nil {
			markStepFailed(action, step, err.Error())
			saveAction(store, action)
			return clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
		}

		if err := executeStep(ctx, client, txSigner, action, step, opts); err != nil {
			client.Close()
			markStepFailed(action, step, err.Error())
			saveAction(store, action)
			return err
		}
		client.Close()
		action.Touch()
		saveAction(store, action)

		if step.Type == StepTypeDeposit {
			if err := settleOrderStep(ctx, action, step, opts); err != nil {
				markStepFailed(action, step, err.Error())
				saveAction(store, action)
				return err
			}
			action.Touch()
			saveAction(store, action)
		}
	}
	action.Status = ActionStatusCompleted
	action.Touch()
	saveAction(store, action)
	return nil
}

// settleOrderStep registers the step with the aggregator and waits for the
// resulting order to reach a terminal status.
func settleOrderStep(ctx context.Context, action *Action, step *ActionStep, opts ExecuteOptions) error {
	if opts.Orders == nil {
		return clierr.New(clierr.CodeActionPlan, "step requires an order handler for settlement")
	}
	orderID, err := opts.Orders.Submit(ctx, action, step)
	if err != nil {
		return err
	}
	step.OrderID = orderID
	step.Status = StepStatusSubmitted

	if _, err := WaitForOrder(ctx, func(ctx context.Context) (string, error) {
		return opts.Orders.Status(ctx, orderID)
	}, opts.Monitor); err != nil {
		return err
	}
	step.Status = StepStatusFilled
	return nil
}

func executeStep(ctx context.Context, client *ethclient.Client, txSigner signer.Signer, action *Action, step *ActionStep, opts ExecuteOptions) error {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if step.ChainID != "" {
		expected := fmt.Sprintf("eip155:%d", chainID.Int64())
		if !strings.EqualFold(strings.TrimSpace(step.ChainID), expected) {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, got %s", expected, step.ChainID))
		}
	}
	if step.Status == StepStatusSubmitted {
		// A previous run already broadcast this step; resume by polling
		// its receipt instead of re-submitting.
		if hash, ok := normalizeStepTxHash(step.TxHash); ok {
			return waitForReceipt(ctx, client, step, hash, opts)
		}
	}
	target := common.HexToAddress(step.Target)
	data, err := decodeHex(step.Data)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	if err := validateStepPolicy(action, step, chainID.Int64(), data, opts); err != nil {
		return err
	}
	value, ok := new(big.Int).SetString(step.Value, 10)
	if !ok {
		return clierr.New(clierr.CodeUsage, "invalid step value")
	}
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: value, Data: data}

	if opts.Simulate {
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			return wrapEVMExecutionError(clierr.CodeActionSim, "simulate step (eth_call)", err)
		}
		step.Status = StepStatusSimulated
	}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return err
	}

	unlock := acquireSignerNonceLock(chainID, txSigner.Address())
	nonce, err := client.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		unlock()
		return clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		unlock()
		return clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	err = client.SendTransaction(ctx, signed)
	unlock()
	if err != nil {
		return wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	step.Status = StepStatusSubmitted
	step.TxHash = signed.Hash().Hex()

	return waitForReceipt(ctx, client, step, signed.Hash(), opts)
}

func waitForReceipt(ctx context.Context, client *ethclient.Client, step *ActionStep, hash common.Hash, opts ExecuteOptions) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				step.Status = StepStatusConfirmed
				return nil
			}
			return clierr.New(clierr.CodeActionReverted, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		}
		if waitCtx.Err() != nil {
			return clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", waitCtx.Err())
		}
		// Not-yet-mined lookups and transient RPC failures both retry
		// until the deadline.
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func resolveTipCap(ctx context.Context, client *ethclient.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func saveAction(store *Store, action *Action) {
	if store == nil || action == nil {
		return
	}
	_ = store.Save(*action)
}

func markStepFailed(action *Action, step *ActionStep, msg string) {
	step.Status = StepStatusFailed
	step.Error = msg
	action.Status = ActionStatusFailed
	action.Touch()
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
