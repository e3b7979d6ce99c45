package execution

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

type testRPCDataError struct {
	msg  string
	data any
}

func (e testRPCDataError) Error() string { return e.msg }

func (e testRPCDataError) ErrorData() interface{} { return e.data }

func TestDecodeRevertData(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "require reason",
			data: encodeErrorString(t, "slippage too high"),
			want: "slippage too high",
		},
		{
			name: "panic overflow",
			data: encodePanicCode(0x11),
			want: "panic 0x11: arithmetic overflow or underflow",
		},
		{
			name: "panic unknown code",
			data: encodePanicCode(0x99),
			want: "panic 0x99",
		},
		{
			name: "custom error selector",
			data: common.FromHex("0x12345678"),
			want: "custom error 0x12345678",
		},
		{
			name: "truncated payload",
			data: common.FromHex("0x12"),
			want: "0x12",
		},
		{
			name: "empty payload",
			data: nil,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decodeRevertData(tc.data); got != tc.want {
				t.Fatalf("decodeRevertData = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeRevertFromError(t *testing.T) {
	revertData := encodeErrorString(t, "insufficient output amount")
	withData := testRPCDataError{
		msg:  "execution reverted",
		data: "0x" + common.Bytes2Hex(revertData),
	}
	if got := decodeRevertFromError(withData); got != "insufficient output amount" {
		t.Fatalf("unexpected decoded reason: %q", got)
	}
	if got := decodeRevertFromError(errors.New("connection refused")); got != "" {
		t.Fatalf("plain errors should not decode, got %q", got)
	}
}

func TestWrapEVMExecutionErrorIncludesDecodedRevert(t *testing.T) {
	revertData := encodeErrorString(t, "panic path")
	rootErr := testRPCDataError{
		msg:  "execution reverted",
		data: "0x" + common.Bytes2Hex(revertData),
	}
	wrapped := wrapEVMExecutionError(clierr.CodeActionSim, "simulate step (eth_call)", rootErr)
	typed, ok := clierr.As(wrapped)
	if !ok {
		t.Fatalf("expected typed cli error, got %T", wrapped)
	}
	if typed.Code != clierr.CodeActionSim {
		t.Fatalf("expected CodeActionSim, got %d", typed.Code)
	}
	if !strings.Contains(typed.Error(), "panic path") {
		t.Fatalf("expected decoded reason in wrapped error, got: %v", typed)
	}
}

func TestNormalizeStepTxHash(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "valid", raw: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", ok: true},
		{name: "padded", raw: "  0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa ", ok: true},
		{name: "too short", raw: "0x1234", ok: false},
		{name: "missing prefix", raw: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", ok: false},
		{name: "non-hex digits", raw: "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := normalizeStepTxHash(tc.raw); ok != tc.ok {
				t.Fatalf("normalizeStepTxHash(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			}
		})
	}
}

func TestExecuteActionRejectsInvalidStepTargetBeforeRPCDial(t *testing.T) {
	action := NewAction("act_test", "swap", "eip155:1", Constraints{Simulate: true})
	action.Steps = append(action.Steps, ActionStep{
		StepID:  "step-1",
		Type:    StepTypeSwap,
		Status:  StepStatusPending,
		ChainID: "eip155:1",
		RPCURL:  "http://127.0.0.1:65535",
		Target:  "not-an-address",
		Data:    "0x",
		Value:   "0",
	})
	err := ExecuteAction(context.Background(), nil, &action, staticSigner{}, DefaultExecuteOptions())
	if err == nil {
		t.Fatal("expected invalid target error")
	}
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if action.Steps[0].Status != StepStatusFailed {
		t.Fatalf("expected step to be marked failed, got %s", action.Steps[0].Status)
	}
}

func TestAcquireSignerNonceLockSerializesSameSignerChain(t *testing.T) {
	signer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	unlock := acquireSignerNonceLock(big.NewInt(1), signer)
	secondAcquired := make(chan struct{})
	go func() {
		unlockSecond := acquireSignerNonceLock(big.NewInt(1), signer)
		close(secondAcquired)
		unlockSecond()
	}()

	select {
	case <-secondAcquired:
		t.Fatal("expected second lock attempt to block while first lock is held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-secondAcquired:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("expected second lock attempt to acquire after unlock")
	}
}

func encodeErrorString(t *testing.T, reason string) []byte {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("create abi string type: %v", err)
	}
	args := abi.Arguments{{Type: stringTy}}
	encoded, err := args.Pack(reason)
	if err != nil {
		t.Fatalf("pack revert reason: %v", err)
	}
	return append(common.FromHex("0x08c379a0"), encoded...)
}

func encodePanicCode(code uint64) []byte {
	payload := common.LeftPadBytes(new(big.Int).SetUint64(code).Bytes(), 32)
	return append(common.FromHex("0x4e487b71"), payload...)
}

type staticSigner struct{}

func (staticSigner) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (staticSigner) SignTx(_ *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func (staticSigner) SignTypedData(apitypes.TypedData) ([]byte, error) {
	return make([]byte, 65), nil
}
