package execution

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

// errorStringSelector is the 4-byte prefix of the standard Error(string)
// revert payload.
var errorStringSelector = common.FromHex("0x08c379a0")

// panicSelector is the 4-byte prefix of Panic(uint256), raised by
// compiler-inserted checks such as overflow and assert.
var panicSelector = common.FromHex("0x4e487b71")

var panicReasons = map[uint64]string{
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "corrupted storage byte array",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "uninitialized function call",
}

// rpcDataError is the shape go-ethereum's rpc package uses to expose
// revert payloads from eth_call and eth_estimateGas failures.
type rpcDataError interface {
	Error() string
	ErrorData() interface{}
}

// wrapEVMExecutionError attaches the decoded revert reason, when one is
// present, so the message the user sees carries the node's require text
// instead of a bare "execution reverted".
func wrapEVMExecutionError(code clierr.Code, op string, err error) error {
	if err == nil {
		return nil
	}
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, op, fmt.Errorf("%s: %w", reason, err))
	}
	return clierr.Wrap(code, op, err)
}

func decodeRevertFromError(err error) string {
	var dataErr rpcDataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	return decodeRevertData(common.FromHex(raw))
}

// decodeRevertData renders revert bytes as text. Error(string) payloads
// decode to their require reason, Panic(uint256) payloads to the compiler
// check that fired, and anything else is shown by selector.
func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) >= 4 {
		switch {
		case bytes.Equal(data[:4], errorStringSelector):
			if reason, err := abi.UnpackRevert(data); err == nil {
				return reason
			}
		case bytes.Equal(data[:4], panicSelector):
			if reason := decodePanicData(data); reason != "" {
				return reason
			}
		}
		return fmt.Sprintf("custom error %s", hexutil.Encode(data[:4]))
	}
	return hexutil.Encode(data)
}

func decodePanicData(data []byte) string {
	if len(data) < 36 {
		return ""
	}
	code := new(big.Int).SetBytes(data[4:36])
	if code.IsUint64() {
		if reason, ok := panicReasons[code.Uint64()]; ok {
			return fmt.Sprintf("panic 0x%02x: %s", code.Uint64(), reason)
		}
	}
	return fmt.Sprintf("panic 0x%s", code.Text(16))
}

func normalizeStepTxHash(raw string) (common.Hash, bool) {
	clean := strings.TrimSpace(raw)
	if !strings.HasPrefix(clean, "0x") || len(clean) != 66 {
		return common.Hash{}, false
	}
	if _, err := hex.DecodeString(clean[2:]); err != nil {
		return common.Hash{}, false
	}
	return common.HexToHash(clean), true
}

var (
	signerNonceMu    sync.Mutex
	signerNonceLocks = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock serializes the nonce-fetch to broadcast window for
// one signer on one chain, so concurrent steps cannot reuse a pending
// nonce. The returned func releases the lock.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(addr.Hex())
	signerNonceMu.Lock()
	lock, ok := signerNonceLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		signerNonceLocks[key] = lock
	}
	signerNonceMu.Unlock()
	lock.Lock()
	return lock.Unlock
}
