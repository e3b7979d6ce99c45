package multicall

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// Backend is the slice of an RPC client the caller needs; *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Caller struct {
	backend Backend
	address common.Address
}

// NewCaller targets the canonical Multicall3 deployment, which lives at the
// same address on every supported chain.
func NewCaller(backend Backend) *Caller {
	return &Caller{backend: backend, address: common.HexToAddress(registry.Multicall3Address)}
}

func (c *Caller) ContractAddress() common.Address {
	return c.address
}

// Aggregate runs every call in one aggregate3 round trip. Calls are always
// submitted with allowFailure=true, so a reverting target degrades its own
// slot to a failed result instead of aborting the whole batch.
func (c *Caller) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}
	prepared := make([]Call, len(calls))
	copy(prepared, calls)
	for i := range prepared {
		prepared[i].AllowFailure = true
	}

	data := EncodeBatch(prepared)
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "multicall aggregate3", err)
	}
	results, err := DecodeBatch(raw, len(calls))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode aggregate3 response", err)
	}
	return results, nil
}
