// Package balances batches token balance reads through the multicall
// caller so N tokens cost one RPC round trip.
package balances

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/multicall"
)

// Map holds arbitrary-precision balances keyed by Key. A fetch rebuilds it
// wholesale; readers never observe partial mutation.
type Map map[string]*big.Int

func Key(address string, chainID int64) string {
	return strings.ToLower(strings.TrimSpace(address)) + ":" + strconv.FormatInt(chainID, 10)
}

// balanceOf(address) selector.
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

type Backend interface {
	multicall.Backend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Batcher struct {
	backend Backend
	caller  *multicall.Caller
}

func NewBatcher(backend Backend) *Batcher {
	return &Batcher{backend: backend, caller: multicall.NewCaller(backend)}
}

// Fetch resolves every address to the owner's balance using one native read
// plus one multicall batch. Balances are advisory display data, so failures
// degrade instead of propagating: a reverting token zeroes its own slot and
// a failing RPC zeroes the whole map. Native synonyms (the zero address and
// the 0xeee sentinel) all receive the same native balance.
func (b *Batcher) Fetch(ctx context.Context, chainID int64, owner common.Address, addresses []string) Map {
	out := make(Map, len(addresses))
	contract := make([]string, 0, len(addresses))
	nativeNeeded := false
	for _, addr := range addresses {
		if id.IsNativeAddress(addr) {
			nativeNeeded = true
		} else {
			contract = append(contract, addr)
		}
		out[Key(addr, chainID)] = new(big.Int)
	}

	if nativeNeeded {
		if native, err := b.backend.BalanceAt(ctx, owner, nil); err == nil && native != nil {
			for _, addr := range addresses {
				if id.IsNativeAddress(addr) {
					out[Key(addr, chainID)] = new(big.Int).Set(native)
				}
			}
		}
	}

	if len(contract) == 0 {
		return out
	}
	callData := balanceOfCallData(owner)
	calls := make([]multicall.Call, len(contract))
	for i, addr := range contract {
		calls[i] = multicall.Call{Target: common.HexToAddress(addr), AllowFailure: true, CallData: callData}
	}
	results, err := b.caller.Aggregate(ctx, calls)
	if err != nil {
		return out
	}
	for i, addr := range contract {
		out[Key(addr, chainID)] = multicall.DecodeUint256(results[i])
	}
	return out
}

func balanceOfCallData(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	var word [32]byte
	copy(word[12:], owner.Bytes())
	return append(data, word[:]...)
}
