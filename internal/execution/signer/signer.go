package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer signs transactions and EIP-712 typed data for one account.
// Typed-data signatures are what intent-based aggregators accept in place
// of an on-chain transaction.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	SignTypedData(typedData apitypes.TypedData) ([]byte, error)
}
