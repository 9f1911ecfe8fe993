package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// BundleEntry is one element of a persisted bundle. Exactly one of
// SignedTransaction or (Signer, Transaction) is set: the latter is an
// unsigned transaction signed by a local key when the bundle is submitted.
type BundleEntry struct {
	SignedTransaction hexutil.Bytes      `json:"signedTransaction,omitempty"`
	Signer            *common.Address    `json:"signer,omitempty"`
	Transaction       *types.Transaction `json:"transaction,omitempty"`
}

// Signed wraps raw signed transaction bytes as an entry.
func Signed(raw []byte) BundleEntry {
	return BundleEntry{SignedTransaction: raw}
}

// Validate enforces the either/or shape.
func (e BundleEntry) Validate() error {
	hasRaw := len(e.SignedTransaction) > 0
	hasLocal := e.Signer != nil || e.Transaction != nil
	switch {
	case hasRaw && hasLocal:
		return fmt.Errorf("bundle entry has both signedTransaction and signer/transaction")
	case hasRaw:
		return nil
	case e.Signer != nil && e.Transaction != nil:
		return nil
	default:
		return fmt.Errorf("bundle entry needs signedTransaction or signer+transaction")
	}
}

// Decode parses the signed transaction of the entry.
func (e BundleEntry) Decode() (*types.Transaction, error) {
	if len(e.SignedTransaction) == 0 {
		return nil, fmt.Errorf("bundle entry is not pre-signed")
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(e.SignedTransaction); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return tx, nil
}

// Bundle is an ordered set of transactions included atomically or not at all.
type Bundle []BundleEntry

// Resolution is the relay-side outcome of one candidate-block submission.
type Resolution int

const (
	BundleIncluded Resolution = iota
	BlockPassedWithoutInclusion
	AccountNonceTooHigh
)

func (r Resolution) String() string {
	switch r {
	case BundleIncluded:
		return "BundleIncluded"
	case BlockPassedWithoutInclusion:
		return "BlockPassedWithoutInclusion"
	case AccountNonceTooHigh:
		return "AccountNonceTooHigh"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}
