package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Local signs with a key held in memory. It signs the {signer, transaction}
// entries of watch-mode bundles.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocal wraps key.
func NewLocal(key *ecdsa.PrivateKey) *Local {
	return &Local{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewLocalFromHex parses a hex private key.
func NewLocalFromHex(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewLocal(key), nil
}

// Address returns the account of the key.
func (l *Local) Address() common.Address {
	return l.address
}

// SignTx signs tx for its chain.
func (l *Local) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), l.key)
	if err != nil {
		return nil, fmt.Errorf("signer: local sign: %w", err)
	}
	return signed, nil
}
