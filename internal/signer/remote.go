// Package signer obtains signatures for bundle transactions, either from the
// smartnode daemon that owns the node account or from a local key.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Remote signs through a Daemon.
//
// Signing is two-phase: the smartnode only accepts fully encoded signed
// transactions, so each request is first signed with a throwaway key and the
// daemon replaces the signature with the node account's. The result is
// checked against the requested payload and the expected sender before it is
// returned.
type Remote struct {
	daemon    Daemon
	throwaway *ecdsa.PrivateKey
	logger    *slog.Logger
}

// NewRemote creates a Remote with a fresh throwaway key.
func NewRemote(daemon Daemon, logger *slog.Logger) (*Remote, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: generate placeholder key: %w", err)
	}
	return &Remote{
		daemon:    daemon,
		throwaway: key,
		logger:    logger.With(slog.String("component", "remote_signer")),
	}, nil
}

// Deposit asks the daemon for a signed deposit transaction. The credit flag
// is only sent to smartnodes that understand it.
func (r *Remote) Deposit(ctx context.Context, intent domain.DepositIntent) (*types.Transaction, error) {
	if intent.UseCredit {
		if v, ok := r.daemon.(Versioned); ok {
			out, err := v.Version(ctx)
			if err != nil {
				return nil, err
			}
			supported, err := SupportsCredit(out)
			if err != nil {
				return nil, err
			}
			r.logger.Info("smartnode version", slog.String("version", out), slog.Bool("credit", supported))
			intent.UseCredit = supported
		} else {
			intent.UseCredit = false
		}
	}

	raw, err := r.daemon.Deposit(ctx, intent)
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("signer: decode deposit: %w: %v", domain.ErrDaemonRejected, err)
	}
	r.logger.Info("got deposit transaction from smartnode", slog.String("hash", tx.Hash().Hex()))
	return tx, nil
}

// SignTx has the daemon sign unsigned and verifies the result was signed by
// expected.
func (r *Remote) SignTx(ctx context.Context, unsigned *types.DynamicFeeTx, expected common.Address) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(unsigned.ChainID)

	placeholder, err := types.SignNewTx(r.throwaway, signer, unsigned)
	if err != nil {
		return nil, fmt.Errorf("signer: placeholder sign: %w", err)
	}
	encoded, err := placeholder.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("signer: encode placeholder: %w", err)
	}

	resp, err := r.daemon.Sign(ctx, encoded)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("signer: sign: %w: %s", domain.ErrDaemonRejected, resp.Error)
	}

	raw, err := decodeHex(resp.SignedData)
	if err != nil {
		return nil, fmt.Errorf("signer: decode signed data: %w", err)
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("signer: decode signed data: %w", err)
	}

	if err := VerifyPayload(signed, unsigned); err != nil {
		return nil, err
	}
	if err := VerifySender(signed, expected); err != nil {
		return nil, err
	}

	r.logger.Debug("signed transaction",
		slog.Uint64("nonce", signed.Nonce()),
		slog.String("hash", signed.Hash().Hex()),
	)
	return signed, nil
}

// Recover returns the sender of a signed transaction.
func Recover(tx *types.Transaction) (common.Address, error) {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("signer: recover sender: %w", err)
	}
	return from, nil
}

// VerifySender checks tx was signed by expected.
func VerifySender(tx *types.Transaction, expected common.Address) error {
	from, err := Recover(tx)
	if err != nil {
		return err
	}
	if from != expected {
		return fmt.Errorf("signer: %w: got %s, want %s", domain.ErrSenderMismatch, from.Hex(), expected.Hex())
	}
	return nil
}

// VerifyPayload checks signed commits to exactly the fields of unsigned.
func VerifyPayload(signed *types.Transaction, unsigned *types.DynamicFeeTx) error {
	s := types.LatestSignerForChainID(unsigned.ChainID)
	if signed.Type() != types.DynamicFeeTxType || s.Hash(signed) != s.Hash(types.NewTx(unsigned)) {
		return fmt.Errorf("signer: %w: nonce %d", domain.ErrPayloadMismatch, unsigned.Nonce)
	}
	return nil
}
