package flashbots

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// ChainWatcher is the chain access needed to resolve a submission.
type ChainWatcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Submission is a bundle accepted by the relay for one target block.
type Submission struct {
	Target     uint64
	BundleHash common.Hash
	txs        []*types.Transaction
	senders    []common.Address
}

// NewSubmission tracks txs, signed by senders, submitted for target.
func NewSubmission(target uint64, bundleHash common.Hash, txs []*types.Transaction, senders []common.Address) *Submission {
	return &Submission{
		Target:     target,
		BundleHash: bundleHash,
		txs:        txs,
		senders:    senders,
	}
}

// Wait blocks until the target block has been mined and reports whether the
// bundle landed in it. When it did not, a sender nonce that moved past a
// bundle transaction means the bundle can never be included.
func (s *Submission) Wait(ctx context.Context, chain ChainWatcher, poll time.Duration) (domain.Resolution, error) {
	for {
		head, err := chain.BlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("flashbots: wait for %d: %w", s.Target, err)
		}
		if head >= s.Target {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(poll):
		}
	}

	included := 0
	for _, tx := range s.txs {
		receipt, err := chain.TransactionReceipt(ctx, tx.Hash())
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("flashbots: receipt %s: %w", tx.Hash().Hex(), err)
		}
		if receipt.BlockNumber != nil && receipt.BlockNumber.Uint64() == s.Target {
			included++
		}
	}
	if included == len(s.txs) {
		return domain.BundleIncluded, nil
	}

	target := new(big.Int).SetUint64(s.Target)
	for i, tx := range s.txs {
		nonce, err := chain.NonceAt(ctx, s.senders[i], target)
		if err != nil {
			return 0, fmt.Errorf("flashbots: nonce of %s: %w", s.senders[i].Hex(), err)
		}
		if nonce > tx.Nonce() {
			return domain.AccountNonceTooHigh, nil
		}
	}
	return domain.BlockPassedWithoutInclusion, nil
}
