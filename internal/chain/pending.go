package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPC is the raw JSON-RPC access used for filters (rpc.Client).
type RPC interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// TxFetcher looks transactions up by hash (ethclient.Client).
type TxFetcher interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// PendingWatcher polls a pending-transaction filter and hands every
// transaction sent to one address to a callback.
type PendingWatcher struct {
	rpc      RPC
	txs      TxFetcher
	to       common.Address
	interval time.Duration
	logger   *slog.Logger
}

// NewPendingWatcher watches for transactions to the given address.
func NewPendingWatcher(rpc RPC, txs TxFetcher, to common.Address, interval time.Duration, logger *slog.Logger) *PendingWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &PendingWatcher{
		rpc:      rpc,
		txs:      txs,
		to:       to,
		interval: interval,
		logger:   logger.With(slog.String("component", "pending_watcher")),
	}
}

// Watch polls until ctx is done. Errors from handle are logged and do not
// stop the watch. The filter is reinstalled if the node forgets it.
func (w *PendingWatcher) Watch(ctx context.Context, handle func(context.Context, *types.Transaction) error) error {
	id, err := w.install(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		var ok bool
		if err := w.rpc.CallContext(cctx, &ok, "eth_uninstallFilter", id); err != nil {
			w.logger.Warn("uninstall filter failed", slog.String("filter", id), slog.String("error", err.Error()))
			return
		}
		w.logger.Info("filter uninstalled", slog.String("filter", id), slog.Bool("ok", ok))
	}()

	seen := newSeenSet(seenGeneration)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var hashes []common.Hash
		if err := w.rpc.CallContext(ctx, &hashes, "eth_getFilterChanges", id); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !strings.Contains(strings.ToLower(err.Error()), "filter not found") {
				return fmt.Errorf("chain: filter changes: %w", err)
			}
			w.logger.Warn("pending filter expired, reinstalling", slog.String("filter", id))
			if id, err = w.install(ctx); err != nil {
				return err
			}
			continue
		}
		w.poll(ctx, hashes, seen, handle)
	}
}

func (w *PendingWatcher) install(ctx context.Context) (string, error) {
	var id string
	if err := w.rpc.CallContext(ctx, &id, "eth_newPendingTransactionFilter"); err != nil {
		return "", fmt.Errorf("chain: install pending filter: %w", err)
	}
	w.logger.Info("pending transaction filter installed", slog.String("filter", id))
	return id, nil
}

func (w *PendingWatcher) poll(ctx context.Context, hashes []common.Hash, seen *seenSet, handle func(context.Context, *types.Transaction) error) {
	var dropped, skipped int
	for _, hash := range hashes {
		if !seen.add(hash) {
			skipped++
			continue
		}

		tx, _, err := w.txs.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) || (err == nil && tx == nil) {
			dropped++
			continue
		}
		if err != nil {
			w.logger.Warn("fetch pending transaction failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
			dropped++
			continue
		}
		if tx.To() == nil || *tx.To() != w.to {
			skipped++
			continue
		}

		w.logger.Info("pending transaction to watched contract", slog.String("tx", hash.Hex()))
		if err := handle(ctx, tx); err != nil {
			w.logger.Error("handle pending transaction failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	w.logger.Debug("polled pending transactions",
		slog.Int("hashes", len(hashes)),
		slog.Int("dropped", dropped),
		slog.Int("skipped", skipped),
	)
}

// seenGeneration is how many hashes one generation of the seen set holds.
const seenGeneration = 50_000

// seenSet remembers recently handled hashes in two generations. When the
// current generation fills up it becomes the previous one and the oldest
// hashes are forgotten, so memory stays bounded while the watch runs.
type seenSet struct {
	limit    int
	current  map[common.Hash]struct{}
	previous map[common.Hash]struct{}
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{limit: limit, current: make(map[common.Hash]struct{}, limit)}
}

// add records hash and reports whether it was new.
func (s *seenSet) add(hash common.Hash) bool {
	if _, ok := s.current[hash]; ok {
		return false
	}
	if _, ok := s.previous[hash]; ok {
		return false
	}
	if len(s.current) >= s.limit {
		s.previous = s.current
		s.current = make(map[common.Hash]struct{}, s.limit)
	}
	s.current[hash] = struct{}{}
	return true
}

func (s *seenSet) len() int {
	return len(s.current) + len(s.previous)
}
