// Package submit drives a finalized bundle through relay simulation and
// submission over a window of candidate blocks.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/flashbots"
)

// Relay is the bundle relay.
type Relay interface {
	SendBundle(ctx context.Context, txs [][]byte, target uint64) (flashbots.SendBundleResponse, error)
	CallBundle(ctx context.Context, txs [][]byte, target uint64) (flashbots.Simulation, error)
}

// Chain is the node access the engine needs.
type Chain interface {
	flashbots.ChainWatcher
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// LocalSigner signs {signer, transaction} entries at submission time.
type LocalSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Archiver moves the bundle record aside once it is included.
type Archiver interface {
	Archive(ctx context.Context, key string) (string, error)
}

// Notifier forwards operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Event names passed to the audit log and notifier.
const (
	EventSimulated = "bundle_simulated"
	EventSubmitted = "bundle_submitted"
	EventIncluded  = "bundle_included"
	EventExhausted = "bundle_exhausted"
	EventStale     = "bundle_stale"
)

// Options configures an Engine. Archive, Blob, Audit and Notifier are optional.
type Options struct {
	MaxTries     int
	PollInterval time.Duration
	LocalSigners []LocalSigner
	Archive      Archiver
	Blob         domain.BlobWriter
	BlobPrefix   string
	Audit        domain.AuditStore
	Notifier     Notifier
}

// Outcome describes an included bundle.
type Outcome struct {
	Target     uint64
	BundleHash common.Hash
	Archived   string
}

// Engine simulates and submits bundles.
type Engine struct {
	relay  Relay
	chain  Chain
	opts   Options
	locals map[common.Address]LocalSigner
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(relay Relay, chain Chain, opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.MaxTries < 1 {
		return nil, fmt.Errorf("submit: max tries %d: %w", opts.MaxTries, domain.ErrInvalidOptions)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	locals := make(map[common.Address]LocalSigner, len(opts.LocalSigners))
	for _, s := range opts.LocalSigners {
		locals[s.Address()] = s
	}
	return &Engine{
		relay:  relay,
		chain:  chain,
		opts:   opts,
		locals: locals,
		logger: logger.With(slog.String("component", "submit")),
	}, nil
}

// prepared is a bundle in relay form.
type prepared struct {
	raw     [][]byte
	txs     []*types.Transaction
	senders []common.Address
}

func (e *Engine) prepare(b domain.Bundle) (prepared, error) {
	if len(b) == 0 {
		return prepared{}, fmt.Errorf("submit: empty bundle")
	}
	var p prepared
	for i, entry := range b {
		if err := entry.Validate(); err != nil {
			return prepared{}, fmt.Errorf("submit: entry %d: %w", i, err)
		}
		var tx *types.Transaction
		if len(entry.SignedTransaction) > 0 {
			decoded, err := entry.Decode()
			if err != nil {
				return prepared{}, fmt.Errorf("submit: entry %d: %w", i, err)
			}
			tx = decoded
		} else {
			local, ok := e.locals[*entry.Signer]
			if !ok {
				return prepared{}, fmt.Errorf("submit: entry %d: no local key for %s: %w",
					i, entry.Signer.Hex(), domain.ErrInvalidOptions)
			}
			signed, err := local.SignTx(entry.Transaction)
			if err != nil {
				return prepared{}, fmt.Errorf("submit: entry %d: %w", i, err)
			}
			tx = signed
		}
		sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return prepared{}, fmt.Errorf("submit: entry %d: recover sender: %w", i, err)
		}
		if entry.Signer != nil && sender != *entry.Signer {
			return prepared{}, fmt.Errorf("submit: entry %d: %w", i, domain.ErrSenderMismatch)
		}
		raw, err := tx.MarshalBinary()
		if err != nil {
			return prepared{}, fmt.Errorf("submit: entry %d: encode: %w", i, err)
		}
		p.raw = append(p.raw, raw)
		p.txs = append(p.txs, tx)
		p.senders = append(p.senders, sender)
	}
	return p, nil
}

// Simulate runs the bundle against the block after head. The chain is not
// touched. A reverting transaction is reported in the result, not as an error.
func (e *Engine) Simulate(ctx context.Context, b domain.Bundle) (flashbots.Simulation, error) {
	p, err := e.prepare(b)
	if err != nil {
		return flashbots.Simulation{}, err
	}
	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return flashbots.Simulation{}, fmt.Errorf("submit: head: %w", err)
	}
	target := head + 1

	sim, err := e.relay.CallBundle(ctx, p.raw, target)
	if err != nil {
		e.logger.ErrorContext(ctx, "simulation failed",
			slog.Uint64("target", target),
			slog.String("error", err.Error()),
		)
		return flashbots.Simulation{}, fmt.Errorf("submit: simulate: %w", err)
	}

	for _, r := range sim.Results {
		e.logger.InfoContext(ctx, "simulated transaction",
			slog.String("tx", r.TxHash.Hex()),
			slog.Uint64("gas_used", r.GasUsed),
			slog.String("error", r.Error),
			slog.String("revert", r.Revert),
		)
	}
	attrs := []any{
		slog.Uint64("target", target),
		slog.Uint64("total_gas_used", sim.TotalGasUsed),
		slog.String("coinbase_diff", sim.CoinbaseDiff),
		slog.String("bundle_gas_price", sim.BundleGasPrice),
	}
	if r, ok := sim.FirstRevert(); ok {
		e.logger.WarnContext(ctx, "simulation reverted", append(attrs,
			slog.String("tx", r.TxHash.Hex()),
			slog.String("revert", r.Revert),
			slog.String("error", r.Error),
		)...)
	} else {
		e.logger.InfoContext(ctx, "simulation succeeded", attrs...)
	}
	e.audit(ctx, EventSimulated, map[string]any{
		"target":         target,
		"total_gas_used": sim.TotalGasUsed,
		"reverted":       hasRevert(sim),
	})
	return sim, nil
}

func hasRevert(sim flashbots.Simulation) bool {
	_, ok := sim.FirstRevert()
	return ok
}

// Submit sends the bundle for each of the next MaxTries blocks and waits for
// them in order. archiveKey names the archived record on inclusion. Once
// dispatch starts the run is no longer cancelled by ctx.
func (e *Engine) Submit(ctx context.Context, b domain.Bundle, archiveKey string) (Outcome, error) {
	p, err := e.prepare(b)
	if err != nil {
		return Outcome{}, err
	}
	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("submit: head: %w", err)
	}
	if err := e.checkBaseFee(ctx, head, p.txs); err != nil {
		return Outcome{}, err
	}

	ctx = context.WithoutCancel(ctx)
	tries := e.opts.MaxTries
	responses := make([]flashbots.SendBundleResponse, tries)
	relayErrs := make([]error, tries)

	var g errgroup.Group
	for i := 0; i < tries; i++ {
		target := head + 1 + uint64(i)
		g.Go(func() error {
			responses[i], relayErrs[i] = e.relay.SendBundle(ctx, p.raw, target)
			return nil
		})
	}
	_ = g.Wait()

	e.audit(ctx, EventSubmitted, map[string]any{
		"first_target": head + 1,
		"last_target":  head + uint64(tries),
		"transactions": len(p.txs),
	})

	// Submissions whose wait failed are resolved again before the run is
	// reported as failed, since one of them may hold the inclusion.
	var unresolved []*flashbots.Submission
	for i := 0; i < tries; i++ {
		target := head + 1 + uint64(i)
		if relayErrs[i] != nil {
			e.logger.ErrorContext(ctx, "relay rejected bundle",
				slog.Uint64("target", target),
				slog.String("error", relayErrs[i].Error()),
			)
			continue
		}

		sub := flashbots.NewSubmission(target, responses[i].BundleHash, p.txs, p.senders)
		res, err := sub.Wait(ctx, e.chain, e.opts.PollInterval)
		if err != nil {
			e.logger.ErrorContext(ctx, "wait failed",
				slog.Uint64("target", target),
				slog.String("error", err.Error()),
			)
			unresolved = append(unresolved, sub)
			continue
		}
		e.logger.InfoContext(ctx, "resolution",
			slog.Uint64("target", target),
			slog.String("bundle_hash", responses[i].BundleHash.Hex()),
			slog.String("resolution", res.String()),
		)

		switch res {
		case domain.BlockPassedWithoutInclusion:
			continue
		case domain.AccountNonceTooHigh:
			if sub := e.recheck(ctx, unresolved); sub != nil {
				return e.included(ctx, sub, archiveKey), nil
			}
			e.audit(ctx, EventStale, map[string]any{"target": target})
			return Outcome{}, fmt.Errorf("submit: target %d: %w", target, domain.ErrNonceTooHigh)
		}
		return e.included(ctx, sub, archiveKey), nil
	}

	if sub := e.recheck(ctx, unresolved); sub != nil {
		return e.included(ctx, sub, archiveKey), nil
	}
	e.audit(ctx, EventExhausted, map[string]any{"last_target": head + uint64(tries)})
	e.notify(ctx, EventExhausted, "Bundle not included",
		fmt.Sprintf("No inclusion in blocks %d-%d (key %s)", head+1, head+uint64(tries), archiveKey))
	return Outcome{}, fmt.Errorf("submit: %d blocks: %w", tries, domain.ErrExhausted)
}

// waitAttempts bounds how often an unresolved submission is waited for again.
const waitAttempts = 3

// recheck waits again for submissions whose first wait failed and returns the
// one whose block included the bundle, if any.
func (e *Engine) recheck(ctx context.Context, subs []*flashbots.Submission) *flashbots.Submission {
	for _, sub := range subs {
		for attempt := 1; attempt <= waitAttempts; attempt++ {
			res, err := sub.Wait(ctx, e.chain, e.opts.PollInterval)
			if err == nil {
				e.logger.InfoContext(ctx, "resolution after retry",
					slog.Uint64("target", sub.Target),
					slog.String("resolution", res.String()),
				)
				if res == domain.BundleIncluded {
					return sub
				}
				break
			}
			e.logger.WarnContext(ctx, "wait failed again",
				slog.Uint64("target", sub.Target),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			time.Sleep(e.opts.PollInterval)
		}
	}
	return nil
}

// included archives the record of an included submission and reports it.
func (e *Engine) included(ctx context.Context, sub *flashbots.Submission, archiveKey string) Outcome {
	out := Outcome{Target: sub.Target, BundleHash: sub.BundleHash}
	out.Archived = e.archive(ctx, archiveKey)
	e.audit(ctx, EventIncluded, map[string]any{
		"target":      out.Target,
		"bundle_hash": out.BundleHash.Hex(),
		"archived":    out.Archived,
	})
	e.notify(ctx, EventIncluded, "Bundle included",
		fmt.Sprintf("Included in block %d (key %s)", out.Target, archiveKey))
	return out
}

// MaxBaseFee is the highest base fee reachable after blocks full blocks.
func MaxBaseFee(base *big.Int, blocks int) *big.Int {
	fee := new(big.Int).Set(base)
	for i := 0; i < blocks; i++ {
		fee.Mul(fee, big.NewInt(1125))
		fee.Div(fee, big.NewInt(1000))
		fee.Add(fee, big.NewInt(1))
	}
	return fee
}

func (e *Engine) checkBaseFee(ctx context.Context, head uint64, txs []*types.Transaction) error {
	header, err := e.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(head))
	if err != nil {
		return fmt.Errorf("submit: header %d: %w", head, err)
	}
	if header.BaseFee == nil {
		return nil
	}
	predicted := MaxBaseFee(header.BaseFee, e.opts.MaxTries)
	for _, tx := range txs {
		if tx.GasFeeCap().Cmp(predicted) < 0 {
			e.logger.WarnContext(ctx, "gas price too low for the retry window",
				slog.String("tx", tx.Hash().Hex()),
				slog.String("max_fee_per_gas", tx.GasFeeCap().String()),
				slog.String("max_predicted_base_fee", predicted.String()),
			)
		}
	}
	return nil
}

func (e *Engine) archive(ctx context.Context, key string) string {
	if e.opts.Archive == nil {
		return ""
	}
	archived, err := e.opts.Archive.Archive(ctx, key)
	if err != nil {
		e.logger.ErrorContext(ctx, "archive failed", slog.String("error", err.Error()))
		return ""
	}
	e.logger.InfoContext(ctx, "bundle archived", slog.String("path", archived))

	if e.opts.Blob != nil {
		if err := e.upload(ctx, archived); err != nil {
			e.logger.ErrorContext(ctx, "archive upload failed",
				slog.String("path", archived),
				slog.String("error", err.Error()),
			)
		}
	}
	return archived
}

func (e *Engine) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.opts.Blob.Put(ctx, path.Join(e.opts.BlobPrefix, filepath.Base(file)), f, "application/json")
}

func (e *Engine) audit(ctx context.Context, event string, detail map[string]any) {
	if e.opts.Audit == nil {
		return
	}
	if err := e.opts.Audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.opts.Notifier == nil {
		return
	}
	if err := e.opts.Notifier.Notify(ctx, event, title, message); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
