package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocketarb/rocketarb/internal/bundle"
	"github.com/rocketarb/rocketarb/internal/chain"
	"github.com/rocketarb/rocketarb/internal/crypto"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/signer"
	"github.com/rocketarb/rocketarb/internal/submit"
)

// WatchMode backruns other operators' pending deposits with a flash-loan
// arbitrage signed by the local wallet.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	key, err := crypto.Load(crypto.Source{
		Hex:      cfg.Wallet.PrivateKey,
		Path:     cfg.Wallet.KeyPath,
		Password: cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: wallet: %w", err)
	}
	wallet := signer.NewLocal(key)
	a.logger.InfoContext(ctx, "watching for deposits",
		slog.String("node_deposit", deps.Contracts.NodeDeposit.Hex()),
		slog.String("wallet", wallet.Address().Hex()),
		slog.Bool("dry_run", cfg.Run.DryRun),
	)

	engine, err := newEngine(cfg, deps, []submit.LocalSigner{wallet}, nil, a.logger)
	if err != nil {
		return err
	}
	w := &backrunner{
		deps:   deps,
		nonces: deps.Eth,
		wallet: wallet,
		engine: engine,
		dryRun: cfg.Run.DryRun,
		logger: a.logger,
	}
	watcher := chain.NewPendingWatcher(deps.Eth.Client(), deps.Eth, deps.Contracts.NodeDeposit, time.Second, a.logger)
	return watcher.Watch(ctx, w.handle)
}

// NonceSource reports an account's next nonce including pending transactions.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

type backrunner struct {
	deps   *Dependencies
	nonces NonceSource
	wallet *signer.Local
	engine *submit.Engine
	dryRun bool
	logger *slog.Logger
}

// handle turns one pending deposit into a two-entry bundle and simulates or
// submits it.
func (w *backrunner) handle(ctx context.Context, deposit *types.Transaction) error {
	b, minipool, err := w.bundle(ctx, deposit)
	if err != nil {
		return err
	}
	if w.dryRun {
		_, err := w.engine.Simulate(ctx, b)
		return err
	}
	out, err := w.engine.Submit(ctx, b, minipool)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "backrun included",
		slog.String("deposit", deposit.Hash().Hex()),
		slog.Uint64("block", out.Target),
	)
	return nil
}

func (w *backrunner) bundle(ctx context.Context, deposit *types.Transaction) (domain.Bundle, string, error) {
	call, err := bundle.CheckDeposit(deposit, w.deps.Contracts.NodeDeposit)
	if err != nil {
		return nil, "", fmt.Errorf("app: could not parse %s as a deposit: %w", deposit.Hash().Hex(), err)
	}
	plan, err := w.deps.Builder.Plan(ctx, deposit)
	if err != nil {
		return nil, "", err
	}
	nonce, err := w.nonces.PendingNonceAt(ctx, w.wallet.Address())
	if err != nil {
		return nil, "", fmt.Errorf("app: wallet nonce: %w", err)
	}
	unsigned, err := w.deps.Builder.BuildBackrun(plan, w.deps.ChainID, nonce, w.deps.Overrides)
	if err != nil {
		return nil, "", err
	}
	raw, err := deposit.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("app: encode deposit: %w", err)
	}
	from := w.wallet.Address()
	return domain.Bundle{
		domain.Signed(raw),
		{Signer: &from, Transaction: types.NewTx(unsigned)},
	}, call.ExpectedMinipool.Hex(), nil
}
