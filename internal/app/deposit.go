package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/rocketarb/rocketarb/internal/bundle"
	"github.com/rocketarb/rocketarb/internal/cache/redis"
	"github.com/rocketarb/rocketarb/internal/config"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/flashbots"
	"github.com/rocketarb/rocketarb/internal/signer"
	"github.com/rocketarb/rocketarb/internal/units"
)

// maxSafeSalt keeps generated salts within what every smartnode version
// parses.
var maxSafeSalt = big.NewInt(1<<53 - 1)

// DepositMode creates (or resumes) a minipool deposit bundle and either
// simulates or submits it.
func (a *App) DepositMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	store := deps.Store

	exists, err := store.Exists(ctx)
	if err != nil {
		return err
	}
	resumeDeposit := exists && !cfg.Run.Resume
	if err := a.checkDepositOptions(ctx, resumeDeposit); err != nil {
		return err
	}

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, store.Path(), cfg.Bundle.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: lock %s: %w", redis.LockKey(store.Path()), err)
		}
		defer unlock()
	}

	intent, err := depositIntent(cfg)
	if err != nil {
		return err
	}
	remote, err := a.remoteSigner(deps)
	if err != nil {
		return err
	}

	asm := bundle.NewAssembler(remote, deps.Builder, store, deps.Contracts.NodeDeposit, intent, deps.Overrides, a.logger)
	b, _, err := asm.Prepare(ctx, cfg.Run.Resume)
	if err != nil {
		return err
	}

	summary, err := bundle.Describe(b, deps.Contracts.NodeDeposit)
	if err != nil {
		return err
	}
	a.say("Expected minipool address: %s", summary.Minipool.Hex())
	a.say("Max fee of bundle's last tx: %s gwei (priority: %s gwei)",
		units.FormatGwei(summary.LastMaxFeePerGas), units.FormatGwei(summary.LastMaxPriorityFee))

	engine, err := newEngine(cfg, deps, nil, store, a.logger)
	if err != nil {
		return err
	}

	if cfg.Run.DryRun {
		a.say("Dry run only: simulating on the next block")
		a.simulate(ctx, engine, b)
		return nil
	}

	if !cfg.Run.Yes {
		a.say("This is your last chance to cancel before submitting a bundle of %d transactions.", len(b))
		ok, err := a.confirm(ctx, "Are you sure you want to continue?")
		if err != nil {
			return err
		}
		if !ok {
			a.say("Cancelled")
			return nil
		}
	}

	out, err := engine.Submit(ctx, b, summary.Minipool.Hex())
	switch {
	case errors.Is(err, domain.ErrNonceTooHigh):
		a.say("If you are trying to deposit another minipool, (re)move %s first.", store.Path())
		return err
	case err != nil:
		return err
	}

	a.logger.InfoContext(ctx, "bundle included",
		slog.Uint64("block", out.Target),
		slog.String("minipool", summary.Minipool.Hex()),
		slog.String("archived", out.Archived),
	)
	a.say("Bundle successfully included on chain in block %d!", out.Target)
	if out.Archived != "" {
		a.say("Moved %s to %s", store.Path(), out.Archived)
	}
	a.say("You might have to restart the smartnode validator container/process for it to pick up the new validator. " +
		"Otherwise it might miss attestations and block proposals once it is activated by the beaconchain.")
	return nil
}

// checkDepositOptions asks the pre-flight question and prints the warnings
// that depend on whether a saved deposit is being reused.
func (a *App) checkDepositOptions(ctx context.Context, resumeDeposit bool) error {
	cfg := a.cfg
	if !cfg.Run.Resume && !resumeDeposit && !cfg.Run.Yes {
		ok, err := a.confirm(ctx, "Have you tried almost depositing your minipool using the smartnode?")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: do that first (rocketpool node deposit, but cancel it before completion) then retry",
				domain.ErrInvalidOptions)
		}
	}
	if resumeDeposit && cfg.Deposit.Salt != "" {
		a.say("Warning: salt is ignored when resuming the deposit from %s", cfg.Bundle.File)
	}
	if resumeDeposit && (cfg.Gas.MaxFee != "" || cfg.Gas.MaxPrio != "") {
		a.say("Specified gas fees will apply to other transactions, but not the deposit resumed from %s", cfg.Bundle.File)
	}
	return nil
}

// remoteSigner picks the smartnode command or the interactive terminal.
func (a *App) remoteSigner(deps *Dependencies) (*signer.Remote, error) {
	cfg := a.cfg
	var daemon signer.Daemon
	if cfg.Daemon.Command == "interactive" {
		daemon = signer.NewInteractiveDaemon(a.in, a.out, deps.Contracts.NodeDeposit, deps.ChainID, cfg.Gas.DepositLimit,
			signer.InteractiveFees{
				MaxFeePerGas:         deps.Overrides.MaxFeePerGas,
				MaxPriorityFeePerGas: deps.Overrides.MaxPriorityFeePerGas,
			})
	} else {
		cmd, err := signer.NewCommandDaemon(cfg.Daemon.Command, signer.CommandOptions{
			MaxFeeGwei:  cfg.Gas.MaxFee,
			MaxPrioGwei: cfg.Gas.MaxPrio,
			ExtraArgs:   cfg.Daemon.ExtraArgs,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		daemon = cmd
	}
	return signer.NewRemote(daemon, a.logger)
}

// depositIntent builds the deposit request; the salt is random unless given.
func depositIntent(cfg *config.Config) (domain.DepositIntent, error) {
	amount, err := units.ParseEther(cfg.Deposit.Amount)
	if err != nil {
		return domain.DepositIntent{}, fmt.Errorf("%w: deposit amount: %v", domain.ErrInvalidOptions, err)
	}
	var salt *big.Int
	if cfg.Deposit.Salt != "" {
		if salt, err = units.ParseHexInt(cfg.Deposit.Salt); err != nil {
			return domain.DepositIntent{}, fmt.Errorf("%w: salt: %v", domain.ErrInvalidOptions, err)
		}
	} else if salt, err = rand.Int(rand.Reader, maxSafeSalt); err != nil {
		return domain.DepositIntent{}, fmt.Errorf("app: random salt: %w", err)
	}
	return domain.DepositIntent{
		Amount:         amount,
		MinimumNodeFee: cfg.Deposit.MinFee,
		Salt:           salt,
		UseCredit:      cfg.Deposit.UseCredit,
	}, nil
}

// Simulator dry-runs a bundle against the next block.
type Simulator interface {
	Simulate(ctx context.Context, b domain.Bundle) (flashbots.Simulation, error)
}

// simulate prints the outcome of a dry run. Relay failures are reported to
// the operator, not returned.
func (a *App) simulate(ctx context.Context, sim Simulator, b domain.Bundle) {
	res, err := sim.Simulate(ctx, b)
	if err != nil {
		a.say("Simulation failed: %v", err)
		return
	}
	if r, ok := res.FirstRevert(); ok {
		a.say("Simulation reverted in %s: %s %s", r.TxHash.Hex(), r.Error, r.Revert)
		return
	}
	a.say("Simulation succeeded: %d gas, coinbase diff %s wei", res.TotalGasUsed, res.CoinbaseDiff)
}
