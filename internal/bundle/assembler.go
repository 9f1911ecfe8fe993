// Package bundle assembles the deposit-plus-arbitrage bundle and keeps its
// durable record.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocketarb/rocketarb/internal/arb"
	"github.com/rocketarb/rocketarb/internal/chain"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/signer"
	"github.com/rocketarb/rocketarb/internal/units"
)

// Signer creates the deposit and signs the transactions that follow it.
type Signer interface {
	Deposit(ctx context.Context, intent domain.DepositIntent) (*types.Transaction, error)
	SignTx(ctx context.Context, unsigned *types.DynamicFeeTx, expected common.Address) (*types.Transaction, error)
}

// Planner sizes and builds the arbitrage transactions.
type Planner interface {
	Method() domain.FundingMethod
	Plan(ctx context.Context, deposit *types.Transaction) (domain.ArbPlan, error)
	BuildArb(plan domain.ArbPlan, deposit *types.Transaction, fees arb.Fees) (*types.DynamicFeeTx, error)
	BuildSelfFunded(ctx context.Context, plan domain.ArbPlan, deposit *types.Transaction, fees arb.Fees, from common.Address) ([]*types.DynamicFeeTx, error)
}

// Assembler produces bundles and persists them before submission.
type Assembler struct {
	signer      Signer
	planner     Planner
	store       Store
	nodeDeposit common.Address
	intent      domain.DepositIntent
	overrides   arb.Fees
	logger      *slog.Logger
}

// NewAssembler creates an Assembler. overrides only apply to bundles rebuilt
// around a resumed deposit.
func NewAssembler(s Signer, p Planner, store Store, nodeDeposit common.Address, intent domain.DepositIntent, overrides arb.Fees, logger *slog.Logger) *Assembler {
	return &Assembler{
		signer:      s,
		planner:     p,
		store:       store,
		nodeDeposit: nodeDeposit,
		intent:      intent,
		overrides:   overrides,
		logger:      logger.With(slog.String("component", "bundle_assembler")),
	}
}

// Prepare returns the bundle for this run: the saved record verbatim when
// resume is set, a rebuild around the saved deposit when a record exists,
// otherwise a new bundle. resumedDeposit reports the middle case.
func (a *Assembler) Prepare(ctx context.Context, resume bool) (b domain.Bundle, resumedDeposit bool, err error) {
	if resume {
		b, err = a.RetrieveBundle(ctx)
		return b, false, err
	}
	exists, err := a.store.Exists(ctx)
	if err != nil {
		return nil, false, err
	}
	if exists {
		b, err = a.RetrieveDeposit(ctx)
		return b, true, err
	}
	b, err = a.MakeBundle(ctx)
	return b, false, err
}

// MakeBundle obtains a new deposit from the daemon, builds and signs the
// arbitrage around it, and saves the result.
func (a *Assembler) MakeBundle(ctx context.Context) (domain.Bundle, error) {
	deposit, err := a.signer.Deposit(ctx, a.intent)
	if err != nil {
		return nil, fmt.Errorf("bundle: make: %w", err)
	}
	b, err := a.build(ctx, deposit, false)
	if err != nil {
		return nil, fmt.Errorf("bundle: make: %w", err)
	}
	if err := a.store.Save(ctx, b); err != nil {
		return nil, err
	}
	a.logger.Info("saved bundle", slog.Int("transactions", len(b)))
	return b, nil
}

// RetrieveDeposit keeps the saved deposit and rebuilds everything after it
// from fresh chain state and the current fee overrides.
func (a *Assembler) RetrieveDeposit(ctx context.Context) (domain.Bundle, error) {
	saved, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("resuming with saved deposit")
	deposit, err := saved[0].Decode()
	if err != nil {
		return nil, fmt.Errorf("bundle: retrieve deposit: %w", err)
	}
	b, err := a.build(ctx, deposit, true)
	if err != nil {
		return nil, fmt.Errorf("bundle: retrieve deposit: %w", err)
	}
	if err := a.store.Save(ctx, b); err != nil {
		return nil, err
	}
	a.logger.Info("saved bundle", slog.Int("transactions", len(b)))
	return b, nil
}

// RetrieveBundle returns the saved record unchanged.
func (a *Assembler) RetrieveBundle(ctx context.Context) (domain.Bundle, error) {
	b, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("resuming with saved bundle", slog.Int("transactions", len(b)))
	return b, nil
}

func (a *Assembler) build(ctx context.Context, deposit *types.Transaction, resumed bool) (domain.Bundle, error) {
	if _, err := CheckDeposit(deposit, a.nodeDeposit); err != nil {
		return nil, err
	}
	sender, err := signer.Recover(deposit)
	if err != nil {
		return nil, err
	}
	raw, err := deposit.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode deposit: %w", err)
	}

	plan, err := a.planner.Plan(ctx, deposit)
	if err != nil {
		return nil, err
	}
	fees := arb.FeeData(deposit, resumed, a.overrides)
	a.logger.Info("fee data",
		slog.String("max_fee_gwei", units.FormatGwei(fees.MaxFeePerGas)),
		slog.String("max_prio_gwei", units.FormatGwei(fees.MaxPriorityFeePerGas)),
		slog.Uint64("deposit_nonce", deposit.Nonce()),
	)

	var unsigned []*types.DynamicFeeTx
	if a.planner.Method().IsFlash() {
		tx, err := a.planner.BuildArb(plan, deposit, fees)
		if err != nil {
			return nil, err
		}
		unsigned = append(unsigned, tx)
	} else {
		unsigned, err = a.planner.BuildSelfFunded(ctx, plan, deposit, fees, sender)
		if err != nil {
			return nil, err
		}
	}

	b := domain.Bundle{domain.Signed(raw)}
	for _, tx := range unsigned {
		signed, err := a.signer.SignTx(ctx, tx, sender)
		if err != nil {
			return nil, err
		}
		rawTx, err := signed.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode nonce %d: %w", tx.Nonce, err)
		}
		b = append(b, domain.Signed(rawTx))
		a.logger.Info("signed transaction", slog.Uint64("nonce", tx.Nonce))
	}
	return b, nil
}

// CheckDeposit verifies deposit calls rocketNodeDeposit and returns the
// decoded call.
func CheckDeposit(deposit *types.Transaction, nodeDeposit common.Address) (chain.DepositCall, error) {
	if deposit.To() == nil || *deposit.To() != nodeDeposit {
		return chain.DepositCall{}, fmt.Errorf("%w: sent to %v, want %s", domain.ErrNotDeposit, deposit.To(), nodeDeposit.Hex())
	}
	call, err := chain.DecodeDeposit(deposit.Data())
	if err != nil {
		return chain.DepositCall{}, fmt.Errorf("%w: %v", domain.ErrNotDeposit, err)
	}
	return call, nil
}

// Summary describes a finalized bundle.
type Summary struct {
	Minipool           common.Address
	Sender             common.Address
	Transactions       int
	LastMaxFeePerGas   *big.Int
	LastMaxPriorityFee *big.Int
}

// Describe decodes the parts of b needed to submit and archive it.
func Describe(b domain.Bundle, nodeDeposit common.Address) (Summary, error) {
	if len(b) == 0 {
		return Summary{}, fmt.Errorf("bundle: describe: empty bundle")
	}
	deposit, err := b[0].Decode()
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: describe: %w", err)
	}
	call, err := CheckDeposit(deposit, nodeDeposit)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: describe: %w", err)
	}
	sender, err := signer.Recover(deposit)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: describe: %w", err)
	}

	last := b[len(b)-1]
	var lastTx *types.Transaction
	if last.Transaction != nil {
		lastTx = last.Transaction
	} else if lastTx, err = last.Decode(); err != nil {
		return Summary{}, fmt.Errorf("bundle: describe: %w", err)
	}

	return Summary{
		Minipool:           call.ExpectedMinipool,
		Sender:             sender,
		Transactions:       len(b),
		LastMaxFeePerGas:   lastTx.GasFeeCap(),
		LastMaxPriorityFee: lastTx.GasTipCap(),
	}, nil
}
