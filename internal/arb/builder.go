// Package arb sizes the rETH mint-and-sell arbitrage that accompanies a
// minipool deposit and builds the unsigned transactions that execute it.
package arb

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/rocketarb/rocketarb/internal/chain"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/oneinch"
	"github.com/rocketarb/rocketarb/internal/units"
)

// ProtocolReader is the chain state the builder needs.
type ProtocolReader interface {
	Parameters(ctx context.Context) (domain.ProtocolParameters, error)
	RethValue(ctx context.Context, ethAmount *big.Int) (*big.Int, error)
}

// SwapRouter builds aggregator swaps.
type SwapRouter interface {
	Swap(ctx context.Context, req oneinch.SwapRequest) (oneinch.Swap, error)
}

// GasLimits are the fixed gas limits of each transaction the builder emits.
type GasLimits struct {
	Arb     uint64
	Mint    uint64
	Approve uint64
	Swap    uint64
}

// Addresses are the contracts the builder targets.
type Addresses struct {
	RETH            common.Address
	DepositPool     common.Address
	WETH            common.Address
	Router          common.Address
	ArbContract     common.Address
	HuffArbContract common.Address
	UniArbContract  common.Address
	UniPool         common.Address
}

// Settings configure a Builder.
type Settings struct {
	Method      domain.FundingMethod
	UseHeadroom bool
	Ceiling     *big.Int
	Slippage    decimal.Decimal
	GasRefund   uint64
	SwapReth    bool
	Gas         GasLimits
	Addresses   Addresses
}

// Fees are the EIP-1559 fee caps applied to every built transaction.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeData returns the deposit's own fees. Overrides only apply to a resumed
// deposit, whose fees may have gone stale.
func FeeData(deposit *types.Transaction, resumed bool, overrides Fees) Fees {
	fees := Fees{
		MaxFeePerGas:         new(big.Int).Set(deposit.GasFeeCap()),
		MaxPriorityFeePerGas: new(big.Int).Set(deposit.GasTipCap()),
	}
	if resumed && overrides.MaxFeePerGas != nil {
		fees.MaxFeePerGas = new(big.Int).Set(overrides.MaxFeePerGas)
	}
	if resumed && overrides.MaxPriorityFeePerGas != nil {
		fees.MaxPriorityFeePerGas = new(big.Int).Set(overrides.MaxPriorityFeePerGas)
	}
	return fees
}

// MinProfit is the least the arb contract must return for the bundle to be
// worth its gas.
func MinProfit(gasRefund uint64, deposit *types.Transaction) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasRefund), deposit.GasFeeCap())
}

// Builder plans arbitrages and builds their unsigned transactions.
type Builder struct {
	reader   ProtocolReader
	swaps    SwapRouter
	settings Settings
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(reader ProtocolReader, swaps SwapRouter, settings Settings, logger *slog.Logger) *Builder {
	return &Builder{
		reader:   reader,
		swaps:    swaps,
		settings: settings,
		logger:   logger.With(slog.String("component", "arb_builder")),
	}
}

// Method returns the configured funding method.
func (b *Builder) Method() domain.FundingMethod {
	return b.settings.Method
}

// Plan sizes the arbitrage for deposit from fresh protocol state. Flash
// methods get their swap data here; the self-funded swap is routed when it is
// built.
func (b *Builder) Plan(ctx context.Context, deposit *types.Transaction) (domain.ArbPlan, error) {
	params, err := b.reader.Parameters(ctx)
	if err != nil {
		return domain.ArbPlan{}, fmt.Errorf("arb: plan: %w", err)
	}

	amounts, err := ComputeAmounts(AmountInput{
		DepositAmount: new(big.Int).Sub(domain.ValidatorDepositSize, deposit.Value()),
		Params:        params,
		UseHeadroom:   b.settings.UseHeadroom,
		Ceiling:       b.settings.Ceiling,
	})
	if err != nil {
		return domain.ArbPlan{}, fmt.Errorf("arb: plan: %w", err)
	}

	reth, err := b.reader.RethValue(ctx, amounts.MintedBaseAmount)
	if err != nil {
		return domain.ArbPlan{}, fmt.Errorf("arb: plan: %w", err)
	}

	b.logger.Info("planned arbitrage",
		slog.String("method", string(b.settings.Method)),
		slog.String("reth", units.FormatEther(reth)),
		slog.String("eth", units.FormatEther(amounts.EthAmount)),
		slog.String("after_fee", units.FormatEther(amounts.MintedBaseAmount)),
	)

	plan := domain.ArbPlan{
		Method:     b.settings.Method,
		EthAmount:  amounts.EthAmount,
		RethAmount: reth,
		MinProfit:  MinProfit(b.settings.GasRefund, deposit),
		Target:     b.target(),
	}

	switch b.settings.Method {
	case domain.FundingUniswap:
		plan.SwapData, err = uniswapData(b.settings.Addresses.UniPool, reth)
		if err != nil {
			return domain.ArbPlan{}, fmt.Errorf("arb: plan: %w", err)
		}
	case domain.FundingFlashLoan, domain.FundingHuffLoan:
		swap, err := b.route(ctx, reth, b.settings.Addresses.WETH, plan.Target)
		if err != nil {
			return domain.ArbPlan{}, fmt.Errorf("arb: plan: %w", err)
		}
		plan.SwapData = swap.Tx.Data
	}

	b.logger.Info("using arb contract",
		slog.String("method", string(b.settings.Method)),
		slog.String("target", plan.Target.Hex()),
	)
	return plan, nil
}

// BuildArb builds the single flash-funded arb call that follows deposit.
func (b *Builder) BuildArb(plan domain.ArbPlan, deposit *types.Transaction, fees Fees) (*types.DynamicFeeTx, error) {
	return b.BuildBackrun(plan, deposit.ChainId(), deposit.Nonce()+1, fees)
}

// BuildBackrun builds the arb call with an explicit nonce, for accounts other
// than the deposit sender.
func (b *Builder) BuildBackrun(plan domain.ArbPlan, chainID *big.Int, nonce uint64, fees Fees) (*types.DynamicFeeTx, error) {
	if !plan.Method.IsFlash() {
		return nil, fmt.Errorf("arb: build arb: %w: method %s is not flash-funded", domain.ErrInvalidOptions, plan.Method)
	}

	var (
		data []byte
		err  error
	)
	if plan.Method == domain.FundingHuffLoan {
		data, err = chain.HuffArbABI.Pack("arb", plan.RethAmount, plan.EthAmount, plan.MinProfit, plan.SwapData)
	} else {
		data, err = chain.FlashArbABI.Pack("arb", plan.EthAmount, plan.MinProfit, plan.SwapData)
	}
	if err != nil {
		return nil, fmt.Errorf("arb: build arb: %w", err)
	}

	to := plan.Target
	return newTx(chainID, nonce, fees, b.settings.Gas.Arb, &to, nil, data), nil
}

// BuildSelfFunded builds the mint, approve and swap transactions that follow
// deposit when the node account funds the mint itself. from is the account
// that will hold the rETH. Only the mint is built when rETH is kept.
func (b *Builder) BuildSelfFunded(ctx context.Context, plan domain.ArbPlan, deposit *types.Transaction, fees Fees, from common.Address) ([]*types.DynamicFeeTx, error) {
	chainID := deposit.ChainId()
	nonce := deposit.Nonce() + 1

	mintData, err := chain.DepositPoolABI.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("arb: build mint: %w", err)
	}
	pool := b.settings.Addresses.DepositPool
	txs := []*types.DynamicFeeTx{
		newTx(chainID, nonce, fees, b.settings.Gas.Mint, &pool, plan.EthAmount, mintData),
	}
	if !b.settings.SwapReth {
		return txs, nil
	}

	router := b.settings.Addresses.Router
	approveData, err := chain.RETHABI.Pack("approve", router, plan.RethAmount)
	if err != nil {
		return nil, fmt.Errorf("arb: build approve: %w", err)
	}
	reth := b.settings.Addresses.RETH
	txs = append(txs, newTx(chainID, nonce+1, fees, b.settings.Gas.Approve, &reth, nil, approveData))

	swap, err := b.route(ctx, plan.RethAmount, oneinch.NativeToken, from)
	if err != nil {
		return nil, fmt.Errorf("arb: build swap: %w", err)
	}
	txs = append(txs, newTx(chainID, nonce+2, fees, b.settings.Gas.Swap, &router, nil, swap.Tx.Data))
	return txs, nil
}

func (b *Builder) target() common.Address {
	switch b.settings.Method {
	case domain.FundingUniswap:
		return b.settings.Addresses.UniArbContract
	case domain.FundingHuffLoan:
		return b.settings.Addresses.HuffArbContract
	case domain.FundingSelf:
		return b.settings.Addresses.Router
	default:
		return b.settings.Addresses.ArbContract
	}
}

func (b *Builder) route(ctx context.Context, reth *big.Int, dst, from common.Address) (oneinch.Swap, error) {
	swap, err := b.swaps.Swap(ctx, oneinch.SwapRequest{
		Src:      b.settings.Addresses.RETH,
		Dst:      dst,
		From:     from,
		Amount:   reth,
		Slippage: b.settings.Slippage,
		GasLimit: b.settings.Gas.Swap,
	})
	if err != nil {
		return oneinch.Swap{}, err
	}
	if swap.Tx.To != b.settings.Addresses.Router {
		b.logger.Warn("unexpected swap router",
			slog.String("to", swap.Tx.To.Hex()),
			slog.String("expected", b.settings.Addresses.Router.Hex()),
		)
	}
	return swap, nil
}

var uniswapArgs = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("uint256")},
}

func uniswapData(pool common.Address, reth *big.Int) ([]byte, error) {
	return uniswapArgs.Pack(pool, reth)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func newTx(chainID *big.Int, nonce uint64, fees Fees, gas uint64, to *common.Address, value *big.Int, data []byte) *types.DynamicFeeTx {
	if value == nil {
		value = new(big.Int)
	}
	return &types.DynamicFeeTx{
		ChainID:   new(big.Int).Set(chainID),
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(fees.MaxPriorityFeePerGas),
		GasFeeCap: new(big.Int).Set(fees.MaxFeePerGas),
		Gas:       gas,
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	}
}
