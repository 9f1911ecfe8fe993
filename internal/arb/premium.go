package arb

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/oneinch"
)

// RateSource reports the protocol's ETH value of one rETH.
type RateSource interface {
	ExchangeRate(ctx context.Context) (*big.Int, error)
}

// Quoter prices swaps without building them.
type Quoter interface {
	Quote(ctx context.Context, req oneinch.QuoteRequest) (oneinch.Quote, error)
}

// Premium compares the protocol (primary) and market (secondary) rates of
// rETH, both in wei per rETH.
type Premium struct {
	Primary    *big.Int
	Secondary  *big.Int
	Percentage decimal.Decimal // three decimals, truncated
	Direction  string          // "premium" or "discount"
}

// ComparePremium computes how far the market rate sits from the protocol rate.
// The market trading at or above the protocol rate is a premium.
func ComparePremium(primary, secondary *big.Int) (Premium, error) {
	if primary == nil || primary.Sign() <= 0 {
		return Premium{}, fmt.Errorf("arb: premium: protocol rate must be positive")
	}
	if secondary == nil {
		return Premium{}, fmt.Errorf("arb: premium: missing market rate")
	}
	diff := new(big.Int).Sub(primary, secondary)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(100*1000))
	diff.Div(diff, primary)

	direction := "discount"
	if primary.Cmp(secondary) <= 0 {
		direction = "premium"
	}
	return Premium{
		Primary:    primary,
		Secondary:  secondary,
		Percentage: decimal.NewFromBigInt(diff, -3),
		Direction:  direction,
	}, nil
}

// String renders the percentage with three decimals, e.g. "0.412% discount".
func (p Premium) String() string {
	return p.Percentage.StringFixed(3) + "% " + p.Direction
}

// RoundRate truncates a wei-per-rETH rate to six decimals for display.
func RoundRate(rate *big.Int) *big.Int {
	unit := big.NewInt(1_000_000_000_000)
	return new(big.Int).Sub(rate, new(big.Int).Mod(rate, unit))
}

// MeasurePremium quotes one rETH against WETH and compares it with the
// protocol exchange rate.
func MeasurePremium(ctx context.Context, rates RateSource, quotes Quoter, reth, weth common.Address, swapGas uint64) (Premium, error) {
	primary, err := rates.ExchangeRate(ctx)
	if err != nil {
		return Premium{}, fmt.Errorf("arb: premium: %w", err)
	}
	q, err := quotes.Quote(ctx, oneinch.QuoteRequest{
		Src:      reth,
		Dst:      weth,
		Amount:   new(big.Int).Set(domain.OneEther),
		GasLimit: swapGas,
	})
	if err != nil {
		return Premium{}, fmt.Errorf("arb: premium: %w", err)
	}
	return ComparePremium(primary, q.ToAmount)
}
