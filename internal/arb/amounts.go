package arb

import (
	"fmt"
	"math/big"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// AmountInput sizes one arbitrage.
type AmountInput struct {
	// DepositAmount is the ETH the minipool deposit draws from the pool.
	DepositAmount *big.Int
	Params        domain.ProtocolParameters
	// UseHeadroom adds the pool's unused capacity to the mint.
	UseHeadroom bool
	// Ceiling caps the mint. Nil or zero means unlimited.
	Ceiling *big.Int
}

// Amounts is the result of ComputeAmounts.
type Amounts struct {
	EthAmount        *big.Int
	DepositFeeAmount *big.Int
	MintedBaseAmount *big.Int
}

// ComputeAmounts decides how much ETH to route through the mint and what the
// protocol keeps as its fee. It performs no I/O.
func ComputeAmounts(in AmountInput) (Amounts, error) {
	if in.DepositAmount == nil {
		return Amounts{}, fmt.Errorf("arb: compute amounts: missing deposit amount")
	}
	if err := in.Params.Validate(); err != nil {
		return Amounts{}, fmt.Errorf("arb: compute amounts: %w", err)
	}

	eth := new(big.Int).Set(in.DepositAmount)
	if in.UseHeadroom {
		if headroom := in.Params.Headroom(); headroom.Sign() > 0 {
			eth.Add(eth, headroom)
		}
	}
	if in.Ceiling != nil && in.Ceiling.Sign() > 0 && eth.Cmp(in.Ceiling) > 0 {
		eth.Set(in.Ceiling)
	}
	if eth.Sign() <= 0 {
		return Amounts{}, fmt.Errorf("arb: compute amounts: %w", domain.ErrNothingToArb)
	}

	fee := new(big.Int).Mul(eth, in.Params.DepositFee)
	fee.Quo(fee, domain.OneEther)

	return Amounts{
		EthAmount:        eth,
		DepositFeeAmount: fee,
		MintedBaseAmount: new(big.Int).Sub(eth, fee),
	}, nil
}
