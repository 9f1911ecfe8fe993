package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FundingMethod selects how the capital for the mint is sourced.
type FundingMethod string

const (
	// FundingUniswap borrows through a Uniswap v3 pool flash swap.
	FundingUniswap FundingMethod = "uniswap"
	// FundingFlashLoan borrows WETH from Balancer and sells through 1inch.
	FundingFlashLoan FundingMethod = "flashLoan"
	// FundingHuffLoan borrows from the rETH-liquidity Huff contract.
	FundingHuffLoan FundingMethod = "huffLoan"
	// FundingSelf uses ETH held by the node account: mint, approve, swap.
	FundingSelf FundingMethod = "self"
)

// ParseFundingMethod validates s as a FundingMethod.
func ParseFundingMethod(s string) (FundingMethod, error) {
	switch m := FundingMethod(s); m {
	case FundingUniswap, FundingFlashLoan, FundingHuffLoan, FundingSelf:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown funding method %q (valid: uniswap, flashLoan, huffLoan, self)", ErrInvalidOptions, s)
}

// IsFlash reports whether the whole arbitrage runs inside one contract call.
func (m FundingMethod) IsFlash() bool {
	return m != FundingSelf
}

// ArbPlan is derived on every build and never persisted on its own.
type ArbPlan struct {
	Method     FundingMethod
	EthAmount  *big.Int // routed through the mint
	RethAmount *big.Int // minted and sold
	MinProfit  *big.Int
	SwapData   []byte
	// Target is the contract the arb call goes to (arb contract for flash
	// methods, the swap router for self).
	Target common.Address
}
