package domain

import (
	"fmt"
	"math/big"
)

var (
	// OneEther is the 1e18 fixed-point unit used by every protocol ratio.
	OneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// OneGwei is 1e9 wei.
	OneGwei = big.NewInt(1_000_000_000)
	// ValidatorDepositSize is the full 32 ETH a minipool needs; whatever the
	// node does not bond is drawn from the deposit pool.
	ValidatorDepositSize = new(big.Int).Mul(big.NewInt(32), OneEther)
)

// ProtocolParameters is a snapshot of the Rocket Pool values that size an
// arbitrage. All ratios are 1e18 fixed point.
type ProtocolParameters struct {
	DepositFee     *big.Int // fraction of a deposit kept by the protocol
	MaxPoolSize    *big.Int
	PoolBalance    *big.Int
	MinimumDeposit *big.Int
	ExchangeRate   *big.Int // ETH per rETH
}

// Validate checks the fee lies in [0, 1).
func (p ProtocolParameters) Validate() error {
	if p.DepositFee == nil || p.MaxPoolSize == nil || p.PoolBalance == nil {
		return fmt.Errorf("protocol parameters incomplete")
	}
	if p.DepositFee.Sign() < 0 || p.DepositFee.Cmp(OneEther) >= 0 {
		return fmt.Errorf("deposit fee %s outside [0, 1e18)", p.DepositFee)
	}
	return nil
}

// Headroom is the unused capacity of the deposit pool. It is negative when the
// pool is over-filled.
func (p ProtocolParameters) Headroom() *big.Int {
	return new(big.Int).Sub(p.MaxPoolSize, p.PoolBalance)
}

// DepositIntent is what the operator asked the smartnode to deposit.
type DepositIntent struct {
	Amount         *big.Int // node bond in wei
	MinimumNodeFee string   // commission as a decimal fraction, e.g. "0.14"
	Salt           *big.Int
	UseCredit      bool
}
