// Package units converts between human-readable ether, gwei and percent
// strings and fixed-point wei amounts.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

var (
	etherExp = int32(18)
	gweiExp  = int32(9)
)

// ParseEther parses a decimal ether amount such as "8" or "0.5" into wei.
func ParseEther(s string) (*big.Int, error) {
	return parseScaled(s, etherExp)
}

// ParseGwei parses a decimal gwei amount such as "11.5" into wei.
func ParseGwei(s string) (*big.Int, error) {
	return parseScaled(s, gweiExp)
}

// ParsePercent parses a non-negative percentage such as "2" or "0.5".
func ParsePercent(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("units: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("units: %q is negative", s)
	}
	return d, nil
}

// ParseHexInt parses a 0x-prefixed or bare hex string into an integer.
func ParseHexInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	// hexutil rejects leading zeros, which are common in salts.
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		return new(big.Int), nil
	}
	v, err := hexutil.DecodeBig("0x" + digits)
	if err != nil {
		return nil, fmt.Errorf("units: parse hex %q: %w", s, err)
	}
	return v, nil
}

// FormatEther renders wei as an ether decimal string.
func FormatEther(wei *big.Int) string {
	return format(wei, etherExp)
}

// FormatGwei renders wei as a gwei decimal string.
func FormatGwei(wei *big.Int) string {
	return format(wei, gweiExp)
}

func parseScaled(s string, exp int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("units: %q is negative", s)
	}
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("units: %q has more than %d decimals", s, exp)
	}
	return scaled.BigInt(), nil
}

func format(wei *big.Int, exp int32) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -exp).String()
}
