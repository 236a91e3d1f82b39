// Package units converts human-readable token amounts into the integer
// smallest-unit representation remote ledgers expect.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the scale so a uint256 can still hold one whole unit.
const MaxDecimals = 77

// Ether is the scale used by ETH and most ERC-20 tokens.
const Ether int32 = 18

// ParseUnits scales amount by 10^decimals. Fractions smaller than the
// smallest unit are rejected rather than truncated.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals %d out of range [0, %d]", decimals, MaxDecimals)
	}

	amount = strings.ReplaceAll(strings.TrimSpace(amount), "_", "")
	if amount == "" {
		return nil, fmt.Errorf("amount is empty")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}

	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, Ether)
}

// FormatUnits renders v as a decimal string with the given scale.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
