package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// GweiDecimals is the exponent between gwei and wei.
const GweiDecimals = 9

// ToDisplay converts a raw token amount into display units.
func ToDisplay(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FromDisplay converts a display amount such as "10000" or "0.5" into raw
// units, truncating anything below one raw unit.
func FromDisplay(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatTokens renders a raw amount for logs.
func FormatTokens(amount *big.Int, decimals int32) string {
	return ToDisplay(amount, decimals).String()
}
