package payment

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of the chain's base asset (wei).
const NativeDecimals = 18

// Display strings arrive shaped for humans, e.g. "$0.05 POL"; everything
// that is not part of a decimal number is stripped before parsing.
var nonNumericRe = regexp.MustCompile(`[^0-9.]`)

// ParseAmount strips display characters from a human amount string and
// parses it as a positive decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := nonNumericRe.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// ToBaseUnits converts a human amount to base units (wei). Sub-wei
// precision is truncated.
func ToBaseUnits(d decimal.Decimal) *big.Int {
	return d.Shift(NativeDecimals).Truncate(0).BigInt()
}

// FormatBaseUnits renders base units as a human decimal string.
func FormatBaseUnits(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals).String()
}
