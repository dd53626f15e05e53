// Package money converts decimal currency text to exact integer minor
// units and back. All arithmetic elsewhere in the ledger operates on the
// integer representation; these functions are the only boundary where
// decimal text is parsed.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed monetary value in minor units (e.g. paisa).
type Amount int64

// ErrInvalidAmount indicates input that is not a plain decimal number
// with at most two fractional digits.
var ErrInvalidAmount = errors.New("ledger: invalid decimal amount")

// Parse converts a decimal currency string into minor units. It accepts an
// optional leading '-', an integer part and at most two fractional digits.
// Anything else is rejected, including pre-converted minor-unit integers
// disguised as large decimals with exponents: external callers must speak
// decimal currency.
func Parse(s string) (Amount, error) {
	if !validShape(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	shifted := d.Shift(2).BigInt()
	if !shifted.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Amount(shifted.Int64()), nil
}

// Format renders minor units as a sign + integer + two-digit fraction
// decimal string, the inverse of Parse.
func Format(a Amount) string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

// Negate flips the sign of a decimal currency string, normalizing it to
// the Format shape.
func Negate(s string) (string, error) {
	a, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(-a), nil
}

// validShape enforces the strict input grammar: -?digits(.d or .dd)?
func validShape(s string) bool {
	if s == "" {
		return false
	}
	rest := strings.TrimPrefix(s, "-")
	intPart, frac, hasDot := strings.Cut(rest, ".")
	if intPart == "" || !allDigits(intPart) {
		return false
	}
	if hasDot {
		if len(frac) == 0 || len(frac) > 2 || !allDigits(frac) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
