// Package money formats USD amounts for receipts and converts them to the
// integer cent values Stripe expects. Both the PDF renderer and the email
// composer format through this package so their output always agrees.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Limits on amounts accepted from callers.
const (
	maxFractionDigits = 2
	minExponent       = -18
	maxExponent       = 9
)

var maxAmount = decimal.NewFromInt(1_000_000_000)

// Errors returned by Check. Their text reads as the tail of a field message,
// e.g. "subtotal must not be negative".
var (
	ErrNegative  = errors.New("must not be negative")
	ErrPrecision = errors.New("must not have more than 2 decimal places")
	ErrRange     = errors.New("must not exceed 1000000000")
)

// Check reports whether d is a non-negative amount of whole cents no larger
// than one billion dollars. Format and Cents are only safe on amounts that
// pass Check.
//
// The exponent is bounded before any arithmetic: rescaling a value such as
// 1e-50000000 builds a fifty-million-digit power of ten.
func Check(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegative
	}
	exp := d.Exponent()
	if exp < minExponent {
		return ErrPrecision
	}
	if exp > maxExponent {
		return ErrRange
	}
	if !d.Truncate(maxFractionDigits).Equal(d) {
		return ErrPrecision
	}
	if d.GreaterThan(maxAmount) {
		return ErrRange
	}
	return nil
}

// Format renders d as a dollar string with exactly two decimals, e.g. "$19.99".
// Negative amounts put the sign before the symbol: "-$1.50".
func Format(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// Cents converts a dollar amount to whole cents, rounding half away from zero.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// Percent renders a fractional rate as a percentage label: 0.0625 → "6.25%".
func Percent(rate decimal.Decimal) string {
	return rate.Mul(hundred).String() + "%"
}
