// Package money provides the decimal arithmetic used throughout the ledger
// and trade engine. All monetary fields are 2-fractional-digit decimals per
// spec.md §3; shopspring/decimal avoids the float64 rounding drift that
// would otherwise violate the ledger-conservation invariant of spec.md §8.
package money

import "github.com/shopspring/decimal"

// Decimal is the monetary value type used across the domain.
type Decimal = decimal.Decimal

// Zero is the zero monetary value.
var Zero = decimal.Zero

// FromFloat converts a float64 (e.g. an HTTP request field) to a rounded
// 2-decimal-place Decimal.
func FromFloat(f float64) Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// FromString parses a decimal string, rounding to 2 places.
func FromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return d.Round(2), nil
}

// Percent computes amount * pct / 100, rounded to 2 places. Used for the
// platform fee (spec.md §4.5).
func Percent(amount Decimal, pct float64) Decimal {
	return amount.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
}

// IsPositive reports whether d > 0.
func IsPositive(d Decimal) bool {
	return d.IsPositive()
}

// IsNegativeOrZero reports whether d <= 0.
func IsNegativeOrZero(d Decimal) bool {
	return !d.IsPositive()
}
