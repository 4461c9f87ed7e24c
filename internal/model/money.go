package model

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string in major currency units to an exact
// decimal. Shopify reports MoneyV2 amounts this way ("99.00").
// Invalid or empty input yields zero.
// Examples: "99.00" → 99, "1234.56" → 1234.56, "" → 0
func ParseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseMinorUnits converts an amount already in minor units to major units
// using the currency's minor unit exponent.
// WooCommerce Store API uses this format for all price fields.
// Examples: ("8900", 2) → 89.00, ("1500", 0) → 1500, "" → 0
func ParseMinorUnits(s string, minorUnit int) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil {
			return decimal.Zero
		}
		return d.Shift(int32(-minorUnit))
	}
	return decimal.New(n, int32(-minorUnit))
}

// LineTotal returns unit price times quantity.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}
