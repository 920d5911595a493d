package domain

import (
	"github.com/shopspring/decimal"
)

// minorUnitExp is the exponent between display units and minor units.
const minorUnitExp = 2

var ErrInvalidAmount = &Error{Code: EINVALID, Message: "Amount must be a decimal with at most two places"}

// FormatMinor renders minor units as a fixed two-place decimal string.
func FormatMinor(cents int64) string {
	return decimal.New(cents, -minorUnitExp).StringFixed(minorUnitExp)
}

// ParseMinor converts a decimal string such as "12.50" to minor units.
// Values with more than two decimal places are rejected rather than rounded.
func ParseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount.WithDetail("money.parse", "")
	}
	shifted := d.Shift(minorUnitExp)
	if !shifted.IsInteger() {
		return 0, ErrInvalidAmount.WithDetail("money.parse", "")
	}
	return shifted.IntPart(), nil
}
