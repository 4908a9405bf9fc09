package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits persisted for monetary columns.
const MoneyScale = 2

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)

	// MaxAmount is the exclusive upper bound of a NUMERIC(15,2) column.
	MaxAmount = decimal.New(1, 15-MoneyScale)
)

// ParseAmount parses user supplied monetary input and requires it to be positive.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount rejects zero, negative, sub-cent and out-of-range amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return validateStorable(amount)
}

// validateStorable reports whether amount survives a NUMERIC(15,2) column unchanged.
func validateStorable(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return ErrInvalidAmount
	}
	if amount.Abs().GreaterThanOrEqual(MaxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// FormatRupiah renders an amount in the compact form used by activity descriptions,
// e.g. 1.5M, 40K or 500.
func FormatRupiah(amount decimal.Decimal) string {
	amount = amount.Abs()
	switch {
	case amount.GreaterThanOrEqual(million):
		return amount.Div(million).StringFixed(1) + "M"
	case amount.GreaterThanOrEqual(thousand):
		return amount.Div(thousand).StringFixed(0) + "K"
	default:
		return amount.StringFixed(0)
	}
}
