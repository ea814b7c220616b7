package http

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/posledger/internal/domain"
)

// Prices travel as decimal strings with two fractional digits ("1.50") and
// are stored as int64 minor units.

var maxMinor = decimal.NewFromInt(domain.MaxPrice)

func parseMoney(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q must be non-negative", s)
	}
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	minor := d.Shift(2)
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %q exceeds %s", s, formatMoney(domain.MaxPrice))
	}
	return minor.IntPart(), nil
}

func formatMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
