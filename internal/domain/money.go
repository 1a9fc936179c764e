package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// KoboPerNaira is the number of minor units in one naira.
const KoboPerNaira = 100

var koboFactor = decimal.NewFromInt(KoboPerNaira)

// Money is an amount of minor units (kobo) in a currency.
type Money struct {
	Amount   int64
	Currency string
}

// NewMoney creates a Money from minor units.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ToDecimal converts minor units to major units.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(koboFactor)
}

// String renders the amount as "NGN 1234.50".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.ToDecimal().StringFixed(2))
}

// ParseMajorUnits converts a decimal string in naira ("1500.25") into kobo.
// Amounts with more than two decimal places are rejected rather than rounded.
func ParseMajorUnits(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	minor := d.Mul(koboFactor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has sub-kobo precision", raw)
	}
	if minor.GreaterThan(decimal.NewFromInt(maxInt64)) || minor.LessThan(decimal.NewFromInt(-maxInt64)) {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return minor.IntPart(), nil
}

// FormatNaira renders kobo as a grouped naira string, e.g. "₦49,500".
func FormatNaira(kobo int64) string {
	d := decimal.NewFromInt(kobo).Div(koboFactor)
	whole := d.Truncate(0).Abs().String()
	var b strings.Builder
	if kobo < 0 {
		b.WriteByte('-')
	}
	b.WriteString("₦")
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac := kobo % KoboPerNaira; frac != 0 {
		if frac < 0 {
			frac = -frac
		}
		fmt.Fprintf(&b, ".%02d", frac)
	}
	return b.String()
}

const maxInt64 = 1<<63 - 1
