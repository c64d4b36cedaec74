// Package core holds the ledger model: money, transactions, totals and views.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in cents of the single supported currency (USD).
type Money struct {
	Cents int64
}

// CurrencyCode is the only currency the tracker knows about.
const CurrencyCode = "USD"

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// MaxAmountCents caps a single transaction at one hundred billion dollars.
// Totals of up to ~900k capped transactions still fit in int64 cents, and the
// dollar value stays exact in a float64 storage column.
const MaxAmountCents int64 = 1e13

// ParseAmount converts a decimal string to Money, rounding half-up to cents.
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,34")  -> 1234 cents
//	ParseAmount("12.345") -> 1235 cents
//	ParseAmount("1,000")  -> ErrNonPositiveAmount
func ParseAmount(s string) (Money, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return Money{}, err
	}
	return AmountFromDecimal(d)
}

// ParseDecimal reads a plain decimal number. A comma is accepted as the
// decimal separator only when it is the sole separator and one or two digits
// follow it; anything that looks like digit grouping is rejected.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		frac := s[i+1:]
		if strings.ContainsAny(frac, ",.") || strings.Contains(s[:i], ".") || len(frac) < 1 || len(frac) > 2 {
			return decimal.Zero, ErrNonPositiveAmount
		}
		s = s[:i] + "." + frac
	}
	if s == "" {
		return decimal.Zero, ErrNonPositiveAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrNonPositiveAmount
	}
	return d, nil
}

// AmountFromDecimal rounds d half-up to cents and rejects results that are
// not positive or exceed MaxAmountCents.
func AmountFromDecimal(d decimal.Decimal) (Money, error) {
	// Round is half away from zero, which is half-up for positive values.
	cents := d.Round(2).Shift(2)
	if !cents.IsPositive() || cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return Money{}, ErrNonPositiveAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// AmountFromFloat converts a JSON number to Money. NaN and infinities are rejected.
func AmountFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrNonPositiveAmount
	}
	return AmountFromDecimal(decimal.NewFromFloat(f))
}

// Validate reports whether m is usable as a transaction amount.
func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrNonPositiveAmount
	}
	return nil
}

// Add saturates at the int64 range instead of wrapping, so a sum never
// changes sign.
func (m Money) Add(o Money) Money {
	sum := m.Cents + o.Cents
	switch {
	case o.Cents > 0 && sum < m.Cents:
		sum = math.MaxInt64
	case o.Cents < 0 && sum > m.Cents:
		sum = math.MinInt64
	}
	return Money{Cents: sum}
}

// Sub saturates like Add.
func (m Money) Sub(o Money) Money {
	if o.Cents == math.MinInt64 {
		return m.Add(Money{Cents: math.MaxInt64}).Add(Money{Cents: 1})
	}
	return m.Add(Money{Cents: -o.Cents})
}

func (m Money) IsZero() bool { return m.Cents == 0 }

func (m Money) IsNegative() bool { return m.Cents < 0 }

// Decimal returns the amount in dollars as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Dollars returns the dollar value as a float64 for display and JSON output.
// Use Cents for any arithmetic.
func (m Money) Dollars() float64 {
	return m.Decimal().InexactFloat64()
}

// Format renders m as en-US currency text, e.g. "$1,234.50" or "-$20.00".
func (m Money) Format() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + usPrinter.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

func (m Money) String() string { return m.Format() }
