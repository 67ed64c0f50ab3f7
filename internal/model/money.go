package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/and161185/tld-registry/internal/errs"
)

// Money is an amount in a single ISO 4217 currency.
type Money struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// CurrencyScale returns the number of minor-unit digits for an ISO currency code.
func CurrencyScale(code string) (int32, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// NewMoney parses amount in the given currency and rounds it to the currency scale.
func NewMoney(code, amount string) (Money, error) {
	scale, err := CurrencyScale(code)
	if err != nil {
		return Money{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	return Money{Currency: code, Amount: d.RoundBank(scale)}, nil
}

// MustMoney is NewMoney that panics on error. Intended for constants and tests.
func MustMoney(code, amount string) Money {
	m, err := NewMoney(code, amount)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney parses "USD 10.00".
func ParseMoney(s string) (Money, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Money{}, fmt.Errorf("money %q: want \"<CUR> <amount>\"", s)
	}
	return NewMoney(strings.ToUpper(parts[0]), parts[1])
}

// Zero returns a zero amount in the given currency.
func Zero(code string) Money {
	return Money{Currency: code, Amount: decimal.Zero}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal compares currency and numeric value.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Add returns m+o. Currencies must match.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, errs.CurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Add(o.Amount)}, nil
}

// Sub returns m-o. Currencies must match.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, errs.CurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Sub(o.Amount)}, nil
}

// Times multiplies by a whole number of units (years).
func (m Money) Times(n int) Money {
	return Money{Currency: m.Currency, Amount: m.Amount.Mul(decimal.NewFromInt(int64(n)))}
}

// TimesRounded multiplies by an arbitrary factor and rounds half-even to the currency scale.
func (m Money) TimesRounded(f decimal.Decimal) Money {
	scale, err := CurrencyScale(m.Currency)
	if err != nil {
		scale = 2
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Mul(f).RoundBank(scale)}
}

// String renders "USD 10.00".
func (m Money) String() string {
	scale, err := CurrencyScale(m.Currency)
	if err != nil {
		return m.Currency + " " + m.Amount.String()
	}
	return m.Currency + " " + m.Amount.StringFixed(scale)
}
