package model

import "github.com/shopspring/decimal"

// FeeType labels one line of a fee set.
type FeeType string

const (
	FeeCreate  FeeType = "CREATE"
	FeeRenew   FeeType = "RENEW"
	FeeRestore FeeType = "RESTORE"
	FeeUpdate  FeeType = "UPDATE"
	FeeEap     FeeType = "EAP"
)

// Fee is one fee or credit line. Credits carry negative amounts.
type Fee struct {
	Type    FeeType         `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Premium bool            `json:"premium"`
}

// Fees is the priced result of an operation in a single currency.
type Fees struct {
	Currency string `json:"currency"`
	Items    []Fee  `json:"items"`
}

// NewFees starts an empty fee set.
func NewFees(currency string) Fees { return Fees{Currency: currency} }

// With returns a copy with f appended.
func (f Fees) With(fee Fee) Fees {
	items := make([]Fee, 0, len(f.Items)+1)
	items = append(items, f.Items...)
	f.Items = append(items, fee)
	return f
}

// Total sums every line.
func (f Fees) Total() Money {
	sum := decimal.Zero
	for _, it := range f.Items {
		sum = sum.Add(it.Amount)
	}
	return Money{Currency: f.Currency, Amount: sum}
}

// CostOf sums the lines of one type.
func (f Fees) CostOf(t FeeType) Money {
	sum := decimal.Zero
	for _, it := range f.Items {
		if it.Type == t {
			sum = sum.Add(it.Amount)
		}
	}
	return Money{Currency: f.Currency, Amount: sum}
}

// HasPremium reports whether any line is a premium price.
func (f Fees) HasPremium() bool {
	for _, it := range f.Items {
		if it.Premium {
			return true
		}
	}
	return false
}
