package model

import "fmt"

// RenewalPriceBehavior selects how autorenew and explicit renew prices are computed.
type RenewalPriceBehavior string

const (
	RenewalDefault    RenewalPriceBehavior = "DEFAULT"
	RenewalSpecified  RenewalPriceBehavior = "SPECIFIED"
	RenewalNonPremium RenewalPriceBehavior = "NONPREMIUM"
)

// RenewalPrice is a closed union: DefaultRenewal, SpecifiedRenewal or NonPremiumRenewal.
type RenewalPrice interface {
	Behavior() RenewalPriceBehavior
	isRenewalPrice()
}

// DefaultRenewal renews at the current (possibly premium) list price.
type DefaultRenewal struct{}

// SpecifiedRenewal renews at a fixed per-year price.
type SpecifiedRenewal struct{ Price Money }

// NonPremiumRenewal renews at the standard price even for premium names.
type NonPremiumRenewal struct{}

func (DefaultRenewal) Behavior() RenewalPriceBehavior    { return RenewalDefault }
func (SpecifiedRenewal) Behavior() RenewalPriceBehavior  { return RenewalSpecified }
func (NonPremiumRenewal) Behavior() RenewalPriceBehavior { return RenewalNonPremium }

func (DefaultRenewal) isRenewalPrice()    {}
func (SpecifiedRenewal) isRenewalPrice()  {}
func (NonPremiumRenewal) isRenewalPrice() {}

// RenewalPriceOf rebuilds the union from its stored form. price is required for SPECIFIED only.
func RenewalPriceOf(b RenewalPriceBehavior, price *Money) (RenewalPrice, error) {
	switch b {
	case RenewalDefault, "":
		return DefaultRenewal{}, nil
	case RenewalNonPremium:
		return NonPremiumRenewal{}, nil
	case RenewalSpecified:
		if price == nil {
			return nil, fmt.Errorf("renewal price behavior SPECIFIED requires a price")
		}
		return SpecifiedRenewal{Price: *price}, nil
	default:
		return nil, fmt.Errorf("unknown renewal price behavior %q", b)
	}
}

// SpecifiedPrice returns the fixed price of a SPECIFIED renewal, or nil.
func SpecifiedPrice(r RenewalPrice) *Money {
	if s, ok := r.(SpecifiedRenewal); ok {
		p := s.Price
		return &p
	}
	return nil
}
