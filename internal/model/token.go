package model

import "github.com/gofrs/uuid/v5"

// TokenType distinguishes single-use from reusable allocation tokens.
type TokenType string

const (
	TokenSingleUse    TokenType = "SINGLE_USE"
	TokenUnlimitedUse TokenType = "UNLIMITED_USE"
)

// AllocationToken is a redeemable code granting discounts or special allocation rights.
type AllocationToken struct {
	Code              string
	Type              TokenType
	DiscountFraction  float64
	DiscountYears     int
	AllowedTLDs       []string
	AllowedRegistrars []string
	DiscountPremiums  bool
	AnchorTenant      bool
	// RenewalPrice is applied to the autorenew of domains created with the token; nil means DEFAULT.
	RenewalPrice RenewalPrice
	// RedemptionHistoryID is set once a single-use token has been consumed.
	RedemptionHistoryID uuid.UUID
}

// Redeemed reports whether a single-use token was already consumed.
func (t AllocationToken) Redeemed() bool {
	return t.Type == TokenSingleUse && t.RedemptionHistoryID != uuid.Nil
}

// AllowsTLD reports whether the token may be used under tld.
func (t AllocationToken) AllowsTLD(tld string) bool { return allows(t.AllowedTLDs, tld) }

// AllowsRegistrar reports whether registrarID may use the token.
func (t AllocationToken) AllowsRegistrar(registrarID string) bool {
	return allows(t.AllowedRegistrars, registrarID)
}

// WithRedemption returns a copy consumed by the given history entry.
func (t AllocationToken) WithRedemption(historyID uuid.UUID) AllocationToken {
	t.AllowedTLDs = append([]string(nil), t.AllowedTLDs...)
	t.AllowedRegistrars = append([]string(nil), t.AllowedRegistrars...)
	t.RedemptionHistoryID = historyID
	return t
}

func allows(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
