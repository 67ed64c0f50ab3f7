package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/and161185/tld-registry/internal/errs"
)

// Transition is one entry of a time-keyed fee schedule.
type Transition struct {
	Start time.Time `json:"start"`
	Cost  Money     `json:"cost"`
}

// Schedule maps instants to prices. The value at t is the latest transition starting at or before t.
type Schedule []Transition

// NewSchedule sorts transitions by start time.
func NewSchedule(ts ...Transition) Schedule {
	out := append(Schedule(nil), ts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Flat is a schedule with a single value since the start of time.
func Flat(m Money) Schedule {
	return Schedule{{Start: StartOfTime, Cost: m}}
}

// At returns the price in effect at t.
func (s Schedule) At(t time.Time) Money {
	var cur Money
	for _, tr := range s {
		if tr.Start.After(t) {
			break
		}
		cur = tr.Cost
	}
	return cur
}

func (s Schedule) validate(name, cur string) error {
	if len(s) == 0 {
		return fmt.Errorf("%s: empty schedule", name)
	}
	if s[0].Start.After(StartOfTime) {
		return fmt.Errorf("%s: first transition must start at the beginning of time", name)
	}
	for _, tr := range s {
		if tr.Cost.Currency != cur {
			return fmt.Errorf("%s: %w", name, errs.CurrencyMismatch(cur, tr.Cost.Currency))
		}
		if tr.Cost.IsNegative() {
			return fmt.Errorf("%s: %w", name, errs.ErrNegativeCost)
		}
	}
	return nil
}

// Tld is the pricing and lifecycle policy of one top-level domain. It is read-only and passed
// explicitly into every pricing and flow call.
type Tld struct {
	Name     string
	Currency string

	CreateCost       Schedule
	RenewCost        Schedule
	RestoreCost      Schedule
	ServerStatusCost Schedule
	EapFee           Schedule

	// PremiumPrices holds per-year prices of premium second-level labels.
	PremiumPrices map[string]Money

	AddGracePeriod          time.Duration
	RenewGracePeriod        time.Duration
	AutoRenewGracePeriod    time.Duration
	TransferGracePeriod     time.Duration
	RedemptionGracePeriod   time.Duration
	PendingDeletePeriod     time.Duration
	AutomaticTransferLength time.Duration
}

// Validate checks schedule shape and currencies.
func (t Tld) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tld: empty name")
	}
	if _, err := CurrencyScale(t.Currency); err != nil {
		return fmt.Errorf("tld %s: %w", t.Name, err)
	}
	for name, s := range map[string]Schedule{
		"create": t.CreateCost, "renew": t.RenewCost, "restore": t.RestoreCost,
		"server_status": t.ServerStatusCost, "eap": t.EapFee,
	} {
		if err := s.validate(name, t.Currency); err != nil {
			return fmt.Errorf("tld %s: %w", t.Name, err)
		}
	}
	for label, p := range t.PremiumPrices {
		if p.Currency != t.Currency {
			return fmt.Errorf("tld %s: premium %s: %w", t.Name, label, errs.CurrencyMismatch(t.Currency, p.Currency))
		}
	}
	return nil
}

// Label returns the second-level label of a name under this TLD, or "" if the name is not under it.
func (t Tld) Label(domainName string) string {
	suffix := "." + t.Name
	if !strings.HasSuffix(domainName, suffix) {
		return ""
	}
	return strings.TrimSuffix(domainName, suffix)
}

// DomainPrices are the per-year prices that apply to one name at one instant.
type DomainPrices struct {
	Premium    bool
	CreateCost Money
	RenewCost  Money
}

// PricesFor returns the (possibly premium) per-year prices of a name at t.
func (t Tld) PricesFor(domainName string, at time.Time) DomainPrices {
	if p, ok := t.PremiumPrices[t.Label(domainName)]; ok {
		return DomainPrices{Premium: true, CreateCost: p, RenewCost: p}
	}
	return DomainPrices{CreateCost: t.CreateCost.At(at), RenewCost: t.RenewCost.At(at)}
}

// StandardRenewCost is the non-premium renew price at t.
func (t Tld) StandardRenewCost(at time.Time) Money { return t.RenewCost.At(at) }
