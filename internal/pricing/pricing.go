// Package pricing computes the fees of every chargeable domain operation.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
)

// Operation names the command being priced.
type Operation string

const (
	OpCreate   Operation = "create"
	OpRenew    Operation = "renew"
	OpRestore  Operation = "restore"
	OpTransfer Operation = "transfer"
	OpUpdate   Operation = "update"
)

// Params is what a Hook sees: the fees computed by the engine and the inputs they were computed from.
type Params struct {
	Op         Operation
	Tld        model.Tld
	DomainName string
	// Domain is the existing domain being priced; nil for creates and for callers that only know
	// the name.
	Domain *model.Domain
	AsOf   time.Time
	Years  int
	Fees   model.Fees
}

// Option adds inputs to the Params a Hook sees.
type Option func(*Params)

// OfDomain hands the hook the existing domain being priced.
func OfDomain(d model.Domain) Option {
	return func(p *Params) { p.Domain = &d }
}

// Hook post-processes every computed fee set. It must be a pure function of its input.
type Hook func(Params) (model.Fees, error)

// Identity is the default hook.
func Identity(p Params) (model.Fees, error) { return p.Fees, nil }

// Engine prices operations against an injected TLD policy.
type Engine struct {
	hook Hook
}

// NewEngine returns an engine that passes every result through hook. A nil hook is Identity.
func NewEngine(hook Hook) *Engine {
	if hook == nil {
		hook = Identity
	}
	return &Engine{hook: hook}
}

// CreatePrice prices registering name for years.
//
// Anchor tenants pay no create fee and no early access fee. A token with a nonzero discount
// fraction discounts min(years, discountYears) years of the per-year price, and fails on premium
// names unless the token discounts premiums.
func (e *Engine) CreatePrice(tld model.Tld, name string, asOf time.Time, years int, anchorTenant bool, token *model.AllocationToken, opts ...Option) (model.Fees, error) {
	prices := tld.PricesFor(name, asOf)
	fees := model.NewFees(tld.Currency)

	createCost := model.Zero(tld.Currency)
	if !anchorTenant {
		var err error
		createCost, err = discountedCreateCost(prices, years, token)
		if err != nil {
			return model.Fees{}, err
		}
	}
	fees = fees.With(model.Fee{Type: model.FeeCreate, Amount: createCost.Amount, Premium: prices.Premium})

	if eap := scheduleAt(tld.EapFee, asOf, tld.Currency); !eap.IsZero() && !anchorTenant {
		fees = fees.With(model.Fee{Type: model.FeeEap, Amount: eap.Amount})
	}
	return e.finish(Params{Op: OpCreate, Tld: tld, DomainName: name, AsOf: asOf, Years: years, Fees: fees}, opts)
}

func discountedCreateCost(prices model.DomainPrices, years int, token *model.AllocationToken) (model.Money, error) {
	perYear := prices.CreateCost
	total := perYear.Times(years)
	if token == nil || token.DiscountFraction == 0 {
		return total, nil
	}
	if prices.Premium && !token.DiscountPremiums {
		return model.Money{}, errs.ErrPremiumDiscount.About(token.Code)
	}
	discountYears := min(years, token.DiscountYears)
	factor := decimal.NewFromFloat(token.DiscountFraction).Mul(decimal.NewFromInt(int64(discountYears)))
	return total.Sub(perYear.TimesRounded(factor))
}

// RenewPrice prices renewing name for years. recurring is the domain's current autorenew event,
// nil for names that do not exist yet.
//
// SPECIFIED and NONPREMIUM renewals are always reported as non-premium, even when the name's list
// price is premium.
func (e *Engine) RenewPrice(tld model.Tld, name string, asOf time.Time, years int, recurring *model.Recurring, opts ...Option) (model.Fees, error) {
	fee, err := renewFee(tld, name, asOf, years, recurring)
	if err != nil {
		return model.Fees{}, err
	}
	fees := model.NewFees(tld.Currency).With(fee)
	return e.finish(Params{Op: OpRenew, Tld: tld, DomainName: name, AsOf: asOf, Years: years, Fees: fees}, opts)
}

func renewFee(tld model.Tld, name string, asOf time.Time, years int, recurring *model.Recurring) (model.Fee, error) {
	var behavior model.RenewalPrice = model.DefaultRenewal{}
	if recurring != nil && recurring.RenewalPrice != nil {
		behavior = recurring.RenewalPrice
	}
	switch b := behavior.(type) {
	case model.DefaultRenewal:
		prices := tld.PricesFor(name, asOf)
		return model.Fee{Type: model.FeeRenew, Amount: prices.RenewCost.Times(years).Amount, Premium: prices.Premium}, nil
	case model.SpecifiedRenewal:
		if b.Price.Currency != tld.Currency {
			return model.Fee{}, errs.CurrencyMismatch(tld.Currency, b.Price.Currency)
		}
		return model.Fee{Type: model.FeeRenew, Amount: b.Price.Times(years).Amount}, nil
	case model.NonPremiumRenewal:
		return model.Fee{Type: model.FeeRenew, Amount: tld.StandardRenewCost(asOf).Times(years).Amount}, nil
	default:
		return model.Fee{}, fmt.Errorf("unknown renewal price %T", behavior)
	}
}

// RestorePrice prices restoring a deleted name: the restore fee, plus one year under the domain's
// autorenew event when the registration had already expired.
func (e *Engine) RestorePrice(tld model.Tld, name string, asOf time.Time, expired bool, recurring *model.Recurring, opts ...Option) (model.Fees, error) {
	restore := scheduleAt(tld.RestoreCost, asOf, tld.Currency)
	fees := model.NewFees(tld.Currency).With(model.Fee{Type: model.FeeRestore, Amount: restore.Amount})
	if expired {
		fee, err := renewFee(tld, name, asOf, 1, recurring)
		if err != nil {
			return model.Fees{}, err
		}
		fees = fees.With(fee)
	}
	return e.finish(Params{Op: OpRestore, Tld: tld, DomainName: name, AsOf: asOf, Years: 1, Fees: fees}, opts)
}

// TransferPrice is a one-year renewal under the domain's existing autorenew event.
func (e *Engine) TransferPrice(tld model.Tld, name string, asOf time.Time, recurring *model.Recurring, opts ...Option) (model.Fees, error) {
	fee, err := renewFee(tld, name, asOf, 1, recurring)
	if err != nil {
		return model.Fees{}, err
	}
	fees := model.NewFees(tld.Currency).With(fee)
	return e.finish(Params{Op: OpTransfer, Tld: tld, DomainName: name, AsOf: asOf, Years: 1, Fees: fees}, opts)
}

// UpdatePrice is zero unless a hook says otherwise.
func (e *Engine) UpdatePrice(tld model.Tld, name string, asOf time.Time, opts ...Option) (model.Fees, error) {
	fees := model.NewFees(tld.Currency).With(model.Fee{Type: model.FeeUpdate, Amount: decimal.Zero})
	return e.finish(Params{Op: OpUpdate, Tld: tld, DomainName: name, AsOf: asOf, Fees: fees}, opts)
}

func (e *Engine) finish(p Params, opts []Option) (model.Fees, error) {
	for _, o := range opts {
		o(&p)
	}
	out, err := e.hook(p)
	if err != nil {
		return model.Fees{}, fmt.Errorf("%s fee hook: %w", p.Op, err)
	}
	if out.Currency != p.Tld.Currency {
		return model.Fees{}, errs.CurrencyMismatch(p.Tld.Currency, out.Currency)
	}
	if out.Total().IsNegative() {
		return model.Fees{}, errs.ErrNegativeFee.About(p.DomainName)
	}
	return out, nil
}

func scheduleAt(s model.Schedule, at time.Time, currency string) model.Money {
	m := s.At(at)
	if m.Currency == "" {
		return model.Zero(currency)
	}
	return m
}
