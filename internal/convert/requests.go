package convert

import (
	"fmt"
	"strings"

	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/service"
)

func feeAck(f Fields) (*service.FeeAck, error) {
	if !f.Has("fee") {
		return nil, nil
	}
	fee := f.Struct("fee")
	amount, err := fee.Decimal("amount")
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	return &service.FeeAck{Currency: strings.ToUpper(fee.String("currency")), Amount: amount}, nil
}

// years reads the "years" field, one when absent.
func years(f Fields) (int, error) {
	if !f.Has("years") {
		return 1, nil
	}
	return f.Int("years")
}

// Name normalizes the "name" field.
func Name(f Fields) string {
	return strings.ToLower(strings.TrimSpace(f.String("name")))
}

func statuses(ss []string) []model.StatusValue {
	if len(ss) == 0 {
		return nil
	}
	out := make([]model.StatusValue, 0, len(ss))
	for _, s := range ss {
		out = append(out, model.StatusValue(s))
	}
	return out
}

// CreateCommand decodes a create request. The caller is filled in by the server.
func CreateCommand(f Fields) (service.CreateCommand, error) {
	n, err := years(f)
	if err != nil {
		return service.CreateCommand{}, err
	}
	fee, err := feeAck(f)
	if err != nil {
		return service.CreateCommand{}, err
	}
	var contacts []model.ContactRef
	for _, c := range f.List("contacts") {
		contacts = append(contacts, model.ContactRef{Type: c.String("type"), ContactID: c.String("contact_id")})
	}
	return service.CreateCommand{
		Name:         Name(f),
		Years:        n,
		AuthCode:     f.String("auth_code"),
		RegistrantID: f.String("registrant"),
		Contacts:     contacts,
		Nameservers:  f.Strings("nameservers"),
		Token:        f.String("token"),
		Fee:          fee,
	}, nil
}

// RenewCommand decodes a renew request.
func RenewCommand(f Fields) (service.RenewCommand, error) {
	n, err := years(f)
	if err != nil {
		return service.RenewCommand{}, err
	}
	cur, err := f.Time("current_expiration")
	if err != nil {
		return service.RenewCommand{}, err
	}
	fee, err := feeAck(f)
	if err != nil {
		return service.RenewCommand{}, err
	}
	return service.RenewCommand{Name: Name(f), Years: n, CurrentExpiration: cur, Fee: fee}, nil
}

// UpdateCommand decodes an update request.
func UpdateCommand(f Fields) service.UpdateCommand {
	return service.UpdateCommand{
		Name:                 Name(f),
		AddStatuses:          statuses(f.Strings("add_statuses")),
		RemoveStatuses:       statuses(f.Strings("remove_statuses")),
		AddHosts:             f.Strings("add_hosts"),
		RemoveHosts:          f.Strings("remove_hosts"),
		RegistrantID:         f.OptString("registrant"),
		AuthCode:             f.OptString("auth_code"),
		SuspendAutorenew:     f.OptBool("suspend_autorenew"),
		RequestedByRegistrar: f.Bool("requested_by_registrar"),
	}
}

// RestoreCommand decodes a restore request.
func RestoreCommand(f Fields) (service.RestoreCommand, error) {
	fee, err := feeAck(f)
	if err != nil {
		return service.RestoreCommand{}, err
	}
	return service.RestoreCommand{Name: Name(f), Fee: fee}, nil
}

// TransferRequestCommand decodes a transfer request. The period defaults to one year.
func TransferRequestCommand(f Fields) (service.TransferRequestCommand, error) {
	period := 1
	if f.Has("period") {
		var err error
		if period, err = f.Int("period"); err != nil {
			return service.TransferRequestCommand{}, err
		}
	}
	fee, err := feeAck(f)
	if err != nil {
		return service.TransferRequestCommand{}, err
	}
	return service.TransferRequestCommand{
		Name:        Name(f),
		AuthCode:    f.String("auth_code"),
		PeriodYears: period,
		Token:       f.String("token"),
		Fee:         fee,
	}, nil
}

// FeeCheck decodes a fee check.
func FeeCheck(f Fields) (service.FeeCheck, error) {
	n, err := years(f)
	if err != nil {
		return service.FeeCheck{}, err
	}
	op := pricing.Operation(strings.ToLower(f.String("op")))
	switch op {
	case pricing.OpCreate, pricing.OpRenew, pricing.OpRestore, pricing.OpTransfer, pricing.OpUpdate:
	default:
		return service.FeeCheck{}, fmt.Errorf("op: unknown operation %q", op)
	}
	return service.FeeCheck{Op: op, Name: Name(f), Years: n, Token: f.String("token")}, nil
}

// Token decodes an allocation token definition.
func Token(f Fields) (model.AllocationToken, error) {
	dy, err := f.Int("discount_years")
	if err != nil {
		return model.AllocationToken{}, err
	}
	tok := model.AllocationToken{
		Code:              f.String("code"),
		Type:              model.TokenType(strings.ToUpper(f.String("type"))),
		DiscountFraction:  f.Float("discount_fraction"),
		DiscountYears:     dy,
		AllowedTLDs:       f.Strings("allowed_tlds"),
		AllowedRegistrars: f.Strings("allowed_registrars"),
		DiscountPremiums:  f.Bool("discount_premiums"),
		AnchorTenant:      f.Bool("anchor_tenant"),
	}
	switch tok.Type {
	case "", model.TokenSingleUse, model.TokenUnlimitedUse:
	default:
		return model.AllocationToken{}, fmt.Errorf("type: unknown token type %q", tok.Type)
	}
	if f.Has("renewal_price") {
		rp := f.Struct("renewal_price")
		var price *model.Money
		if rp.Has("amount") {
			amount, err := rp.Decimal("amount")
			if err != nil {
				return model.AllocationToken{}, fmt.Errorf("renewal_price: %w", err)
			}
			m, err := model.NewMoney(strings.ToUpper(rp.String("currency")), amount.String())
			if err != nil {
				return model.AllocationToken{}, fmt.Errorf("renewal_price: %w", err)
			}
			price = &m
		}
		b := model.RenewalPriceBehavior(strings.ToUpper(rp.String("behavior")))
		if tok.RenewalPrice, err = model.RenewalPriceOf(b, price); err != nil {
			return model.AllocationToken{}, fmt.Errorf("renewal_price: %w", err)
		}
	}
	return tok, nil
}
