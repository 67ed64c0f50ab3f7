package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

// DomainInfo returns the domain as it stands now, including transfers resolved by time alone.
func (r *Registry) DomainInfo(ctx context.Context, tld model.Tld, caller Caller, name string) (model.Domain, error) {
	var out model.Domain
	_, err := r.run(ctx, "info", caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		d, err := loadDomain(ctx, tx, tld, name)
		if err != nil {
			return err
		}
		if caller.RegistrarID != d.SponsorID && !caller.Superuser {
			d.AuthInfo = model.AuthInfo{}
		}
		out = d
		res.domain = d.Name
		return nil
	})
	return out, err
}

// DomainRecords is the audit trail and billing record of one domain.
type DomainRecords struct {
	History []model.HistoryEntry
	Ledger  repository.Ledger
}

// DomainRecords returns history and billing of the most recent domain named name. Superuser only.
func (r *Registry) DomainRecords(ctx context.Context, caller Caller, name string) (DomainRecords, error) {
	if !caller.Superuser {
		return DomainRecords{}, errs.ErrSuperuserOnly
	}
	var out DomainRecords
	_, err := r.run(ctx, "records", caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		d, err := tx.DomainByName(ctx, name)
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrDomainNotFound.About(name)
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if out.History, err = tx.History(ctx, d.RepoID); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		if out.Ledger, err = tx.Ledger(ctx, d.RepoID); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		res.domain = d.Name
		return nil
	})
	return out, err
}

// PutToken creates or replaces an allocation token. Superuser only.
func (r *Registry) PutToken(ctx context.Context, caller Caller, tok model.AllocationToken) error {
	if !caller.Superuser {
		return errs.ErrSuperuserOnly
	}
	if tok.Code == "" {
		return fmt.Errorf("token: empty code")
	}
	if tok.DiscountFraction < 0 || tok.DiscountFraction > 1 {
		return errs.ErrPolicy.About("discount fraction must be within [0, 1]")
	}
	if tok.DiscountYears < 0 || tok.DiscountYears > model.MaxRegistrationYears {
		return errs.ErrBadPeriod
	}
	if tok.Type == "" {
		tok.Type = model.TokenSingleUse
	}
	_, err := r.run(ctx, "put_token", caller, func(ctx context.Context, tx repository.Tx, _ *flowResult) error {
		return tx.PutToken(ctx, tok)
	})
	return err
}

// FeeCheck asks what an operation on Name would cost now.
type FeeCheck struct {
	Op    pricing.Operation
	Name  string
	Years int
	Token string
}

// CheckFees prices an operation without performing it. Existing domains are priced with their
// current autorenew event.
func (r *Registry) CheckFees(ctx context.Context, tld model.Tld, caller Caller, q FeeCheck) (model.Fees, error) {
	if err := validateName(tld, q.Name); err != nil {
		return model.Fees{}, err
	}
	if q.Years == 0 {
		q.Years = 1
	}
	var out model.Fees
	_, err := r.run(ctx, "check_fees", caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		res.domain = q.Name
		if q.Op == pricing.OpCreate {
			token, err := loadToken(ctx, tx, q.Token, tld, caller.RegistrarID)
			if err != nil {
				return err
			}
			out, err = r.pricing.CreatePrice(tld, q.Name, now, q.Years, token != nil && token.AnchorTenant, token)
			return err
		}

		d, err := loadDomain(ctx, tx, tld, q.Name)
		if err != nil {
			return err
		}
		rec, err := loadAutorenew(ctx, tx, d)
		if err != nil {
			return err
		}
		switch q.Op {
		case pricing.OpRenew:
			out, err = r.pricing.RenewPrice(tld, d.Name, now, q.Years, rec, pricing.OfDomain(d))
		case pricing.OpTransfer:
			out, err = r.pricing.TransferPrice(tld, d.Name, now, rec, pricing.OfDomain(d))
		case pricing.OpRestore:
			out, err = r.pricing.RestorePrice(tld, d.Name, now, model.IsBeforeOrAt(d.ExpirationTime, now), rec, pricing.OfDomain(d))
		case pricing.OpUpdate:
			out, err = r.pricing.UpdatePrice(tld, d.Name, now, pricing.OfDomain(d))
		default:
			err = errs.ErrPolicy.About(fmt.Sprintf("unknown operation %q", q.Op))
		}
		return err
	})
	return out, err
}
