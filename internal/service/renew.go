package service

import (
	"context"
	"time"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

// RenewCommand extends a registration. CurrentExpiration must name the current expiration date.
type RenewCommand struct {
	Caller            Caller
	Name              string
	Years             int
	CurrentExpiration time.Time
	Fee               *FeeAck
}

// RenewResult is the renewed domain and what it cost.
type RenewResult struct {
	Domain model.Domain
	Fees   model.Fees
}

// RenewDomain renews cmd.Name for cmd.Years.
func (r *Registry) RenewDomain(ctx context.Context, tld model.Tld, cmd RenewCommand) (RenewResult, error) {
	if cmd.Years < 1 || cmd.Years > model.MaxRegistrationYears {
		return RenewResult{}, errs.ErrBadPeriod
	}
	var out RenewResult
	_, err := r.run(ctx, "renew", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if err := verifyOwner(cmd.Caller, d); err != nil {
			return err
		}
		if err := verifyNoStatus(d, model.StatusClientRenewProhibited, model.StatusServerRenewProhibited,
			model.StatusPendingDelete, model.StatusPendingTransfer); err != nil {
			return err
		}
		if !sameDate(d.ExpirationTime, cmd.CurrentExpiration) {
			return errs.ErrExpirationDateMismatch.About(d.ExpirationTime.Format(time.DateOnly))
		}
		newExpiration := model.LeapSafeAddYears(d.ExpirationTime, cmd.Years)
		if newExpiration.After(model.LeapSafeAddYears(now, model.MaxRegistrationYears)) {
			return errs.ErrExceedsMaxRegistration
		}

		old, err := loadAutorenew(ctx, tx, d)
		if err != nil {
			return err
		}
		fees, err := r.pricing.RenewPrice(tld, d.Name, now, cmd.Years, old, pricing.OfDomain(d))
		if err != nil {
			return err
		}
		if err := validateFees(cmd.Fee, fees); err != nil {
			return err
		}

		hist := newHistory(model.HistoryDomainRenew, d, cmd.Caller, now, cmd.Years,
			record(tld, now.Add(tld.RenewGracePeriod), model.NetRenewsField(cmd.Years), 1))
		charge := model.OneTime{
			ID:           model.NewID(),
			Reason:       model.ReasonRenew,
			TargetID:     d.Name,
			DomainRepoID: d.RepoID,
			RegistrarID:  d.SponsorID,
			Cost:         fees.Total(),
			PeriodYears:  cmd.Years,
			EventTime:    now,
			BillingTime:  now.Add(tld.RenewGracePeriod),
			HistoryID:    hist.ID,
		}
		if err := updateAutorenewRecurrenceEndTime(ctx, tx, d, now, hist.ID); err != nil {
			return err
		}
		rec, poll := newAutorenew(d, d.SponsorID, newExpiration, old.RenewalPrice, hist.ID)

		nd := d.With(
			model.WithExpiration(newExpiration),
			model.WithAutorenew(rec.ID, poll.ID),
			model.WithLastUpdate(now),
			model.AddGracePeriod(model.GracePeriod{
				Type:           model.GraceRenew,
				ExpirationTime: charge.BillingTime,
				RegistrarID:    d.SponsorID,
				BillingEvent:   charge.EntityKey(),
			}),
		)
		hist.Snapshot = nd

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, charge, rec, poll); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = RenewResult{Domain: nd, Fees: fees}
		res.domain, res.historyID = nd.Name, hist.ID
		return nil
	})
	if err != nil {
		return RenewResult{}, err
	}
	return out, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
