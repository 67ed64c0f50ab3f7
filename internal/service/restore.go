package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

// RestoreCommand brings a domain in redemption back to life.
type RestoreCommand struct {
	Caller Caller
	Name   string
	Fee    *FeeAck
}

// RestoreResult is the restored domain and what it cost.
type RestoreResult struct {
	Domain model.Domain
	Fees   model.Fees
}

// RestoreDomain restores cmd.Name while its redemption grace period is active. An already expired
// registration is renewed for one year and billed for it.
func (r *Registry) RestoreDomain(ctx context.Context, tld model.Tld, cmd RestoreCommand) (RestoreResult, error) {
	var out RestoreResult
	_, err := r.run(ctx, "restore", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if err := verifyOwner(cmd.Caller, d); err != nil {
			return err
		}
		if err := verifyNoStatus(d, model.StatusClientUpdateProhibited, model.StatusServerUpdateProhibited); err != nil {
			return err
		}
		if !d.Statuses.Has(model.StatusPendingDelete) || !d.HasGracePeriod(model.GraceRedemption) {
			return errs.ErrNotInRedemption.About(d.Name)
		}

		old, err := loadAutorenew(ctx, tx, d)
		if err != nil {
			return err
		}
		expired := model.IsBeforeOrAt(d.ExpirationTime, now)
		fees, err := r.pricing.RestorePrice(tld, d.Name, now, expired, old, pricing.OfDomain(d))
		if err != nil {
			return err
		}
		if err := validateFees(cmd.Fee, fees); err != nil {
			return err
		}
		newExpiration := d.ExpirationTime
		if expired {
			newExpiration = model.LeapSafeAddYears(now, 1)
		}

		hist := newHistory(model.HistoryDomainRestore, d, cmd.Caller, now, 0,
			record(tld, now, model.FieldRestoredDomains, 1))
		charges := []model.Entity{chargeFor(model.ReasonRestore, d, fees.CostOf(model.FeeRestore), 0, now, hist)}
		if expired {
			charges = append(charges, chargeFor(model.ReasonRenew, d, fees.CostOf(model.FeeRenew), 1, now, hist))
		}

		rec, poll := newAutorenew(d, d.SponsorID, newExpiration, old.RenewalPrice, hist.ID)

		if d.DeletePollMessage != uuid.Nil {
			if err := tx.Delete(ctx, model.Key{Kind: model.KindPollOneTime, ID: d.DeletePollMessage}); err != nil {
				return err
			}
		}
		nd := d.With(
			model.WithStatuses(d.Statuses.Without(model.StatusPendingDelete)),
			model.WithGracePeriods(),
			model.WithDeletionTime(model.EndOfTime),
			model.WithDeletePollMessage(uuid.Nil),
			model.WithExpiration(newExpiration),
			model.WithAutorenew(rec.ID, poll.ID),
			model.WithAutorenewEndTime(model.EndOfTime),
			model.WithLastUpdate(now),
		)
		hist.Snapshot = nd

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, append(charges, rec, poll)...); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = RestoreResult{Domain: nd, Fees: fees}
		res.domain, res.historyID, res.refresh = nd.Name, hist.ID, true
		return nil
	})
	if err != nil {
		return RestoreResult{}, err
	}
	return out, nil
}

// chargeFor is a one-time charge that is final immediately.
func chargeFor(reason model.BillingReason, d model.Domain, cost model.Money, years int, now time.Time, hist model.HistoryEntry) model.OneTime {
	return model.OneTime{
		ID:           model.NewID(),
		Reason:       reason,
		TargetID:     d.Name,
		DomainRepoID: d.RepoID,
		RegistrarID:  d.SponsorID,
		Cost:         cost,
		PeriodYears:  years,
		EventTime:    now,
		BillingTime:  now,
		HistoryID:    hist.ID,
	}
}
