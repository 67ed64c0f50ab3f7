package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// DeleteCommand deletes a domain.
type DeleteCommand struct {
	Caller Caller
	Name   string
}

// DeleteResult reports whether the name was released at once (deleted inside its add grace period)
// or entered redemption, and when it stops existing.
type DeleteResult struct {
	Immediate    bool
	DeletionTime time.Time
	Domain       model.Domain
}

// DeleteDomain deletes cmd.Name. Charges still inside a grace period are refunded.
func (r *Registry) DeleteDomain(ctx context.Context, tld model.Tld, cmd DeleteCommand) (DeleteResult, error) {
	var out DeleteResult
	_, err := r.run(ctx, "delete", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if err := verifyOwner(cmd.Caller, d); err != nil {
			return err
		}
		if d.Statuses.Has(model.StatusPendingDelete) {
			return errs.ErrPendingDelete.About(d.Name)
		}
		if err := verifyNoStatus(d, model.StatusClientDeleteProhibited, model.StatusServerDeleteProhibited,
			model.StatusPendingTransfer); err != nil {
			return err
		}

		histID := model.NewID()
		cancellations, err := refundGracePeriods(ctx, tx, tld, d, now, histID)
		if err != nil {
			return err
		}
		if err := updateAutorenewRecurrenceEndTime(ctx, tx, d, now, histID); err != nil {
			return err
		}

		var (
			nd      model.Domain
			field   model.ReportField
			written []model.Entity
		)
		if d.HasGracePeriod(model.GraceAdd) {
			field = model.FieldDeletedGrace
			nd = d.With(
				model.WithDeletionTime(now),
				model.WithGracePeriods(),
				model.WithLastUpdate(now),
			)
		} else {
			field = model.FieldDeletedNoGrace
			redemptionEnd := now.Add(tld.RedemptionGracePeriod)
			deletion := redemptionEnd.Add(tld.PendingDeletePeriod)
			poll := model.NewOneTimePoll(d, d.SponsorID, deletion, model.MsgDomainDeleted, nil, histID)
			written = append(written, poll)
			nd = d.With(
				model.WithStatuses(d.Statuses.With(model.StatusPendingDelete)),
				model.WithDeletionTime(deletion),
				model.WithDeletePollMessage(poll.ID),
				model.WithGracePeriods(model.GracePeriod{
					Type:           model.GraceRedemption,
					ExpirationTime: redemptionEnd,
					RegistrarID:    d.SponsorID,
				}),
				model.WithLastUpdate(now),
			)
		}
		for _, c := range cancellations {
			written = append(written, c)
		}

		hist := newHistory(model.HistoryDomainDelete, nd, cmd.Caller, now, 0, record(tld, now, field, 1))
		hist.ID = histID

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, written...); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = DeleteResult{Immediate: field == model.FieldDeletedGrace, DeletionTime: nd.DeletionTime, Domain: nd}
		res.domain, res.historyID, res.refresh = nd.Name, histID, true
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return out, nil
}

// refundGracePeriods cancels every charge still protected by an active grace period of d.
func refundGracePeriods(ctx context.Context, tx repository.Tx, tld model.Tld, d model.Domain, now time.Time, histID uuid.UUID) ([]model.Cancellation, error) {
	var out []model.Cancellation
	for _, gp := range d.GracePeriods {
		if !gp.HasBillingEvent() || !gp.ActiveAt(now) {
			continue
		}
		cost := model.Zero(tld.Currency)
		if gp.BillingEvent.Kind == model.KindOneTime {
			charge, err := tx.OneTime(ctx, gp.BillingEvent.ID)
			switch {
			case errors.Is(err, errs.ErrNotFound):
				continue
			case err != nil:
				return nil, fmt.Errorf("load charge %s: %w", gp.BillingEvent.ID, err)
			}
			cost = charge.Cost
		}
		out = append(out, model.CancellationForGracePeriod(gp, now, d, cost, histID))
	}
	return out, nil
}
