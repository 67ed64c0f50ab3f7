package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/tld-registry/internal/crypto"
	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

// TransferRequestCommand is issued by the gaining registrar.
type TransferRequestCommand struct {
	Caller   Caller
	Name     string
	AuthCode string
	// PeriodYears must be 1. A superuser may pass 0 to transfer without extending the registration.
	PeriodYears int
	Token       string
	Fee         *FeeAck
}

// TransferCommand approves, rejects or cancels the pending transfer of Name.
type TransferCommand struct {
	Caller Caller
	Name   string
}

// TransferResult is the transfer state after a transfer command, and what it will cost the gaining
// registrar.
type TransferResult struct {
	Transfer model.TransferData
	Domain   model.Domain
	Fees     model.Fees
}

// transferBundle is every entity a transfer resolution writes, either dated at the automatic
// transfer time (request) or at the explicit approval time (approve).
type transferBundle struct {
	charge       *model.OneTime
	cancellation *model.Cancellation
	autorenew    model.Recurring
	autorenewMsg model.PollMessage
	notices      []model.PollMessage
}

func (b transferBundle) entities() []model.Entity {
	var out []model.Entity
	if b.charge != nil {
		out = append(out, *b.charge)
	}
	if b.cancellation != nil {
		out = append(out, *b.cancellation)
	}
	out = append(out, b.autorenew, b.autorenewMsg)
	for _, n := range b.notices {
		out = append(out, n)
	}
	return out
}

func (b transferBundle) keys() []model.Key {
	var out []model.Key
	for _, e := range b.entities() {
		out = append(out, e.EntityKey())
	}
	return out
}

// buildTransferBundle prices and dates the entities of a transfer resolved at `at`. d must already be
// projected to `at`; an AUTO_RENEW grace period at that time is refunded when a transfer year is
// charged, since the transfer subsumes it.
func buildTransferBundle(tld model.Tld, d model.Domain, gaining string, period int, fees model.Fees,
	newExpiration, at time.Time, renewal model.RenewalPrice, histID uuid.UUID) transferBundle {
	var b transferBundle
	if period != 0 {
		b.charge = &model.OneTime{
			ID:           model.NewID(),
			Reason:       model.ReasonTransfer,
			TargetID:     d.Name,
			DomainRepoID: d.RepoID,
			RegistrarID:  gaining,
			Cost:         fees.Total(),
			PeriodYears:  period,
			EventTime:    at,
			BillingTime:  at.Add(tld.TransferGracePeriod),
			HistoryID:    histID,
		}
		if gp, ok := d.GracePeriodOf(model.GraceAutoRenew); ok && gp.ActiveAt(at) {
			c := model.CancellationForGracePeriod(gp, at, d, model.Zero(tld.Currency), histID)
			b.cancellation = &c
		}
	}
	b.autorenew, b.autorenewMsg = newAutorenew(d, gaining, newExpiration, renewal, histID)
	return b
}

func transferResponse(d model.Domain, td model.TransferData) *model.TransferResponse {
	return &model.TransferResponse{
		DomainName:                d.Name,
		Status:                    td.Status,
		GainingRegistrarID:        td.GainingRegistrarID,
		LosingRegistrarID:         td.LosingRegistrarID,
		RequestTime:               td.RequestTime,
		PendingExpirationTime:     td.PendingExpirationTime,
		TransferredExpirationTime: td.TransferredExpirationTime,
	}
}

// RequestTransfer starts a transfer of cmd.Name to the caller. Everything the transfer will write if
// it is never explicitly resolved is written now, dated at the automatic transfer time.
func (r *Registry) RequestTransfer(ctx context.Context, tld model.Tld, cmd TransferRequestCommand) (TransferResult, error) {
	period := cmd.PeriodYears
	if period != 1 && !(period == 0 && cmd.Caller.Superuser) {
		return TransferResult{}, errs.ErrTransferPeriodOneYear
	}
	if err := checkTLDAccess(cmd.Caller, tld); err != nil {
		return TransferResult{}, err
	}

	var out TransferResult
	_, err := r.run(ctx, "transfer_request", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if !cmd.Caller.Superuser && !pkgcrypto.VerifyAuthCode(cmd.AuthCode, d.AuthInfo.Salt, d.AuthInfo.Hash) {
			return errs.ErrBadAuthInfo.About(d.Name)
		}
		if d.Transfer.Pending() {
			return errs.ErrAlreadyPendingTransfer.About(d.Name)
		}
		if d.SponsorID == cmd.Caller.RegistrarID {
			return errs.ErrAlreadySponsor.About(d.Name)
		}
		if err := verifyNoStatus(d, model.StatusClientTransferProhibited, model.StatusServerTransferProhibited,
			model.StatusPendingDelete); err != nil {
			return err
		}
		token, err := loadToken(ctx, tx, cmd.Token, tld, cmd.Caller.RegistrarID)
		if err != nil {
			return err
		}

		automaticTransferTime := now.Add(tld.AutomaticTransferLength)
		atTransfer := d.ProjectedAt(automaticTransferTime, tld)
		newExpiration := atTransfer.ExpirationForApprovalTime(automaticTransferTime, period)

		old, err := loadAutorenew(ctx, tx, d)
		if err != nil {
			return err
		}
		fees := model.NewFees(tld.Currency)
		if period != 0 {
			if fees, err = r.pricing.TransferPrice(tld, d.Name, now, old, pricing.OfDomain(d)); err != nil {
				return err
			}
			if err := validateFees(cmd.Fee, fees); err != nil {
				return err
			}
		}

		hist := newHistory(model.HistoryDomainTransferRequest, d, cmd.Caller, now, period,
			record(tld, automaticTransferTime.Add(tld.TransferGracePeriod), model.FieldTransferSuccessful, 1))

		b := buildTransferBundle(tld, atTransfer, cmd.Caller.RegistrarID, period, fees, newExpiration,
			automaticTransferTime, old.RenewalPrice, hist.ID)
		if b.charge != nil && token != nil {
			b.charge.AllocationToken = token.Code
		}
		if err := redeemToken(ctx, tx, token, hist.ID); err != nil {
			return err
		}

		td := model.TransferData{
			Status:                    model.TransferPending,
			GainingRegistrarID:        cmd.Caller.RegistrarID,
			LosingRegistrarID:         d.SponsorID,
			RequestTime:               now,
			PendingExpirationTime:     automaticTransferTime,
			PeriodYears:               period,
			AllocationToken:           cmd.Token,
			TransferredExpirationTime: newExpiration,
		}
		if token != nil && token.Type == model.TokenSingleUse {
			td.TokenRedemption = hist.ID
		}
		approved := td
		approved.Status = model.TransferServerApproved
		for _, registrar := range []string{td.GainingRegistrarID, td.LosingRegistrarID} {
			b.notices = append(b.notices, model.NewOneTimePoll(d, registrar, automaticTransferTime,
				model.MsgTransferServerApproved, transferResponse(d, approved), hist.ID))
		}

		td.ServerApproveEntities = b.keys()
		td.ServerApproveAutorenewEvent = b.autorenew.EntityKey()
		td.ServerApproveAutorenewPollMessage = b.autorenewMsg.EntityKey()
		if b.charge != nil {
			td.ServerApproveBillingEvent = b.charge.EntityKey()
		}
		requested := model.NewOneTimePoll(d, td.LosingRegistrarID, now, model.MsgTransferRequested,
			transferResponse(d, td), hist.ID)

		if err := updateAutorenewRecurrenceEndTime(ctx, tx, d, automaticTransferTime, hist.ID); err != nil {
			return err
		}
		nd := d.With(
			model.WithTransfer(td),
			model.WithStatuses(d.Statuses.With(model.StatusPendingTransfer)),
			model.WithLastUpdate(now),
		)
		hist.Snapshot = nd

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, append(b.entities(), requested)...); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = TransferResult{Transfer: td, Domain: nd, Fees: fees}
		res.domain, res.historyID = nd.Name, hist.ID
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// pendingTransfer loads cmd.Name and fails unless a transfer is still pending at transaction time.
// A transfer whose automatic time has passed was already server-approved by projection.
func pendingTransfer(ctx context.Context, tx repository.Tx, tld model.Tld, name string) (model.Domain, error) {
	d, err := loadDomain(ctx, tx, tld, name)
	if err != nil {
		return model.Domain{}, err
	}
	if !d.Transfer.Pending() {
		return model.Domain{}, errs.ErrNotPendingTransfer.About(d.Name)
	}
	return d, nil
}

// ApproveTransfer is issued by the losing registrar. It replaces the speculative entities written at
// request time with ones dated now, in the same transaction that deletes the speculative ones.
func (r *Registry) ApproveTransfer(ctx context.Context, tld model.Tld, cmd TransferCommand) (TransferResult, error) {
	var out TransferResult
	_, err := r.run(ctx, "transfer_approve", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := pendingTransfer(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if err := verifyOwner(cmd.Caller, d); err != nil {
			return err
		}
		td := d.Transfer
		token, err := loadHeldToken(ctx, tx, td.AllocationToken, tld, td.GainingRegistrarID, td.TokenRedemption)
		if err != nil {
			return err
		}

		old, err := loadAutorenew(ctx, tx, d)
		if err != nil {
			return err
		}
		fees := model.NewFees(tld.Currency)
		if td.PeriodYears != 0 {
			if fees, err = r.pricing.TransferPrice(tld, d.Name, td.RequestTime, old, pricing.OfDomain(d)); err != nil {
				return err
			}
		}

		hist := newHistory(model.HistoryDomainTransferApprove, d, cmd.Caller, now, td.PeriodYears,
			record(tld, now.Add(tld.TransferGracePeriod), model.FieldTransferSuccessful, 1))
		newExpiration := d.ExpirationForApprovalTime(now, td.PeriodYears)
		b := buildTransferBundle(tld, d, td.GainingRegistrarID, td.PeriodYears, fees, newExpiration, now,
			old.RenewalPrice, hist.ID)
		if b.charge != nil && token != nil {
			b.charge.AllocationToken = token.Code
		}

		resolved := td.Resolved(model.TransferClientApproved, now)
		resolved.TransferredExpirationTime = newExpiration
		b.notices = append(b.notices, model.NewOneTimePoll(d, td.GainingRegistrarID, now,
			model.MsgTransferApproved, transferResponse(d, resolved), hist.ID))

		if err := updateAutorenewRecurrenceEndTime(ctx, tx, d, now, hist.ID); err != nil {
			return err
		}
		if err := tx.Delete(ctx, td.ServerApproveEntities...); err != nil {
			return err
		}

		var gps []model.GracePeriod
		if b.charge != nil {
			gps = append(gps, model.GracePeriod{
				Type:           model.GraceTransfer,
				ExpirationTime: b.charge.BillingTime,
				RegistrarID:    td.GainingRegistrarID,
				BillingEvent:   b.charge.EntityKey(),
			})
		}
		nd := d.With(
			model.WithSponsor(td.GainingRegistrarID),
			model.WithExpiration(newExpiration),
			model.WithGracePeriods(gps...),
			model.WithAutorenew(b.autorenew.ID, b.autorenewMsg.ID),
			model.WithStatuses(d.Statuses.Without(model.StatusPendingTransfer)),
			model.WithTransfer(resolved),
			model.WithLastTransfer(now),
			model.WithLastUpdate(now),
		)
		hist.Snapshot = nd

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, b.entities()...); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = TransferResult{Transfer: resolved, Domain: nd, Fees: fees}
		res.domain, res.historyID = nd.Name, hist.ID
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// RejectTransfer is issued by the losing registrar.
func (r *Registry) RejectTransfer(ctx context.Context, tld model.Tld, cmd TransferCommand) (TransferResult, error) {
	return r.denyTransfer(ctx, tld, cmd, model.TransferClientRejected)
}

// CancelTransfer is issued by the gaining registrar.
func (r *Registry) CancelTransfer(ctx context.Context, tld model.Tld, cmd TransferCommand) (TransferResult, error) {
	return r.denyTransfer(ctx, tld, cmd, model.TransferClientCancelled)
}

// denyTransfer resolves a pending transfer without moving the domain. The original autorenew is
// reopened and the speculative entities are deleted.
func (r *Registry) denyTransfer(ctx context.Context, tld model.Tld, cmd TransferCommand, status model.TransferStatus) (TransferResult, error) {
	var (
		flow     = "transfer_reject"
		histType = model.HistoryDomainTransferReject
		msg      = model.MsgTransferRejected
	)
	if status == model.TransferClientCancelled {
		flow, histType, msg = "transfer_cancel", model.HistoryDomainTransferCancel, model.MsgTransferCancelled
	}

	var out TransferResult
	_, err := r.run(ctx, flow, cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := pendingTransfer(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		td := d.Transfer
		notify := td.GainingRegistrarID
		var records []model.TransactionRecord
		if status == model.TransferClientCancelled {
			if !cmd.Caller.Superuser && cmd.Caller.RegistrarID != td.GainingRegistrarID {
				return errs.ErrNotTransferInitiator.About(d.Name)
			}
			notify = td.LosingRegistrarID
		} else {
			if err := verifyOwner(cmd.Caller, d); err != nil {
				return err
			}
			records = append(records, record(tld, now, model.FieldTransferNacked, 1))
		}

		hist := newHistory(histType, d, cmd.Caller, now, 0, records...)
		resolved := td.Resolved(status, now)
		resolved.TokenRedemption = uuid.Nil
		notice := model.NewOneTimePoll(d, notify, now, msg, transferResponse(d, resolved), hist.ID)

		if err := updateAutorenewRecurrenceEndTime(ctx, tx, d, model.EndOfTime, hist.ID); err != nil {
			return err
		}
		if err := tx.Delete(ctx, td.ServerApproveEntities...); err != nil {
			return err
		}
		if err := releaseToken(ctx, tx, td.AllocationToken, td.TokenRedemption); err != nil {
			return err
		}
		nd := d.With(
			model.WithStatuses(d.Statuses.Without(model.StatusPendingTransfer)),
			model.WithTransfer(resolved),
			model.WithLastUpdate(now),
		)
		hist.Snapshot = nd

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, notice); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = TransferResult{Transfer: resolved, Domain: nd}
		res.domain, res.historyID = nd.Name, hist.ID
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// QueryTransfer returns the current (or last resolved) transfer of cmd.Name to either party.
func (r *Registry) QueryTransfer(ctx context.Context, tld model.Tld, cmd TransferCommand) (model.TransferData, error) {
	var out model.TransferData
	_, err := r.run(ctx, "transfer_query", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if d.Transfer.Status == model.TransferNone || d.Transfer.Status == "" {
			return errs.ErrNoTransferPending.About(d.Name)
		}
		c := cmd.Caller
		if !c.Superuser && c.RegistrarID != d.Transfer.GainingRegistrarID && c.RegistrarID != d.Transfer.LosingRegistrarID {
			return errs.ErrNotTransferParty.About(d.Name)
		}
		out = d.Transfer.Clone()
		res.domain = d.Name
		return nil
	})
	return out, err
}
