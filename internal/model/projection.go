package model

import "time"

// ProjectedAt returns the domain as it stands at now, resolving every time-driven transition
// without side effects: automatic transfer approval, autorenewal, the redemption to pending-delete
// hand-off, and expiry of grace periods.
func (d Domain) ProjectedAt(now time.Time, tld Tld) Domain {
	out := d.Clone()
	if out.Transfer.Pending() && IsBeforeOrAt(out.Transfer.PendingExpirationTime, now) {
		out = out.serverApproved(tld)
	}
	out = out.autorenewedAt(now, tld)
	out = out.pendingDeleteAt(now)

	kept := out.GracePeriods[:0]
	for _, gp := range out.GracePeriods {
		if gp.ActiveAt(now) {
			kept = append(kept, gp)
		}
	}
	out.GracePeriods = kept
	return out
}

func (d Domain) serverApproved(tld Tld) Domain {
	td := d.Transfer
	at := td.PendingExpirationTime
	var gps []GracePeriod
	if td.PeriodYears != 0 {
		gps = []GracePeriod{{
			Type:           GraceTransfer,
			ExpirationTime: at.Add(tld.TransferGracePeriod),
			RegistrarID:    td.GainingRegistrarID,
			BillingEvent:   td.ServerApproveBillingEvent,
		}}
	}
	return d.With(
		WithSponsor(td.GainingRegistrarID),
		WithExpiration(td.TransferredExpirationTime),
		WithGracePeriods(gps...),
		WithAutorenew(td.ServerApproveAutorenewEvent.ID, td.ServerApproveAutorenewPollMessage.ID),
		WithStatuses(d.Statuses.Without(StatusPendingTransfer)),
		WithTransfer(td.Resolved(TransferServerApproved, at)),
		WithLastTransfer(at),
		WithLastUpdate(latest(d.LastUpdateTime, at)),
	)
}

func (d Domain) autorenewedAt(now time.Time, tld Tld) Domain {
	exp := d.ExpirationTime
	if now.Before(exp) || d.Statuses.Has(StatusPendingDelete) || !d.AutorenewEndTime.After(exp) {
		return d
	}
	newExp, lastAutorenew := exp, exp
	for IsBeforeOrAt(newExp, now) && d.AutorenewEndTime.After(newExp) {
		lastAutorenew = newExp
		newExp = LeapSafeAddYears(newExp, 1)
	}
	return d.With(
		WithExpiration(newExp),
		AddGracePeriod(GracePeriod{
			Type:           GraceAutoRenew,
			ExpirationTime: lastAutorenew.Add(tld.AutoRenewGracePeriod),
			RegistrarID:    d.SponsorID,
			BillingEvent:   d.AutorenewKey(),
		}),
	)
}

func (d Domain) pendingDeleteAt(now time.Time) Domain {
	if !d.Statuses.Has(StatusPendingDelete) || d.HasGracePeriod(GracePendingDelete) {
		return d
	}
	if rgp, ok := d.GracePeriodOf(GraceRedemption); ok && rgp.ActiveAt(now) {
		return d
	}
	return d.With(AddGracePeriod(GracePeriod{
		Type:           GracePendingDelete,
		ExpirationTime: d.DeletionTime,
		RegistrarID:    d.SponsorID,
	}))
}

// ExpirationForApprovalTime computes the registration expiration after a transfer resolved at
// approvalTime. d must already be projected to approvalTime. An autorenew grace period at that time
// is subsumed by the transfer year unless the transfer period is zero.
func (d Domain) ExpirationForApprovalTime(approvalTime time.Time, periodYears int) time.Time {
	base := d.ExpirationTime
	if periodYears != 0 && d.HasGracePeriod(GraceAutoRenew) {
		base = LeapSafeSubtractYears(base, 1)
	}
	return ExtendRegistrationWithCap(approvalTime, base, periodYears)
}
