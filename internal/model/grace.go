package model

import "time"

// GracePeriodType is the kind of refund window attached to a domain.
type GracePeriodType string

const (
	GraceAdd           GracePeriodType = "ADD"
	GraceRenew         GracePeriodType = "RENEW"
	GraceAutoRenew     GracePeriodType = "AUTO_RENEW"
	GraceTransfer      GracePeriodType = "TRANSFER"
	GraceRedemption    GracePeriodType = "REDEMPTION"
	GracePendingDelete GracePeriodType = "PENDING_DELETE"
)

// GracePeriod is a window during which the referenced charge can still be cancelled.
type GracePeriod struct {
	Type           GracePeriodType `json:"type"`
	ExpirationTime time.Time       `json:"expiration_time"`
	RegistrarID    string          `json:"registrar_id"`
	// BillingEvent is a OneTime for ADD/RENEW/TRANSFER, a Recurring for AUTO_RENEW, zero otherwise.
	BillingEvent Key `json:"billing_event"`
}

// ActiveAt reports now < expiration.
func (g GracePeriod) ActiveAt(now time.Time) bool { return now.Before(g.ExpirationTime) }

// HasBillingEvent reports whether a refundable charge is attached.
func (g GracePeriod) HasBillingEvent() bool { return !g.BillingEvent.IsZero() }

// CancellationReason maps the grace type to the billing reason of the charge it protects.
func (g GracePeriod) CancellationReason() BillingReason {
	switch g.Type {
	case GraceAdd:
		return ReasonCreate
	case GraceTransfer:
		return ReasonTransfer
	default:
		return ReasonRenew
	}
}
