package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// BillingReason is why a charge was made.
type BillingReason string

const (
	ReasonCreate       BillingReason = "CREATE"
	ReasonRenew        BillingReason = "RENEW"
	ReasonRestore      BillingReason = "RESTORE"
	ReasonTransfer     BillingReason = "TRANSFER"
	ReasonServerStatus BillingReason = "SERVER_STATUS"
)

// OneTime is a single charge.
type OneTime struct {
	ID              uuid.UUID
	Reason          BillingReason
	TargetID        string // fully qualified domain name
	DomainRepoID    string
	RegistrarID     string
	Cost            Money
	PeriodYears     int
	EventTime       time.Time
	BillingTime     time.Time
	AllocationToken string
	HistoryID       uuid.UUID
}

func (e OneTime) EntityKey() Key { return Key{Kind: KindOneTime, ID: e.ID} }

// Recurring is an open-ended yearly autorenew charge, billed from EventTime until RecurrenceEndTime.
type Recurring struct {
	ID                uuid.UUID
	TargetID          string
	DomainRepoID      string
	RegistrarID       string
	EventTime         time.Time
	RecurrenceEndTime time.Time
	RenewalPrice      RenewalPrice
	HistoryID         uuid.UUID
}

func (e Recurring) EntityKey() Key { return Key{Kind: KindRecurring, ID: e.ID} }

// Behavior returns the renewal price behavior, DEFAULT when unset.
func (e Recurring) Behavior() RenewalPriceBehavior {
	if e.RenewalPrice == nil {
		return RenewalDefault
	}
	return e.RenewalPrice.Behavior()
}

// WithRecurrenceEndTime returns a copy ending at t.
func (e Recurring) WithRecurrenceEndTime(t time.Time) Recurring {
	e.RecurrenceEndTime = t
	return e
}

// Cancellation offsets a OneTime or Recurring charge still inside its grace window.
type Cancellation struct {
	ID           uuid.UUID
	Reason       BillingReason
	TargetID     string
	DomainRepoID string
	RegistrarID  string
	EventTime    time.Time
	BillingTime  time.Time
	// Cancelled is the OneTime or Recurring being offset.
	Cancelled Key
	// Cost mirrors the cancelled OneTime's cost; zero for recurring charges, which are priced on export.
	Cost      Money
	HistoryID uuid.UUID
}

func (e Cancellation) EntityKey() Key { return Key{Kind: KindCancellation, ID: e.ID} }

// CancellationForGracePeriod builds the refund of the charge protected by gp. The charge becomes
// final at the grace period's expiration, which is therefore the billing time.
func CancellationForGracePeriod(gp GracePeriod, eventTime time.Time, d Domain, cost Money, historyID uuid.UUID) Cancellation {
	return Cancellation{
		ID:           NewID(),
		Reason:       gp.CancellationReason(),
		TargetID:     d.Name,
		DomainRepoID: d.RepoID,
		RegistrarID:  gp.RegistrarID,
		EventTime:    eventTime,
		BillingTime:  gp.ExpirationTime,
		Cancelled:    gp.BillingEvent,
		Cost:         cost,
		HistoryID:    historyID,
	}
}
