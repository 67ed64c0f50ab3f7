package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TransferStatus is the state of a domain's transfer protocol.
type TransferStatus string

const (
	TransferNone            TransferStatus = "NONE"
	TransferPending         TransferStatus = "PENDING"
	TransferClientApproved  TransferStatus = "CLIENT_APPROVED"
	TransferClientRejected  TransferStatus = "CLIENT_REJECTED"
	TransferClientCancelled TransferStatus = "CLIENT_CANCELLED"
	TransferServerApproved  TransferStatus = "SERVER_APPROVED"
)

// TransferData is the current (or last resolved) transfer of a domain.
//
// While PENDING, ServerApproveEntities lists the speculative bundle: every billing event and poll
// message written at request time and dated at PendingExpirationTime or later.
type TransferData struct {
	Status                TransferStatus `json:"status"`
	GainingRegistrarID    string         `json:"gaining_registrar_id,omitempty"`
	LosingRegistrarID     string         `json:"losing_registrar_id,omitempty"`
	RequestTime           time.Time      `json:"request_time"`
	PendingExpirationTime time.Time      `json:"pending_expiration_time"`
	PeriodYears           int            `json:"period_years"`
	AllocationToken       string         `json:"allocation_token,omitempty"`
	// TokenRedemption is the request history entry that consumed a single-use AllocationToken.
	TokenRedemption uuid.UUID `json:"token_redemption"`

	TransferredExpirationTime         time.Time `json:"transferred_expiration_time"`
	ServerApproveEntities             []Key     `json:"server_approve_entities,omitempty"`
	ServerApproveBillingEvent         Key       `json:"server_approve_billing_event"`
	ServerApproveAutorenewEvent       Key       `json:"server_approve_autorenew_event"`
	ServerApproveAutorenewPollMessage Key       `json:"server_approve_autorenew_poll_message"`
}

// NoTransfer is the transfer data of a domain that was never transferred.
func NoTransfer() TransferData { return TransferData{Status: TransferNone} }

// Pending reports whether a transfer is awaiting resolution.
func (t TransferData) Pending() bool { return t.Status == TransferPending }

// Clone deep-copies the bundle key slice.
func (t TransferData) Clone() TransferData {
	t.ServerApproveEntities = append([]Key(nil), t.ServerApproveEntities...)
	return t
}

// Resolved returns the data with a terminal status, the resolution time as pending expiration,
// and the speculative bundle references cleared.
func (t TransferData) Resolved(status TransferStatus, at time.Time) TransferData {
	out := t.Clone()
	out.Status = status
	out.PendingExpirationTime = at
	out.ServerApproveEntities = nil
	out.ServerApproveBillingEvent = Key{}
	out.ServerApproveAutorenewEvent = Key{}
	out.ServerApproveAutorenewPollMessage = Key{}
	return out
}
