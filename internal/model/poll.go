package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// PollKind distinguishes ad-hoc notices from autorenew subscriptions.
type PollKind string

const (
	PollOneTime   PollKind = "ONE_TIME"
	PollAutorenew PollKind = "AUTORENEW"
)

// Poll message texts.
const (
	MsgAutorenew              = "Domain was auto-renewed."
	MsgTransferRequested      = "Transfer requested."
	MsgTransferServerApproved = "Transfer server approved."
	MsgTransferApproved       = "Transfer approved."
	MsgTransferRejected       = "Transfer rejected."
	MsgTransferCancelled      = "Transfer cancelled."
	MsgDomainDeleted          = "Domain deleted."
)

// TransferResponse is the transfer-status payload carried by transfer poll messages.
type TransferResponse struct {
	DomainName                string         `json:"domain_name"`
	Status                    TransferStatus `json:"status"`
	GainingRegistrarID        string         `json:"gaining_registrar_id"`
	LosingRegistrarID         string         `json:"losing_registrar_id"`
	RequestTime               time.Time      `json:"request_time"`
	PendingExpirationTime     time.Time      `json:"pending_expiration_time"`
	TransferredExpirationTime time.Time      `json:"transferred_expiration_time"`
}

// PollMessage is a notification addressed to one registrar. It becomes visible once EventTime <= now.
type PollMessage struct {
	ID           uuid.UUID
	Kind         PollKind
	RegistrarID  string
	DomainRepoID string
	TargetID     string
	EventTime    time.Time
	Message      string
	HistoryID    uuid.UUID

	// Response is set on ONE_TIME transfer notices.
	Response *TransferResponse
	// AutorenewEndTime bounds AUTORENEW messages.
	AutorenewEndTime time.Time
}

func (p PollMessage) EntityKey() Key {
	if p.Kind == PollAutorenew {
		return Key{Kind: KindPollAutorenew, ID: p.ID}
	}
	return Key{Kind: KindPollOneTime, ID: p.ID}
}

// VisibleAt reports EventTime <= now.
func (p PollMessage) VisibleAt(now time.Time) bool { return !p.EventTime.After(now) }

// WithAutorenewEndTime returns a copy ending at t.
func (p PollMessage) WithAutorenewEndTime(t time.Time) PollMessage {
	p.AutorenewEndTime = t
	return p
}

// WithEventTime returns a copy dated at t.
func (p PollMessage) WithEventTime(t time.Time) PollMessage {
	p.EventTime = t
	return p
}

// Exhausted reports that an autorenew message has nothing left to deliver.
func (p PollMessage) Exhausted() bool {
	return p.Kind == PollAutorenew && !p.EventTime.Before(p.AutorenewEndTime)
}

// NewAutorenewPoll builds the recurring "auto-renewed" notice for a domain's sponsor.
func NewAutorenewPoll(id uuid.UUID, d Domain, registrarID string, eventTime, end time.Time, historyID uuid.UUID) PollMessage {
	return PollMessage{
		ID:               id,
		Kind:             PollAutorenew,
		RegistrarID:      registrarID,
		DomainRepoID:     d.RepoID,
		TargetID:         d.Name,
		EventTime:        eventTime,
		Message:          MsgAutorenew,
		HistoryID:        historyID,
		AutorenewEndTime: end,
	}
}

// NewOneTimePoll builds an ad-hoc notice.
func NewOneTimePoll(d Domain, registrarID string, eventTime time.Time, msg string, resp *TransferResponse, historyID uuid.UUID) PollMessage {
	return PollMessage{
		ID:           NewID(),
		Kind:         PollOneTime,
		RegistrarID:  registrarID,
		DomainRepoID: d.RepoID,
		TargetID:     d.Name,
		EventTime:    eventTime,
		Message:      msg,
		HistoryID:    historyID,
		Response:     resp,
	}
}
