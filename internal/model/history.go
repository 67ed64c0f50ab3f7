package model

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// HistoryType names the mutation recorded by a history entry.
type HistoryType string

const (
	HistoryDomainCreate          HistoryType = "DOMAIN_CREATE"
	HistoryDomainRenew           HistoryType = "DOMAIN_RENEW"
	HistoryDomainUpdate          HistoryType = "DOMAIN_UPDATE"
	HistoryDomainDelete          HistoryType = "DOMAIN_DELETE"
	HistoryDomainRestore         HistoryType = "DOMAIN_RESTORE"
	HistoryDomainTransferRequest HistoryType = "DOMAIN_TRANSFER_REQUEST"
	HistoryDomainTransferApprove HistoryType = "DOMAIN_TRANSFER_APPROVE"
	HistoryDomainTransferReject  HistoryType = "DOMAIN_TRANSFER_REJECT"
	HistoryDomainTransferCancel  HistoryType = "DOMAIN_TRANSFER_CANCEL"
)

// ReportField is a registry activity reporting counter.
type ReportField string

const (
	FieldTransferSuccessful ReportField = "TRANSFER_SUCCESSFUL"
	FieldTransferNacked     ReportField = "TRANSFER_NACKED"
	FieldRestoredDomains    ReportField = "RESTORED_DOMAINS"
	FieldDeletedGrace       ReportField = "DELETED_DOMAINS_GRACE"
	FieldDeletedNoGrace     ReportField = "DELETED_DOMAINS_NOGRACE"
)

// NetAddsField is NET_ADDS_<n>_YR.
func NetAddsField(years int) ReportField { return ReportField(fmt.Sprintf("NET_ADDS_%d_YR", years)) }

// NetRenewsField is NET_RENEWS_<n>_YR.
func NetRenewsField(years int) ReportField {
	return ReportField(fmt.Sprintf("NET_RENEWS_%d_YR", years))
}

// TransactionRecord is a reporting delta attached to a history entry.
type TransactionRecord struct {
	TLD           string      `json:"tld"`
	ReportingTime time.Time   `json:"reporting_time"`
	Field         ReportField `json:"field"`
	Amount        int         `json:"amount"`
}

// HistoryEntry is the immutable audit record written once per mutation.
type HistoryEntry struct {
	ID                   uuid.UUID
	Type                 HistoryType
	ModificationTime     time.Time
	RegistrarID          string
	DomainRepoID         string
	PeriodYears          int
	Reason               string
	RequestedByRegistrar bool
	Snapshot             Domain
	TransactionRecords   []TransactionRecord
}
