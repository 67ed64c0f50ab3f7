// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tld-registry/internal/model"
)

// Tx is one atomic unit of registry work. Everything written through a Tx commits together or not
// at all, and Now is fixed for the lifetime of the transaction.
type Tx interface {
	// Now is the transaction time, read once when the transaction began.
	Now() time.Time

	// DomainByName loads the most recently created domain with the given name, deleted or not.
	DomainByName(ctx context.Context, name string) (model.Domain, error)
	// Domain loads a domain by repo id.
	Domain(ctx context.Context, repoID string) (model.Domain, error)
	// InsertDomain stores a new domain at version 1.
	InsertDomain(ctx context.Context, d model.Domain) error
	// UpdateDomain replaces a domain whose stored version equals d.Version and bumps the version.
	// Returns errs.ErrVersionConflict otherwise.
	UpdateDomain(ctx context.Context, d model.Domain) error

	OneTime(ctx context.Context, id uuid.UUID) (model.OneTime, error)
	Recurring(ctx context.Context, id uuid.UUID) (model.Recurring, error)
	PollMessage(ctx context.Context, id uuid.UUID) (model.PollMessage, error)

	// Put inserts or replaces billing events and poll messages.
	Put(ctx context.Context, entities ...model.Entity) error
	// Delete removes billing events and poll messages. Missing keys are ignored.
	Delete(ctx context.Context, keys ...model.Key) error

	InsertHistory(ctx context.Context, h model.HistoryEntry) error
	// History lists a domain's history entries by modification time.
	History(ctx context.Context, repoID string) ([]model.HistoryEntry, error)
	// Ledger lists every billing event of a domain.
	Ledger(ctx context.Context, repoID string) (Ledger, error)

	// PollQueue lists messages for a registrar visible at now, oldest first.
	PollQueue(ctx context.Context, registrarID string, now time.Time) ([]model.PollMessage, error)

	Token(ctx context.Context, code string) (model.AllocationToken, error)
	PutToken(ctx context.Context, t model.AllocationToken) error
}

// Transactor runs functions inside store transactions. Implementations may run fn more than once
// when the store detects a conflict, so fn must not have side effects outside tx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Ledger is the billing record of one domain.
type Ledger struct {
	OneTimes      []model.OneTime
	Recurrings    []model.Recurring
	Cancellations []model.Cancellation
}
