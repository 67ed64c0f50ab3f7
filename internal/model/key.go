// Package model defines the registry's immutable domain entities and the pure
// computations over them (projection to a point in time, leap-safe date math, money).
package model

import "github.com/gofrs/uuid/v5"

// EntityKind names the table-level kind of a keyed entity.
type EntityKind string

const (
	KindOneTime       EntityKind = "BILLING_ONE_TIME"
	KindRecurring     EntityKind = "BILLING_RECURRING"
	KindCancellation  EntityKind = "BILLING_CANCELLATION"
	KindPollOneTime   EntityKind = "POLL_ONE_TIME"
	KindPollAutorenew EntityKind = "POLL_AUTORENEW"
)

// Key addresses a billing event or poll message.
type Key struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// IsZero reports whether the key references nothing.
func (k Key) IsZero() bool { return k.ID == uuid.Nil }

// Entity is anything a transaction can put or delete by key.
type Entity interface {
	EntityKey() Key
}

// NewID returns a fresh random identifier.
func NewID() uuid.UUID { return uuid.Must(uuid.NewV4()) }
