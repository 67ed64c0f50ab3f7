package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ContactRef links a contact to a domain in a role (admin, tech, billing).
type ContactRef struct {
	Type      string `json:"type"`
	ContactID string `json:"contact_id"`
}

// Domain is a registered name. Values are treated as immutable: every change goes through With,
// which returns a deep copy.
type Domain struct {
	RepoID       string        `json:"repo_id"`
	Name         string        `json:"name"`
	TLD          string        `json:"tld"`
	Statuses     StatusSet     `json:"statuses"`
	RegistrantID string        `json:"registrant_id,omitempty"`
	Contacts     []ContactRef  `json:"contacts,omitempty"`
	Nameservers  []string      `json:"nameservers,omitempty"`
	SponsorID    string        `json:"sponsor_id"`
	CreatorID    string        `json:"creator_id"`
	AuthInfo     AuthInfo      `json:"auth_info"`
	GracePeriods []GracePeriod `json:"grace_periods,omitempty"`
	Transfer     TransferData  `json:"transfer"`

	CreationTime     time.Time `json:"creation_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
	LastTransferTime time.Time `json:"last_transfer_time"`
	ExpirationTime   time.Time `json:"expiration_time"`
	DeletionTime     time.Time `json:"deletion_time"`
	AutorenewEndTime time.Time `json:"autorenew_end_time"`

	AutorenewBillingEvent uuid.UUID `json:"autorenew_billing_event"`
	AutorenewPollMessage  uuid.UUID `json:"autorenew_poll_message"`
	DeletePollMessage     uuid.UUID `json:"delete_poll_message"`

	// Version is the optimistic-concurrency counter maintained by the store.
	Version int64 `json:"version"`
}

// AuthInfo is the hashed transfer authorization code.
type AuthInfo struct {
	Salt []byte `json:"salt,omitempty"`
	Hash []byte `json:"hash,omitempty"`
}

// Clone returns a deep copy.
func (d Domain) Clone() Domain {
	d.Statuses = append(StatusSet(nil), d.Statuses...)
	d.Contacts = append([]ContactRef(nil), d.Contacts...)
	d.Nameservers = append([]string(nil), d.Nameservers...)
	d.GracePeriods = append([]GracePeriod(nil), d.GracePeriods...)
	d.AuthInfo = AuthInfo{
		Salt: append([]byte(nil), d.AuthInfo.Salt...),
		Hash: append([]byte(nil), d.AuthInfo.Hash...),
	}
	d.Transfer = d.Transfer.Clone()
	return d
}

// DomainOption mutates the private copy made by With.
type DomainOption func(*Domain)

// With returns a copy of d with opts applied. With() with no options yields a value equal to d.
func (d Domain) With(opts ...DomainOption) Domain {
	out := d.Clone()
	for _, o := range opts {
		o(&out)
	}
	return out
}

func WithStatuses(s StatusSet) DomainOption { return func(d *Domain) { d.Statuses = s } }

func WithSponsor(id string) DomainOption { return func(d *Domain) { d.SponsorID = id } }

func WithExpiration(t time.Time) DomainOption { return func(d *Domain) { d.ExpirationTime = t } }

func WithDeletionTime(t time.Time) DomainOption { return func(d *Domain) { d.DeletionTime = t } }

func WithAutorenewEndTime(t time.Time) DomainOption {
	return func(d *Domain) { d.AutorenewEndTime = t }
}

func WithLastUpdate(t time.Time) DomainOption { return func(d *Domain) { d.LastUpdateTime = t } }

func WithLastTransfer(t time.Time) DomainOption { return func(d *Domain) { d.LastTransferTime = t } }

func WithTransfer(t TransferData) DomainOption { return func(d *Domain) { d.Transfer = t.Clone() } }

func WithNameservers(ns []string) DomainOption {
	return func(d *Domain) { d.Nameservers = append([]string(nil), ns...) }
}

func WithRegistrant(id string) DomainOption { return func(d *Domain) { d.RegistrantID = id } }

func WithAuthInfo(a AuthInfo) DomainOption { return func(d *Domain) { d.AuthInfo = a } }

func WithDeletePollMessage(id uuid.UUID) DomainOption {
	return func(d *Domain) { d.DeletePollMessage = id }
}

// WithAutorenew points the domain at its current autorenew recurring event and poll message.
func WithAutorenew(recurring, poll uuid.UUID) DomainOption {
	return func(d *Domain) {
		d.AutorenewBillingEvent = recurring
		d.AutorenewPollMessage = poll
	}
}

// WithGracePeriods replaces the grace period set.
func WithGracePeriods(gps ...GracePeriod) DomainOption {
	return func(d *Domain) { d.GracePeriods = append([]GracePeriod(nil), gps...) }
}

// AddGracePeriod appends one grace period.
func AddGracePeriod(gp GracePeriod) DomainOption {
	return func(d *Domain) { d.GracePeriods = append(d.GracePeriods, gp) }
}

// GracePeriodOf returns the first grace period of type t.
func (d Domain) GracePeriodOf(t GracePeriodType) (GracePeriod, bool) {
	for _, gp := range d.GracePeriods {
		if gp.Type == t {
			return gp, true
		}
	}
	return GracePeriod{}, false
}

// HasGracePeriod reports whether a grace period of type t is attached.
func (d Domain) HasGracePeriod(t GracePeriodType) bool {
	_, ok := d.GracePeriodOf(t)
	return ok
}

// DeletedAt reports whether the domain no longer exists at now.
func (d Domain) DeletedAt(now time.Time) bool { return !now.Before(d.DeletionTime) }

// AutorenewKey is the key of the current autorenew recurring event.
func (d Domain) AutorenewKey() Key { return Key{Kind: KindRecurring, ID: d.AutorenewBillingEvent} }
