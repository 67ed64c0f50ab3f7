// Package memory is an in-process store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// Store keeps every entity in maps guarded by one mutex. Transactions are fully serialized and
// work on a copy of the maps that replaces the live state on commit.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time
	data  state

	registrars map[string]model.Registrar
}

type state struct {
	domains       map[string]model.Domain
	oneTimes      map[uuid.UUID]model.OneTime
	recurrings    map[uuid.UUID]model.Recurring
	cancellations map[uuid.UUID]model.Cancellation
	polls         map[uuid.UUID]model.PollMessage
	history       map[string][]model.HistoryEntry
	tokens        map[string]model.AllocationToken
}

var (
	_ repository.Transactor          = (*Store)(nil)
	_ repository.RegistrarRepository = (*Store)(nil)
)

// New returns an empty store. A nil clock means time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		clock: clock,
		data: state{
			domains:       map[string]model.Domain{},
			oneTimes:      map[uuid.UUID]model.OneTime{},
			recurrings:    map[uuid.UUID]model.Recurring{},
			cancellations: map[uuid.UUID]model.Cancellation{},
			polls:         map[uuid.UUID]model.PollMessage{},
			history:       map[string][]model.HistoryEntry{},
			tokens:        map[string]model.AllocationToken{},
		},
		registrars: map[string]model.Registrar{},
	}
}

func (s state) clone() state {
	out := state{
		domains:       make(map[string]model.Domain, len(s.domains)),
		oneTimes:      make(map[uuid.UUID]model.OneTime, len(s.oneTimes)),
		recurrings:    make(map[uuid.UUID]model.Recurring, len(s.recurrings)),
		cancellations: make(map[uuid.UUID]model.Cancellation, len(s.cancellations)),
		polls:         make(map[uuid.UUID]model.PollMessage, len(s.polls)),
		history:       make(map[string][]model.HistoryEntry, len(s.history)),
		tokens:        make(map[string]model.AllocationToken, len(s.tokens)),
	}
	for k, v := range s.domains {
		out.domains[k] = v
	}
	for k, v := range s.oneTimes {
		out.oneTimes[k] = v
	}
	for k, v := range s.recurrings {
		out.recurrings[k] = v
	}
	for k, v := range s.cancellations {
		out.cancellations[k] = v
	}
	for k, v := range s.polls {
		out.polls[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]model.HistoryEntry(nil), v...)
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	return out
}

// RunInTx runs fn against a private copy of the store and publishes it if fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{now: s.clock().UTC(), st: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.st
	return nil
}

// Create inserts a registrar account.
func (s *Store) Create(_ context.Context, r *model.Registrar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrars[r.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cp := *r
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.clock().UTC()
	}
	s.registrars[r.ID] = cp
	return nil
}

// GetByID loads a registrar account.
func (s *Store) GetByID(_ context.Context, id string) (*model.Registrar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrars[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &r, nil
}

type memTx struct {
	now time.Time
	st  state
}

func (t *memTx) Now() time.Time { return t.now }

func (t *memTx) DomainByName(_ context.Context, name string) (model.Domain, error) {
	var (
		found model.Domain
		ok    bool
	)
	for _, d := range t.st.domains {
		if d.Name != name {
			continue
		}
		if !ok || d.CreationTime.After(found.CreationTime) {
			found, ok = d, true
		}
	}
	if !ok {
		return model.Domain{}, errs.ErrNotFound
	}
	return found.Clone(), nil
}

func (t *memTx) Domain(_ context.Context, repoID string) (model.Domain, error) {
	d, ok := t.st.domains[repoID]
	if !ok {
		return model.Domain{}, errs.ErrNotFound
	}
	return d.Clone(), nil
}

func (t *memTx) InsertDomain(_ context.Context, d model.Domain) error {
	if _, ok := t.st.domains[d.RepoID]; ok {
		return errs.ErrAlreadyExists
	}
	d = d.Clone()
	d.Version = 1
	t.st.domains[d.RepoID] = d
	return nil
}

func (t *memTx) UpdateDomain(_ context.Context, d model.Domain) error {
	cur, ok := t.st.domains[d.RepoID]
	if !ok {
		return errs.ErrNotFound
	}
	if cur.Version != d.Version {
		return fmt.Errorf("domain %s: %w", d.Name, errs.ErrVersionConflict)
	}
	d = d.Clone()
	d.Version++
	t.st.domains[d.RepoID] = d
	return nil
}

func (t *memTx) OneTime(_ context.Context, id uuid.UUID) (model.OneTime, error) {
	e, ok := t.st.oneTimes[id]
	if !ok {
		return model.OneTime{}, errs.ErrNotFound
	}
	return e, nil
}

func (t *memTx) Recurring(_ context.Context, id uuid.UUID) (model.Recurring, error) {
	e, ok := t.st.recurrings[id]
	if !ok {
		return model.Recurring{}, errs.ErrNotFound
	}
	return e, nil
}

func (t *memTx) PollMessage(_ context.Context, id uuid.UUID) (model.PollMessage, error) {
	p, ok := t.st.polls[id]
	if !ok {
		return model.PollMessage{}, errs.ErrNotFound
	}
	return p, nil
}

func (t *memTx) Put(_ context.Context, entities ...model.Entity) error {
	for _, e := range entities {
		switch v := e.(type) {
		case model.OneTime:
			t.st.oneTimes[v.ID] = v
		case model.Recurring:
			t.st.recurrings[v.ID] = v
		case model.Cancellation:
			t.st.cancellations[v.ID] = v
		case model.PollMessage:
			t.st.polls[v.ID] = v
		default:
			return fmt.Errorf("put: unsupported entity %T", e)
		}
	}
	return nil
}

func (t *memTx) Delete(_ context.Context, keys ...model.Key) error {
	for _, k := range keys {
		switch k.Kind {
		case model.KindOneTime:
			delete(t.st.oneTimes, k.ID)
		case model.KindRecurring:
			delete(t.st.recurrings, k.ID)
		case model.KindCancellation:
			delete(t.st.cancellations, k.ID)
		case model.KindPollOneTime, model.KindPollAutorenew:
			delete(t.st.polls, k.ID)
		default:
			return fmt.Errorf("delete: unsupported kind %q", k.Kind)
		}
	}
	return nil
}

func (t *memTx) InsertHistory(_ context.Context, h model.HistoryEntry) error {
	h.Snapshot = h.Snapshot.Clone()
	t.st.history[h.DomainRepoID] = append(t.st.history[h.DomainRepoID], h)
	return nil
}

func (t *memTx) History(_ context.Context, repoID string) ([]model.HistoryEntry, error) {
	out := append([]model.HistoryEntry(nil), t.st.history[repoID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModificationTime.Before(out[j].ModificationTime) })
	return out, nil
}

func (t *memTx) Ledger(_ context.Context, repoID string) (repository.Ledger, error) {
	var l repository.Ledger
	for _, e := range t.st.oneTimes {
		if e.DomainRepoID == repoID {
			l.OneTimes = append(l.OneTimes, e)
		}
	}
	for _, e := range t.st.recurrings {
		if e.DomainRepoID == repoID {
			l.Recurrings = append(l.Recurrings, e)
		}
	}
	for _, e := range t.st.cancellations {
		if e.DomainRepoID == repoID {
			l.Cancellations = append(l.Cancellations, e)
		}
	}
	sort.Slice(l.OneTimes, func(i, j int) bool { return l.OneTimes[i].EventTime.Before(l.OneTimes[j].EventTime) })
	sort.Slice(l.Recurrings, func(i, j int) bool { return l.Recurrings[i].EventTime.Before(l.Recurrings[j].EventTime) })
	sort.Slice(l.Cancellations, func(i, j int) bool {
		return l.Cancellations[i].EventTime.Before(l.Cancellations[j].EventTime)
	})
	return l, nil
}

func (t *memTx) PollQueue(_ context.Context, registrarID string, now time.Time) ([]model.PollMessage, error) {
	var out []model.PollMessage
	for _, p := range t.st.polls {
		if p.RegistrarID == registrarID && p.VisibleAt(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out, nil
}

func (t *memTx) Token(_ context.Context, code string) (model.AllocationToken, error) {
	tok, ok := t.st.tokens[code]
	if !ok {
		return model.AllocationToken{}, errs.ErrNotFound
	}
	return tok, nil
}

func (t *memTx) PutToken(_ context.Context, tok model.AllocationToken) error {
	t.st.tokens[tok.Code] = tok
	return nil
}
