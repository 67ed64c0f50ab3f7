package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// pgTx implements repository.Tx. Domain reads lock their row until commit.
type pgTx struct {
	tx  pgx.Tx
	now time.Time
}

var _ repository.Tx = (*pgTx)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func (t *pgTx) Now() time.Time { return t.now }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

func scanDomain(row scanner) (model.Domain, error) {
	var (
		doc     []byte
		version int64
		d       model.Domain
	)
	if err := row.Scan(&doc, &version); err != nil {
		return model.Domain{}, notFound(err)
	}
	if err := json.Unmarshal(doc, &d); err != nil {
		return model.Domain{}, fmt.Errorf("decode domain: %w", err)
	}
	d.Version = version
	return d, nil
}

func (t *pgTx) DomainByName(ctx context.Context, name string) (model.Domain, error) {
	const q = `
SELECT doc, version FROM domains
WHERE name=$1
ORDER BY creation_time DESC
LIMIT 1
FOR UPDATE`
	return scanDomain(t.tx.QueryRow(ctx, q, name))
}

func (t *pgTx) Domain(ctx context.Context, repoID string) (model.Domain, error) {
	const q = `SELECT doc, version FROM domains WHERE repo_id=$1 FOR UPDATE`
	return scanDomain(t.tx.QueryRow(ctx, q, repoID))
}

func (t *pgTx) InsertDomain(ctx context.Context, d model.Domain) error {
	d.Version = 1
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode domain: %w", err)
	}
	const q = `
INSERT INTO domains (repo_id, name, tld, creation_time, deletion_time, doc, version)
VALUES ($1,$2,$3,$4,$5,$6,1)`
	_, err = t.tx.Exec(ctx, q, d.RepoID, d.Name, d.TLD, d.CreationTime, d.DeletionTime, doc)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func (t *pgTx) UpdateDomain(ctx context.Context, d model.Domain) error {
	base := d.Version
	d.Version++
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode domain: %w", err)
	}
	const q = `
UPDATE domains SET doc=$2, deletion_time=$3, version=version+1
WHERE repo_id=$1 AND version=$4`
	tag, err := t.tx.Exec(ctx, q, d.RepoID, doc, d.DeletionTime, base)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domain %s: %w", d.Name, errs.ErrVersionConflict)
	}
	return nil
}

// --- billing events ---

const oneTimeCols = `id, reason, target_id, domain_repo_id, registrar_id, currency, amount::text, period_years,
event_time, billing_time, allocation_token, history_id`

func scanOneTime(row scanner) (model.OneTime, error) {
	var (
		e           model.OneTime
		cur, amount string
	)
	err := row.Scan(&e.ID, &e.Reason, &e.TargetID, &e.DomainRepoID, &e.RegistrarID, &cur, &amount, &e.PeriodYears,
		&e.EventTime, &e.BillingTime, &e.AllocationToken, &e.HistoryID)
	if err != nil {
		return model.OneTime{}, notFound(err)
	}
	if e.Cost, err = model.NewMoney(cur, amount); err != nil {
		return model.OneTime{}, fmt.Errorf("one-time %s cost: %w", e.ID, err)
	}
	return e, nil
}

const recurringCols = `id, target_id, domain_repo_id, registrar_id, event_time, recurrence_end_time,
renewal_behavior, renewal_currency, renewal_amount::text, history_id`

func scanRecurring(row scanner) (model.Recurring, error) {
	var (
		e        model.Recurring
		behavior model.RenewalPriceBehavior
		cur, amt *string
	)
	err := row.Scan(&e.ID, &e.TargetID, &e.DomainRepoID, &e.RegistrarID, &e.EventTime, &e.RecurrenceEndTime,
		&behavior, &cur, &amt, &e.HistoryID)
	if err != nil {
		return model.Recurring{}, notFound(err)
	}
	if e.RenewalPrice, err = renewalPriceOf(behavior, cur, amt); err != nil {
		return model.Recurring{}, fmt.Errorf("recurring %s: %w", e.ID, err)
	}
	return e, nil
}

func renewalPriceOf(b model.RenewalPriceBehavior, cur, amount *string) (model.RenewalPrice, error) {
	var price *model.Money
	if cur != nil && amount != nil {
		m, err := model.NewMoney(*cur, *amount)
		if err != nil {
			return nil, err
		}
		price = &m
	}
	return model.RenewalPriceOf(b, price)
}

// renewalColumns splits a renewal price into behavior, currency and amount columns.
func renewalColumns(r model.RenewalPrice) (model.RenewalPriceBehavior, *string, *string) {
	if r == nil {
		return model.RenewalDefault, nil, nil
	}
	p := model.SpecifiedPrice(r)
	if p == nil {
		return r.Behavior(), nil, nil
	}
	amount := p.Amount.String()
	return r.Behavior(), &p.Currency, &amount
}

const cancellationCols = `id, reason, target_id, domain_repo_id, registrar_id, event_time, billing_time,
cancelled_kind, cancelled_id, currency, amount::text, history_id`

func scanCancellation(row scanner) (model.Cancellation, error) {
	var (
		e           model.Cancellation
		cur, amount string
	)
	err := row.Scan(&e.ID, &e.Reason, &e.TargetID, &e.DomainRepoID, &e.RegistrarID, &e.EventTime, &e.BillingTime,
		&e.Cancelled.Kind, &e.Cancelled.ID, &cur, &amount, &e.HistoryID)
	if err != nil {
		return model.Cancellation{}, notFound(err)
	}
	if e.Cost, err = model.NewMoney(cur, amount); err != nil {
		return model.Cancellation{}, fmt.Errorf("cancellation %s cost: %w", e.ID, err)
	}
	return e, nil
}

func (t *pgTx) OneTime(ctx context.Context, id uuid.UUID) (model.OneTime, error) {
	return scanOneTime(t.tx.QueryRow(ctx, `SELECT `+oneTimeCols+` FROM billing_one_time WHERE id=$1`, id))
}

func (t *pgTx) Recurring(ctx context.Context, id uuid.UUID) (model.Recurring, error) {
	return scanRecurring(t.tx.QueryRow(ctx, `SELECT `+recurringCols+` FROM billing_recurring WHERE id=$1`, id))
}

// --- poll messages ---

const pollCols = `id, kind, registrar_id, domain_repo_id, target_id, event_time, message, history_id, response,
autorenew_end_time`

func scanPoll(row scanner) (model.PollMessage, error) {
	var (
		p    model.PollMessage
		resp []byte
	)
	err := row.Scan(&p.ID, &p.Kind, &p.RegistrarID, &p.DomainRepoID, &p.TargetID, &p.EventTime, &p.Message,
		&p.HistoryID, &resp, &p.AutorenewEndTime)
	if err != nil {
		return model.PollMessage{}, notFound(err)
	}
	if len(resp) > 0 {
		p.Response = &model.TransferResponse{}
		if err := json.Unmarshal(resp, p.Response); err != nil {
			return model.PollMessage{}, fmt.Errorf("decode poll %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func (t *pgTx) PollMessage(ctx context.Context, id uuid.UUID) (model.PollMessage, error) {
	return scanPoll(t.tx.QueryRow(ctx, `SELECT `+pollCols+` FROM poll_messages WHERE id=$1`, id))
}

func (t *pgTx) PollQueue(ctx context.Context, registrarID string, now time.Time) ([]model.PollMessage, error) {
	q := `SELECT ` + pollCols + ` FROM poll_messages
WHERE registrar_id=$1 AND event_time <= $2
ORDER BY event_time ASC, id ASC`
	rows, err := t.tx.Query(ctx, q, registrarID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PollMessage
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- writes ---

func (t *pgTx) Put(ctx context.Context, entities ...model.Entity) error {
	for _, e := range entities {
		var err error
		switch v := e.(type) {
		case model.OneTime:
			err = t.putOneTime(ctx, v)
		case model.Recurring:
			err = t.putRecurring(ctx, v)
		case model.Cancellation:
			err = t.putCancellation(ctx, v)
		case model.PollMessage:
			err = t.putPoll(ctx, v)
		default:
			err = fmt.Errorf("put: unsupported entity %T", e)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) putOneTime(ctx context.Context, e model.OneTime) error {
	const q = `
INSERT INTO billing_one_time (id, reason, target_id, domain_repo_id, registrar_id, currency, amount, period_years,
  event_time, billing_time, allocation_token, history_id)
VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  reason=EXCLUDED.reason, registrar_id=EXCLUDED.registrar_id, currency=EXCLUDED.currency, amount=EXCLUDED.amount,
  period_years=EXCLUDED.period_years, event_time=EXCLUDED.event_time, billing_time=EXCLUDED.billing_time,
  allocation_token=EXCLUDED.allocation_token`
	_, err := t.tx.Exec(ctx, q, e.ID, e.Reason, e.TargetID, e.DomainRepoID, e.RegistrarID, e.Cost.Currency,
		e.Cost.Amount.String(), e.PeriodYears, e.EventTime, e.BillingTime, e.AllocationToken, e.HistoryID)
	return err
}

func (t *pgTx) putRecurring(ctx context.Context, e model.Recurring) error {
	behavior, cur, amount := renewalColumns(e.RenewalPrice)
	const q = `
INSERT INTO billing_recurring (id, target_id, domain_repo_id, registrar_id, event_time, recurrence_end_time,
  renewal_behavior, renewal_currency, renewal_amount, history_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10)
ON CONFLICT (id) DO UPDATE SET
  registrar_id=EXCLUDED.registrar_id, event_time=EXCLUDED.event_time,
  recurrence_end_time=EXCLUDED.recurrence_end_time, renewal_behavior=EXCLUDED.renewal_behavior,
  renewal_currency=EXCLUDED.renewal_currency, renewal_amount=EXCLUDED.renewal_amount`
	_, err := t.tx.Exec(ctx, q, e.ID, e.TargetID, e.DomainRepoID, e.RegistrarID, e.EventTime, e.RecurrenceEndTime,
		behavior, cur, amount, e.HistoryID)
	return err
}

func (t *pgTx) putCancellation(ctx context.Context, e model.Cancellation) error {
	const q = `
INSERT INTO billing_cancellation (id, reason, target_id, domain_repo_id, registrar_id, event_time, billing_time,
  cancelled_kind, cancelled_id, currency, amount, history_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::numeric,$12)
ON CONFLICT (id) DO NOTHING`
	_, err := t.tx.Exec(ctx, q, e.ID, e.Reason, e.TargetID, e.DomainRepoID, e.RegistrarID, e.EventTime,
		e.BillingTime, e.Cancelled.Kind, e.Cancelled.ID, e.Cost.Currency, e.Cost.Amount.String(), e.HistoryID)
	return err
}

func (t *pgTx) putPoll(ctx context.Context, p model.PollMessage) error {
	var resp []byte
	if p.Response != nil {
		var err error
		if resp, err = json.Marshal(p.Response); err != nil {
			return fmt.Errorf("encode poll %s: %w", p.ID, err)
		}
	}
	const q = `
INSERT INTO poll_messages (id, kind, registrar_id, domain_repo_id, target_id, event_time, message, history_id,
  response, autorenew_end_time)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  event_time=EXCLUDED.event_time, message=EXCLUDED.message, response=EXCLUDED.response,
  autorenew_end_time=EXCLUDED.autorenew_end_time`
	_, err := t.tx.Exec(ctx, q, p.ID, p.Kind, p.RegistrarID, p.DomainRepoID, p.TargetID, p.EventTime, p.Message,
		p.HistoryID, resp, p.AutorenewEndTime)
	return err
}

var tableOf = map[model.EntityKind]string{
	model.KindOneTime:       "billing_one_time",
	model.KindRecurring:     "billing_recurring",
	model.KindCancellation:  "billing_cancellation",
	model.KindPollOneTime:   "poll_messages",
	model.KindPollAutorenew: "poll_messages",
}

func (t *pgTx) Delete(ctx context.Context, keys ...model.Key) error {
	byTable := map[string][]uuid.UUID{}
	var order []string
	for _, k := range keys {
		table, ok := tableOf[k.Kind]
		if !ok {
			return fmt.Errorf("delete: unsupported kind %q", k.Kind)
		}
		if _, seen := byTable[table]; !seen {
			order = append(order, table)
		}
		byTable[table] = append(byTable[table], k.ID)
	}
	for _, table := range order {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = ANY($1)`, byTable[table]); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

// --- history and ledger ---

func (t *pgTx) InsertHistory(ctx context.Context, h model.HistoryEntry) error {
	doc, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const q = `
INSERT INTO history_entries (id, domain_repo_id, type, modification_time, registrar_id, doc)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = t.tx.Exec(ctx, q, h.ID, h.DomainRepoID, h.Type, h.ModificationTime, h.RegistrarID, doc)
	return err
}

func (t *pgTx) History(ctx context.Context, repoID string) ([]model.HistoryEntry, error) {
	const q = `SELECT doc FROM history_entries WHERE domain_repo_id=$1 ORDER BY modification_time ASC, id ASC`
	rows, err := t.tx.Query(ctx, q, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HistoryEntry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var h model.HistoryEntry
		if err := json.Unmarshal(doc, &h); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func queryAll[T any](ctx context.Context, tx pgx.Tx, q string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) Ledger(ctx context.Context, repoID string) (repository.Ledger, error) {
	var (
		l   repository.Ledger
		err error
	)
	if l.OneTimes, err = queryAll(ctx, t.tx,
		`SELECT `+oneTimeCols+` FROM billing_one_time WHERE domain_repo_id=$1 ORDER BY event_time`,
		scanOneTime, repoID); err != nil {
		return repository.Ledger{}, fmt.Errorf("one-time events: %w", err)
	}
	if l.Recurrings, err = queryAll(ctx, t.tx,
		`SELECT `+recurringCols+` FROM billing_recurring WHERE domain_repo_id=$1 ORDER BY event_time`,
		scanRecurring, repoID); err != nil {
		return repository.Ledger{}, fmt.Errorf("recurring events: %w", err)
	}
	if l.Cancellations, err = queryAll(ctx, t.tx,
		`SELECT `+cancellationCols+` FROM billing_cancellation WHERE domain_repo_id=$1 ORDER BY event_time`,
		scanCancellation, repoID); err != nil {
		return repository.Ledger{}, fmt.Errorf("cancellations: %w", err)
	}
	return l, nil
}

// --- allocation tokens ---

func (t *pgTx) Token(ctx context.Context, code string) (model.AllocationToken, error) {
	const q = `
SELECT code, type, discount_fraction, discount_years, allowed_tlds, allowed_registrars, discount_premiums,
  anchor_tenant, renewal_behavior, renewal_currency, renewal_amount::text, redemption_history_id
FROM allocation_tokens WHERE code=$1 FOR UPDATE`
	var (
		tok      model.AllocationToken
		behavior model.RenewalPriceBehavior
		cur, amt *string
	)
	err := t.tx.QueryRow(ctx, q, code).Scan(&tok.Code, &tok.Type, &tok.DiscountFraction, &tok.DiscountYears,
		&tok.AllowedTLDs, &tok.AllowedRegistrars, &tok.DiscountPremiums, &tok.AnchorTenant, &behavior, &cur, &amt,
		&tok.RedemptionHistoryID)
	if err != nil {
		return model.AllocationToken{}, notFound(err)
	}
	if behavior != "" {
		if tok.RenewalPrice, err = renewalPriceOf(behavior, cur, amt); err != nil {
			return model.AllocationToken{}, fmt.Errorf("token %s: %w", code, err)
		}
	}
	return tok, nil
}

func (t *pgTx) PutToken(ctx context.Context, tok model.AllocationToken) error {
	var (
		behavior model.RenewalPriceBehavior
		cur, amt *string
	)
	if tok.RenewalPrice != nil {
		behavior, cur, amt = renewalColumns(tok.RenewalPrice)
	}
	tlds, regs := tok.AllowedTLDs, tok.AllowedRegistrars
	if tlds == nil {
		tlds = []string{}
	}
	if regs == nil {
		regs = []string{}
	}
	const q = `
INSERT INTO allocation_tokens (code, type, discount_fraction, discount_years, allowed_tlds, allowed_registrars,
  discount_premiums, anchor_tenant, renewal_behavior, renewal_currency, renewal_amount, redemption_history_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::numeric,$12)
ON CONFLICT (code) DO UPDATE SET
  type=EXCLUDED.type, discount_fraction=EXCLUDED.discount_fraction, discount_years=EXCLUDED.discount_years,
  allowed_tlds=EXCLUDED.allowed_tlds, allowed_registrars=EXCLUDED.allowed_registrars,
  discount_premiums=EXCLUDED.discount_premiums, anchor_tenant=EXCLUDED.anchor_tenant,
  renewal_behavior=EXCLUDED.renewal_behavior, renewal_currency=EXCLUDED.renewal_currency,
  renewal_amount=EXCLUDED.renewal_amount, redemption_history_id=EXCLUDED.redemption_history_id`
	_, err := t.tx.Exec(ctx, q, tok.Code, tok.Type, tok.DiscountFraction, tok.DiscountYears, tlds, regs,
		tok.DiscountPremiums, tok.AnchorTenant, string(behavior), cur, amt, tok.RedemptionHistoryID)
	return err
}
