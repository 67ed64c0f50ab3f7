package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/metrics"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

var txTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, *metrics.Metrics) {
	t.Helper()
	db, mock := newDB(t)
	m := metrics.New(prometheus.NewRegistry())
	s := NewStore(db, zap.NewNop(), m)
	s.clock = func() time.Time { return txTime }
	s.backoff = time.Millisecond
	return s, mock, m
}

func domainDoc(t *testing.T, d model.Domain) []byte {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return b
}

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

func TestStore_RunInTx_CommitsAndFixesNow(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	d := model.Domain{RepoID: "1-TLD", Name: "ex.tld", TLD: "tld", SponsorID: "R1"}

	mock.ExpectBeginTx(serializable)
	mock.ExpectQuery(`SELECT doc, version FROM domains`).
		WithArgs("ex.tld").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "version"}).AddRow(domainDoc(t, d), int64(4)))
	mock.ExpectCommit()

	var got model.Domain
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.Equal(t, txTime, tx.Now())
		var err error
		got, err = tx.DomainByName(ctx, "ex.tld")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "R1", got.SponsorID)
	require.Equal(t, int64(4), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_RollsBackOnError(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	boom := errors.New("boom")

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(context.Context, repository.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_RetriesSerializationFailure(t *testing.T) {
	s, mock, m := newStore(t)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit()

	calls := 0
	err := s.RunInTx(context.Background(), func(context.Context, repository.Tx) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1.0, testutil.ToFloat64(m.TxRetries))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_GivesUpAfterMaxAttempts(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	s.maxAttempts = 2

	for i := 0; i < 2; i++ {
		mock.ExpectBeginTx(serializable)
		mock.ExpectRollback()
	}
	err := s.RunInTx(context.Background(), func(context.Context, repository.Tx) error {
		return errs.ErrVersionConflict
	})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_UpdateDomain_VersionConflict(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	d := model.Domain{RepoID: "1-TLD", Name: "ex.tld", Version: 2}

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec(`UPDATE domains SET doc`).
		WithArgs("1-TLD", pgxmock.AnyArg(), pgxmock.AnyArg(), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	s.maxAttempts = 1
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateDomain(ctx, d)
	})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_InsertDomain_Duplicate(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec(`INSERT INTO domains`).
		WithArgs("1-TLD", "ex.tld", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertDomain(ctx, model.Domain{RepoID: "1-TLD", Name: "ex.tld"})
	})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_OneTime_ParsesAmount(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())
	hist := uuid.Must(uuid.NewV4())
	cols := []string{"id", "reason", "target_id", "domain_repo_id", "registrar_id", "currency", "amount",
		"period_years", "event_time", "billing_time", "allocation_token", "history_id"}

	mock.ExpectBeginTx(serializable)
	mock.ExpectQuery(`FROM billing_one_time WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, model.ReasonCreate, "ex.tld", "1-TLD", "R1", "USD", "26.00",
			2, txTime, txTime.Add(5*24*time.Hour), "", hist))
	mock.ExpectQuery(`FROM billing_one_time WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.OneTime(ctx, id)
		require.NoError(t, err)
		require.True(t, e.Cost.Equal(model.MustMoney("USD", "26")))
		require.Equal(t, 2, e.PeriodYears)
		require.Equal(t, hist, e.HistoryID)

		_, err = tx.OneTime(ctx, id)
		require.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_Recurring_RenewalPrice(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())
	cols := []string{"id", "target_id", "domain_repo_id", "registrar_id", "event_time", "recurrence_end_time",
		"renewal_behavior", "renewal_currency", "renewal_amount", "history_id"}
	usd, amt := "USD", "3.50"

	mock.ExpectBeginTx(serializable)
	mock.ExpectQuery(`FROM billing_recurring WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, "ex.tld", "1-TLD", "R1", txTime, txTime.AddDate(10, 0, 0),
			model.RenewalSpecified, &usd, &amt, uuid.Nil))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Recurring(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.RenewalSpecified, e.Behavior())
		require.True(t, model.SpecifiedPrice(e.RenewalPrice).Equal(model.MustMoney("USD", "3.5")))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_Delete_GroupsByTable(t *testing.T) {
	s, mock, _ := newStore(t)
	defer mock.Close()
	a, b, c := model.NewID(), model.NewID(), model.NewID()

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec(`DELETE FROM billing_one_time WHERE id = ANY`).
		WithArgs([]uuid.UUID{a}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM poll_messages WHERE id = ANY`).
		WithArgs([]uuid.UUID{b, c}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Delete(ctx,
			model.Key{Kind: model.KindOneTime, ID: a},
			model.Key{Kind: model.KindPollOneTime, ID: b},
			model.Key{Kind: model.KindPollAutorenew, ID: c})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenewalColumns(t *testing.T) {
	b, cur, amt := renewalColumns(nil)
	require.Equal(t, model.RenewalDefault, b)
	require.Nil(t, cur)
	require.Nil(t, amt)

	b, cur, amt = renewalColumns(model.SpecifiedRenewal{Price: model.MustMoney("USD", "7")})
	require.Equal(t, model.RenewalSpecified, b)
	require.Equal(t, "USD", *cur)
	require.Equal(t, "7", *amt)
}
