package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const insertRegistrar = `INSERT INTO registrars \(id, pwd_hash, salt_auth, superuser, allowed_tlds\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`

func TestRegistrarRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRegistrarRepo(db)
	ctx := context.Background()
	reg := &model.Registrar{ID: "TheRegistrar", PwdHash: []byte("h"), SaltAuth: []byte("s")}

	mock.ExpectExec(insertRegistrar).
		WithArgs("TheRegistrar", []byte("h"), []byte("s"), false, []string{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, reg))

	mock.ExpectExec(insertRegistrar).
		WithArgs("TheRegistrar", []byte("h"), []byte("s"), false, []string{}).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, reg), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrarRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRegistrarRepo(db)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const sel = `SELECT id, pwd_hash, salt_auth, superuser, allowed_tlds, created_at FROM registrars WHERE id=\$1`

	mock.ExpectQuery(sel).
		WithArgs("R1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "pwd_hash", "salt_auth", "superuser", "allowed_tlds", "created_at"}).
			AddRow("R1", []byte("h"), []byte("s"), true, []string{"tld"}, created))
	got, err := r.GetByID(ctx, "R1")
	require.NoError(t, err)
	require.True(t, got.Superuser)
	require.Equal(t, []string{"tld"}, got.AllowedTLDs)
	require.Equal(t, created, got.CreatedAt)

	mock.ExpectQuery(sel).WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(sel).WithArgs("R1").WillReturnError(errors.New("conn reset"))
	_, err = r.GetByID(ctx, "R1")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
