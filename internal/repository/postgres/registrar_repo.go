package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
)

// RegistrarRepo implements RegistrarRepository using PostgreSQL.
type RegistrarRepo struct{ db *DB }

// NewRegistrarRepo constructs a registrar repository.
func NewRegistrarRepo(db *DB) *RegistrarRepo { return &RegistrarRepo{db: db} }

// Create inserts a new registrar row.
func (r *RegistrarRepo) Create(ctx context.Context, reg *model.Registrar) error {
	const q = `
INSERT INTO registrars (id, pwd_hash, salt_auth, superuser, allowed_tlds)
VALUES ($1, $2, $3, $4, $5)`
	tlds := reg.AllowedTLDs
	if tlds == nil {
		tlds = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, q, reg.ID, reg.PwdHash, reg.SaltAuth, reg.Superuser, tlds)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a registrar by ID.
func (r *RegistrarRepo) GetByID(ctx context.Context, id string) (*model.Registrar, error) {
	const q = `
SELECT id, pwd_hash, salt_auth, superuser, allowed_tlds, created_at
FROM registrars WHERE id=$1`
	var reg model.Registrar
	err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&reg.ID, &reg.PwdHash, &reg.SaltAuth, &reg.Superuser, &reg.AllowedTLDs, &reg.CreatedAt)
	switch {
	case err == nil:
		return &reg, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, errs.ErrNotFound
	default:
		return nil, err
	}
}
