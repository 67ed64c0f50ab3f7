package repository

import (
	"context"

	"github.com/and161185/tld-registry/internal/model"
)

// RegistrarRepository stores registrar accounts.
type RegistrarRepository interface {
	// Create inserts a new registrar. Returns errs.ErrAlreadyExists on a taken ID.
	Create(ctx context.Context, r *model.Registrar) error
	// GetByID loads a registrar by ID.
	GetByID(ctx context.Context, id string) (*model.Registrar, error)
}
