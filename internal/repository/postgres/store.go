package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/metrics"
	"github.com/and161185/tld-registry/internal/repository"
)

const defaultMaxAttempts = 5

// Store implements repository.Transactor over serializable Postgres transactions.
type Store struct {
	db          *DB
	log         *zap.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
	maxAttempts int
	backoff     time.Duration
}

var _ repository.Transactor = (*Store)(nil)

// NewStore constructs a store. log and m may be nil.
func NewStore(db *DB, log *zap.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:          db,
		log:         log,
		metrics:     m,
		clock:       time.Now,
		maxAttempts: defaultMaxAttempts,
		backoff:     20 * time.Millisecond,
	}
}

// RunInTx runs fn in a serializable transaction. Version conflicts, serialization failures and
// deadlocks roll back and rerun fn from scratch.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !retryable(err) || attempt >= s.maxAttempts {
			return err
		}
		s.metrics.IncrementTxRetries()
		s.log.Warn("transaction retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, errs.ErrVersionConflict) || isSerializationFailure(err)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()
	return fn(ctx, &pgTx{tx: tx, now: s.clock().UTC()})
}
