package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// PollResult is the oldest visible message of a registrar and how many are queued in total.
type PollResult struct {
	Message *model.PollMessage
	Count   int
}

// PollRequest peeks at the caller's queue without consuming it.
func (r *Registry) PollRequest(ctx context.Context, caller Caller) (PollResult, error) {
	var out PollResult
	_, err := r.run(ctx, "poll_request", caller, func(ctx context.Context, tx repository.Tx, _ *flowResult) error {
		q, err := tx.PollQueue(ctx, caller.RegistrarID, tx.Now())
		if err != nil {
			return fmt.Errorf("poll queue: %w", err)
		}
		out = PollResult{Count: len(q)}
		if len(q) > 0 {
			m := q[0]
			out.Message = &m
		}
		return nil
	})
	return out, err
}

// PollAck consumes a visible message. A one-time message is deleted; an autorenew message moves to
// its next yearly occurrence, and is deleted once that would reach its end time. It returns the
// number of messages left in the queue.
func (r *Registry) PollAck(ctx context.Context, caller Caller, id uuid.UUID) (int, error) {
	var left int
	_, err := r.run(ctx, "poll_ack", caller, func(ctx context.Context, tx repository.Tx, _ *flowResult) error {
		now := tx.Now()
		m, err := tx.PollMessage(ctx, id)
		if errors.Is(err, errs.ErrNotFound) || (err == nil && !m.VisibleAt(now)) {
			return errs.ErrPollMessageNotFound.About(id.String())
		}
		if err != nil {
			return fmt.Errorf("load poll message: %w", err)
		}
		if m.RegistrarID != caller.RegistrarID {
			return errs.ErrNotOwner.About(id.String())
		}

		next := m
		if m.Kind == model.PollAutorenew {
			next = m.WithEventTime(model.LeapSafeAddYears(m.EventTime, 1))
		}
		if m.Kind == model.PollOneTime || next.Exhausted() {
			err = tx.Delete(ctx, m.EntityKey())
		} else {
			err = tx.Put(ctx, next)
		}
		if err != nil {
			return err
		}

		q, err := tx.PollQueue(ctx, caller.RegistrarID, now)
		if err != nil {
			return fmt.Errorf("poll queue: %w", err)
		}
		left = len(q)
		return nil
	})
	return left, err
}
