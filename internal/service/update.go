package service

import (
	"context"
	"fmt"

	pkgcrypto "github.com/and161185/tld-registry/internal/crypto"
	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

// UpdateCommand changes statuses, hosts, registrant or auth code of a domain.
type UpdateCommand struct {
	Caller         Caller
	Name           string
	AddStatuses    []model.StatusValue
	RemoveStatuses []model.StatusValue
	AddHosts       []string
	RemoveHosts    []string
	RegistrantID   *string
	AuthCode       *string
	// SuspendAutorenew stops (true) or resumes (false) autorenewal. Superuser only.
	SuspendAutorenew *bool
	// RequestedByRegistrar marks a superuser change made on the sponsor's behalf; such changes
	// to charged statuses are billed.
	RequestedByRegistrar bool
}

// UpdateResult is the updated domain and what it cost.
type UpdateResult struct {
	Domain model.Domain
	Fees   model.Fees
}

// UpdateDomain applies cmd to cmd.Name.
func (r *Registry) UpdateDomain(ctx context.Context, tld model.Tld, cmd UpdateCommand) (UpdateResult, error) {
	if err := checkStatusChanges(cmd); err != nil {
		return UpdateResult{}, err
	}
	if cmd.SuspendAutorenew != nil && !cmd.Caller.Superuser {
		return UpdateResult{}, errs.ErrSuperuserOnly
	}
	var auth *model.AuthInfo
	if cmd.AuthCode != nil {
		salt, hash, err := pkgcrypto.HashAuthCode(*cmd.AuthCode)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("hash auth code: %w", err)
		}
		auth = &model.AuthInfo{Salt: salt, Hash: hash}
	}

	var out UpdateResult
	_, err := r.run(ctx, "update", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		d, err := loadDomain(ctx, tx, tld, cmd.Name)
		if err != nil {
			return err
		}
		if err := verifyOwner(cmd.Caller, d); err != nil {
			return err
		}
		if d.Statuses.Has(model.StatusPendingDelete) {
			return errs.ErrPendingDelete.About(d.Name)
		}
		if d.Statuses.Has(model.StatusServerUpdateProhibited) && !cmd.Caller.Superuser {
			return errs.ErrStatusProhibits.About(string(model.StatusServerUpdateProhibited))
		}
		if d.Statuses.Has(model.StatusClientUpdateProhibited) && !removes(cmd.RemoveStatuses, model.StatusClientUpdateProhibited) {
			return errs.ErrStatusProhibits.About(string(model.StatusClientUpdateProhibited))
		}

		fees, err := r.pricing.UpdatePrice(tld, d.Name, now, pricing.OfDomain(d))
		if err != nil {
			return err
		}

		statuses := d.Statuses.With(cmd.AddStatuses...).Without(cmd.RemoveStatuses...)
		hosts := normalizeHosts(append(
			withoutHosts(d.Nameservers, normalizeHosts(cmd.RemoveHosts)), cmd.AddHosts...))
		opts := []model.DomainOption{
			model.WithStatuses(statuses),
			model.WithNameservers(hosts),
			model.WithLastUpdate(now),
		}
		if cmd.RegistrantID != nil {
			opts = append(opts, model.WithRegistrant(*cmd.RegistrantID))
		}
		if auth != nil {
			opts = append(opts, model.WithAuthInfo(*auth))
		}
		if cmd.SuspendAutorenew != nil {
			end := model.EndOfTime
			if *cmd.SuspendAutorenew {
				end = d.ExpirationTime
			}
			opts = append(opts, model.WithAutorenewEndTime(end))
		}
		nd := d.With(opts...)

		hist := newHistory(model.HistoryDomainUpdate, nd, cmd.Caller, now, 0)
		hist.RequestedByRegistrar = cmd.RequestedByRegistrar

		var charges []model.Entity
		if cmd.RequestedByRegistrar && chargedChange(d.Statuses, statuses) {
			cost := tld.ServerStatusCost.At(now)
			if cost.Currency == "" {
				cost = model.Zero(tld.Currency)
			}
			charges = append(charges, model.OneTime{
				ID:           model.NewID(),
				Reason:       model.ReasonServerStatus,
				TargetID:     d.Name,
				DomainRepoID: d.RepoID,
				RegistrarID:  d.SponsorID,
				Cost:         cost,
				EventTime:    now,
				BillingTime:  now,
				HistoryID:    hist.ID,
			})
		}

		if err := tx.UpdateDomain(ctx, nd); err != nil {
			return err
		}
		if err := putAll(ctx, tx, res, charges...); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		nd.Version++
		out = UpdateResult{Domain: nd, Fees: fees}
		res.domain, res.historyID, res.refresh = nd.Name, hist.ID, true
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return out, nil
}

func checkStatusChanges(cmd UpdateCommand) error {
	for _, s := range append(append([]model.StatusValue(nil), cmd.AddStatuses...), cmd.RemoveStatuses...) {
		switch {
		case !s.Known():
			return errs.ErrInvalidStatus.About(string(s))
		case s.ClientSettable():
		case cmd.Caller.Superuser && (s.Charged() || s == model.StatusServerHold):
		default:
			return errs.ErrStatusNotSettable.About(string(s))
		}
	}
	return nil
}

func chargedChange(before, after model.StatusSet) bool {
	for _, s := range before.SymmetricDifference(after) {
		if s.Charged() {
			return true
		}
	}
	return false
}

func removes(list []model.StatusValue, s model.StatusValue) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func withoutHosts(hosts, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, h := range remove {
		drop[h] = true
	}
	var out []string
	for _, h := range hosts {
		if !drop[h] {
			out = append(out, h)
		}
	}
	return out
}
