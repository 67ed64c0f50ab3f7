package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	pkgcrypto "github.com/and161185/tld-registry/internal/crypto"
	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// CreateCommand registers a new name.
type CreateCommand struct {
	Caller       Caller
	Name         string
	Years        int
	AuthCode     string // generated when empty
	RegistrantID string
	Contacts     []model.ContactRef
	Nameservers  []string
	Token        string
	Fee          *FeeAck
}

// CreateResult is the created domain, what it cost, and its authorization code.
type CreateResult struct {
	Domain   model.Domain
	Fees     model.Fees
	AuthCode string
}

// CreateDomain registers cmd.Name under tld.
func (r *Registry) CreateDomain(ctx context.Context, tld model.Tld, cmd CreateCommand) (CreateResult, error) {
	if err := validateName(tld, cmd.Name); err != nil {
		return CreateResult{}, err
	}
	if err := checkTLDAccess(cmd.Caller, tld); err != nil {
		return CreateResult{}, err
	}
	if cmd.Years < 1 || cmd.Years > model.MaxRegistrationYears {
		return CreateResult{}, errs.ErrBadPeriod
	}
	code := cmd.AuthCode
	if code == "" {
		var err error
		if code, err = pkgcrypto.GenerateAuthCode(16); err != nil {
			return CreateResult{}, fmt.Errorf("generate auth code: %w", err)
		}
	}
	salt, hash, err := pkgcrypto.HashAuthCode(code)
	if err != nil {
		return CreateResult{}, fmt.Errorf("hash auth code: %w", err)
	}

	var out CreateResult
	_, err = r.run(ctx, "create", cmd.Caller, func(ctx context.Context, tx repository.Tx, res *flowResult) error {
		now := tx.Now()
		existing, err := tx.DomainByName(ctx, cmd.Name)
		switch {
		case err == nil && !existing.DeletedAt(now):
			return errs.ErrDomainExists.About(cmd.Name)
		case err != nil && !errors.Is(err, errs.ErrNotFound):
			return fmt.Errorf("load %s: %w", cmd.Name, err)
		}

		token, err := loadToken(ctx, tx, cmd.Token, tld, cmd.Caller.RegistrarID)
		if err != nil {
			return err
		}
		anchor := token != nil && token.AnchorTenant
		fees, err := r.pricing.CreatePrice(tld, cmd.Name, now, cmd.Years, anchor, token)
		if err != nil {
			return err
		}
		if err := validateFees(cmd.Fee, fees); err != nil {
			return err
		}

		d := model.Domain{
			RepoID:           newRepoID(tld),
			Name:             cmd.Name,
			TLD:              tld.Name,
			Statuses:         model.NewStatusSet(),
			RegistrantID:     cmd.RegistrantID,
			Contacts:         cmd.Contacts,
			Nameservers:      normalizeHosts(cmd.Nameservers),
			SponsorID:        cmd.Caller.RegistrarID,
			CreatorID:        cmd.Caller.RegistrarID,
			AuthInfo:         model.AuthInfo{Salt: salt, Hash: hash},
			Transfer:         model.NoTransfer(),
			CreationTime:     now,
			LastUpdateTime:   now,
			ExpirationTime:   model.LeapSafeAddYears(now, cmd.Years),
			DeletionTime:     model.EndOfTime,
			AutorenewEndTime: model.EndOfTime,
		}

		hist := newHistory(model.HistoryDomainCreate, d, cmd.Caller, now, cmd.Years,
			record(tld, now.Add(tld.AddGracePeriod), model.NetAddsField(cmd.Years), 1))

		charge := model.OneTime{
			ID:              model.NewID(),
			Reason:          model.ReasonCreate,
			TargetID:        d.Name,
			DomainRepoID:    d.RepoID,
			RegistrarID:     d.SponsorID,
			Cost:            fees.Total(),
			PeriodYears:     cmd.Years,
			EventTime:       now,
			BillingTime:     now.Add(tld.AddGracePeriod),
			AllocationToken: cmd.Token,
			HistoryID:       hist.ID,
		}
		rec, poll := newAutorenew(d, d.SponsorID, d.ExpirationTime, createRenewalPrice(token, anchor), hist.ID)

		d = d.With(
			model.WithAutorenew(rec.ID, poll.ID),
			model.WithGracePeriods(model.GracePeriod{
				Type:           model.GraceAdd,
				ExpirationTime: charge.BillingTime,
				RegistrarID:    d.SponsorID,
				BillingEvent:   charge.EntityKey(),
			}),
		)
		hist.Snapshot = d

		if err := tx.InsertDomain(ctx, d); err != nil {
			if errors.Is(err, errs.ErrAlreadyExists) {
				return errs.ErrDomainExists.About(cmd.Name)
			}
			return err
		}
		if err := putAll(ctx, tx, res, charge, rec, poll); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		if err := redeemToken(ctx, tx, token, hist.ID); err != nil {
			return err
		}

		d.Version = 1
		out = CreateResult{Domain: d, Fees: fees, AuthCode: code}
		res.domain, res.historyID, res.refresh = d.Name, hist.ID, len(d.Nameservers) > 0
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	return out, nil
}

func createRenewalPrice(token *model.AllocationToken, anchor bool) model.RenewalPrice {
	switch {
	case anchor:
		return model.NonPremiumRenewal{}
	case token != nil && token.RenewalPrice != nil:
		return token.RenewalPrice
	default:
		return model.DefaultRenewal{}
	}
}

func newRepoID(tld model.Tld) string {
	id := strings.ReplaceAll(model.NewID().String(), "-", "")
	return strings.ToUpper(id[:16]) + "-" + strings.ToUpper(tld.Name)
}

func normalizeHosts(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	var out []string
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
