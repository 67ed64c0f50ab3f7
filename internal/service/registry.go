package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/metrics"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/pricing"
	"github.com/and161185/tld-registry/internal/repository"
)

const tracerName = "github.com/and161185/tld-registry/internal/service"

// DNSQueue accepts names whose zone data must be republished.
type DNSQueue interface {
	Enqueue(ctx context.Context, names ...string) error
}

// Caller is the authenticated registrar issuing a command.
type Caller struct {
	RegistrarID string
	Superuser   bool
	AllowedTLDs []string
}

func (c Caller) allowsTLD(tld string) bool {
	return model.Registrar{Superuser: c.Superuser, AllowedTLDs: c.AllowedTLDs}.AllowsTLD(tld)
}

// FeeAck is the fee a registrar acknowledged in a transform command.
type FeeAck struct {
	Currency string
	Amount   decimal.Decimal
}

// Registry runs domain flows. Each flow is one store transaction; TLD policy is passed per call.
type Registry struct {
	store   repository.Transactor
	pricing *pricing.Engine
	dns     DNSQueue
	metrics *metrics.Metrics
	log     *zap.Logger
	tracer  trace.Tracer
}

// NewRegistry constructs Registry with required dependencies. dns, m and log may be nil.
func NewRegistry(store repository.Transactor, engine *pricing.Engine, dns DNSQueue, m *metrics.Metrics, log *zap.Logger) *Registry {
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:   store,
		pricing: engine,
		dns:     dns,
		metrics: m,
		log:     log,
		tracer:  otel.Tracer(tracerName),
	}
}

// WithTracerProvider makes flows start their spans from tp instead of the global provider.
func (r *Registry) WithTracerProvider(tp trace.TracerProvider) *Registry {
	r.tracer = tp.Tracer(tracerName)
	return r
}

// Pricing exposes the engine for fee checks.
func (r *Registry) Pricing() *pricing.Engine { return r.pricing }

// flowResult is filled inside a transaction and reported once it commits.
type flowResult struct {
	domain    string
	historyID uuid.UUID
	charges   []model.OneTime
	refresh   bool
}

func (r *Registry) run(ctx context.Context, flow string, caller Caller, fn func(ctx context.Context, tx repository.Tx, res *flowResult) error) (flowResult, error) {
	ctx, span := r.tracer.Start(ctx, "registry."+flow, trace.WithAttributes(
		attribute.String("registrar", caller.RegistrarID),
	))
	defer span.End()

	start := time.Now()
	var res flowResult
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res = flowResult{}
		return fn(ctx, tx, &res)
	})
	r.metrics.ObserveFlow(flow, outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return flowResult{}, err
	}
	span.SetAttributes(attribute.String("domain", res.domain))
	if res.historyID != uuid.Nil {
		span.SetAttributes(attribute.String("history_id", res.historyID.String()))
	}

	for _, c := range res.charges {
		amount, _ := c.Cost.Amount.Float64()
		r.metrics.ObserveCharge(string(c.Reason), c.Cost.Currency, amount)
	}
	if res.historyID != uuid.Nil {
		r.log.Info("flow committed",
			zap.String("flow", flow),
			zap.String("domain", res.domain),
			zap.String("registrar", caller.RegistrarID),
			zap.Stringer("history_id", res.historyID),
		)
	}
	if res.refresh && r.dns != nil {
		if err := r.dns.Enqueue(ctx, res.domain); err != nil {
			r.metrics.IncrementDNSEnqueueErrors()
			r.log.Warn("dns enqueue failed", zap.String("domain", res.domain), zap.Error(err))
		}
	}
	return res, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := errs.As(err); ok {
		return fmt.Sprintf("epp_%d", e.Code)
	}
	return "error"
}

var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

func validateName(tld model.Tld, name string) error {
	label := tld.Label(name)
	if label == "" {
		return errs.ErrTLDNotFound.About(name)
	}
	if !labelRe.MatchString(label) || (len(label) >= 4 && label[2:4] == "--" && label[:2] != "xn") {
		return errs.ErrInvalidDomainName.About(name)
	}
	return nil
}

func checkTLDAccess(caller Caller, tld model.Tld) error {
	if !caller.allowsTLD(tld.Name) {
		return errs.ErrNotAuthorizedForTLD.About(tld.Name)
	}
	return nil
}

// loadDomain returns the live domain projected to the transaction time.
func loadDomain(ctx context.Context, tx repository.Tx, tld model.Tld, name string) (model.Domain, error) {
	if err := validateName(tld, name); err != nil {
		return model.Domain{}, err
	}
	d, err := tx.DomainByName(ctx, name)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Domain{}, errs.ErrDomainNotFound.About(name)
	}
	if err != nil {
		return model.Domain{}, fmt.Errorf("load %s: %w", name, err)
	}
	now := tx.Now()
	if d.DeletedAt(now) {
		return model.Domain{}, errs.ErrDomainNotFound.About(name)
	}
	return d.ProjectedAt(now, tld), nil
}

func verifyOwner(caller Caller, d model.Domain) error {
	if caller.Superuser || d.SponsorID == caller.RegistrarID {
		return nil
	}
	return errs.ErrNotOwner.About(d.Name)
}

func verifyNoStatus(d model.Domain, disallowed ...model.StatusValue) error {
	for _, s := range disallowed {
		if d.Statuses.Has(s) {
			return errs.ErrStatusProhibits.About(string(s))
		}
	}
	return nil
}

// validateFees compares an acknowledged fee with what will be charged. Premium names require one.
func validateFees(ack *FeeAck, fees model.Fees) error {
	if ack == nil {
		if fees.HasPremium() {
			return errs.ErrFeesRequiredForPremium
		}
		return nil
	}
	if ack.Currency != "" && ack.Currency != fees.Currency {
		return errs.CurrencyMismatch(fees.Currency, ack.Currency)
	}
	if !ack.Amount.Equal(fees.Total().Amount) {
		return errs.ErrFeesMismatch.About(fees.Total().String())
	}
	return nil
}

// loadToken resolves and checks an allocation token for registrar under tld. An empty code is no token.
func loadToken(ctx context.Context, tx repository.Tx, code string, tld model.Tld, registrarID string) (*model.AllocationToken, error) {
	return loadHeldToken(ctx, tx, code, tld, registrarID, uuid.Nil)
}

// loadHeldToken is loadToken for a token that history entry heldBy may already have redeemed.
func loadHeldToken(ctx context.Context, tx repository.Tx, code string, tld model.Tld, registrarID string, heldBy uuid.UUID) (*model.AllocationToken, error) {
	if code == "" {
		return nil, nil
	}
	tok, err := tx.Token(ctx, code)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnknownToken.About(code)
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	switch {
	case tok.Redeemed() && tok.RedemptionHistoryID != heldBy:
		return nil, errs.ErrTokenAlreadyRedeemed.About(code)
	case !tok.AllowsTLD(tld.Name):
		return nil, errs.ErrTokenNotValidForTLD.About(code)
	case !tok.AllowsRegistrar(registrarID):
		return nil, errs.ErrTokenNotValidForRegistrar.About(code)
	}
	return &tok, nil
}

func redeemToken(ctx context.Context, tx repository.Tx, tok *model.AllocationToken, historyID uuid.UUID) error {
	if tok == nil || tok.Type != model.TokenSingleUse {
		return nil
	}
	return tx.PutToken(ctx, tok.WithRedemption(historyID))
}

// releaseToken returns a single-use token held by history entry heldBy to the unredeemed state.
func releaseToken(ctx context.Context, tx repository.Tx, code string, heldBy uuid.UUID) error {
	if code == "" || heldBy == uuid.Nil {
		return nil
	}
	tok, err := tx.Token(ctx, code)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if tok.RedemptionHistoryID != heldBy {
		return nil
	}
	return tx.PutToken(ctx, tok.WithRedemption(uuid.Nil))
}

func newHistory(typ model.HistoryType, d model.Domain, caller Caller, now time.Time, period int, records ...model.TransactionRecord) model.HistoryEntry {
	return model.HistoryEntry{
		ID:                 model.NewID(),
		Type:               typ,
		ModificationTime:   now,
		RegistrarID:        caller.RegistrarID,
		DomainRepoID:       d.RepoID,
		PeriodYears:        period,
		Snapshot:           d,
		TransactionRecords: records,
	}
}

func record(tld model.Tld, at time.Time, field model.ReportField, amount int) model.TransactionRecord {
	return model.TransactionRecord{TLD: tld.Name, ReportingTime: at, Field: field, Amount: amount}
}

// updateAutorenewRecurrenceEndTime ends the domain's autorenew at newEnd. The autorenew poll message
// is recreated if an earlier end deleted it, and deleted if it would now never fire.
func updateAutorenewRecurrenceEndTime(ctx context.Context, tx repository.Tx, d model.Domain, newEnd time.Time, historyID uuid.UUID) error {
	poll, err := tx.PollMessage(ctx, d.AutorenewPollMessage)
	existed := err == nil
	switch {
	case errors.Is(err, errs.ErrNotFound):
		poll = model.NewAutorenewPoll(d.AutorenewPollMessage, d, d.SponsorID, d.ExpirationTime, newEnd, historyID)
	case err != nil:
		return fmt.Errorf("load autorenew poll: %w", err)
	}
	if !poll.EventTime.Before(newEnd) {
		if existed {
			if err := tx.Delete(ctx, poll.EntityKey()); err != nil {
				return err
			}
		}
	} else if err := tx.Put(ctx, poll.WithAutorenewEndTime(newEnd)); err != nil {
		return err
	}

	rec, err := tx.Recurring(ctx, d.AutorenewBillingEvent)
	if err != nil {
		return fmt.Errorf("load autorenew event: %w", err)
	}
	return tx.Put(ctx, rec.WithRecurrenceEndTime(newEnd))
}

func loadAutorenew(ctx context.Context, tx repository.Tx, d model.Domain) (*model.Recurring, error) {
	rec, err := tx.Recurring(ctx, d.AutorenewBillingEvent)
	if err != nil {
		return nil, fmt.Errorf("load autorenew event: %w", err)
	}
	return &rec, nil
}

// newAutorenew builds the recurring event and poll message that bill and announce yearly renewals
// of d for registrarID starting at expiration.
func newAutorenew(d model.Domain, registrarID string, expiration time.Time, price model.RenewalPrice, historyID uuid.UUID) (model.Recurring, model.PollMessage) {
	if price == nil {
		price = model.DefaultRenewal{}
	}
	rec := model.Recurring{
		ID:                model.NewID(),
		TargetID:          d.Name,
		DomainRepoID:      d.RepoID,
		RegistrarID:       registrarID,
		EventTime:         expiration,
		RecurrenceEndTime: model.EndOfTime,
		RenewalPrice:      price,
		HistoryID:         historyID,
	}
	poll := model.NewAutorenewPoll(model.NewID(), d, registrarID, expiration, model.EndOfTime, historyID)
	return rec, poll
}

func putAll(ctx context.Context, tx repository.Tx, res *flowResult, entities ...model.Entity) error {
	for _, e := range entities {
		if ot, ok := e.(model.OneTime); ok {
			res.charges = append(res.charges, ot)
		}
	}
	return tx.Put(ctx, entities...)
}
