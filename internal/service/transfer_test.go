package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

func (e *env) requestTransfer(t *testing.T, caller Caller, name string) TransferResult {
	t.Helper()
	res, err := e.reg.RequestTransfer(context.Background(), e.tld, TransferRequestCommand{
		Caller: caller, Name: name, AuthCode: "secret-" + name, PeriodYears: 1,
	})
	require.NoError(t, err)
	return res
}

func TestRequestTransfer_Validation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.create(t, r1, "example.tld", 1)

	tests := []struct {
		name string
		cmd  TransferRequestCommand
		want error
	}{
		{"two years", TransferRequestCommand{Caller: r2, Name: "example.tld", AuthCode: "secret-example.tld", PeriodYears: 2}, errs.ErrTransferPeriodOneYear},
		{"zero years needs superuser", TransferRequestCommand{Caller: r2, Name: "example.tld", AuthCode: "secret-example.tld"}, errs.ErrTransferPeriodOneYear},
		{"bad auth code", TransferRequestCommand{Caller: r2, Name: "example.tld", AuthCode: "guess", PeriodYears: 1}, errs.ErrBadAuthInfo},
		{"own domain", TransferRequestCommand{Caller: r1, Name: "example.tld", AuthCode: "secret-example.tld", PeriodYears: 1}, errs.ErrAlreadySponsor},
		{"missing", TransferRequestCommand{Caller: r2, Name: "missing.tld", AuthCode: "x", PeriodYears: 1}, errs.ErrDomainNotFound},
	}
	for _, tt := range tests {
		_, err := e.reg.RequestTransfer(ctx, e.tld, tt.cmd)
		require.ErrorIs(t, err, tt.want, tt.name)
	}

	_, err := e.reg.UpdateDomain(ctx, e.tld, UpdateCommand{Caller: r1, Name: "example.tld",
		AddStatuses: []model.StatusValue{model.StatusClientTransferProhibited}})
	require.NoError(t, err)
	_, err = e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{Caller: r2, Name: "example.tld", AuthCode: "secret-example.tld", PeriodYears: 1})
	require.ErrorIs(t, err, errs.ErrStatusProhibits)
}

func TestRequestTransfer_WritesSpeculativeBundle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	created := e.create(t, r1, "example.tld", 2)
	e.clock.Advance(10 * day)
	now := e.clock.Now()

	res := e.requestTransfer(t, r2, "example.tld")
	td := res.Transfer
	require.Equal(t, model.TransferPending, td.Status)
	require.Equal(t, now.Add(5*day), td.PendingExpirationTime)
	require.Equal(t, t0.AddDate(3, 0, 0), td.TransferredExpirationTime)
	require.True(t, res.Domain.Statuses.Has(model.StatusPendingTransfer))
	require.True(t, res.Fees.Total().Amount.Equal(amount(t, "11")))

	// charge, autorenew event, autorenew poll, and one server-approve notice per party
	require.Len(t, td.ServerApproveEntities, 5)
	for _, k := range td.ServerApproveEntities {
		require.True(t, e.exists(t, created.Domain.RepoID, k), "%s missing", k.Kind)
	}
	charge := oneTimesByReason(e.records(t, "example.tld").Ledger)[model.ReasonTransfer]
	require.Len(t, charge, 1)
	require.Equal(t, "R2", charge[0].RegistrarID)
	require.Equal(t, td.PendingExpirationTime, charge[0].EventTime)

	old := e.recurring(t, model.Key{Kind: model.KindRecurring, ID: created.Domain.AutorenewBillingEvent})
	require.Equal(t, td.PendingExpirationTime, old.RecurrenceEndTime)

	polled, err := e.reg.PollRequest(ctx, r1)
	require.NoError(t, err)
	require.Equal(t, 1, polled.Count)
	require.Equal(t, model.MsgTransferRequested, polled.Message.Message)
	require.Equal(t, model.TransferPending, polled.Message.Response.Status)

	q, err := e.reg.QueryTransfer(ctx, e.tld, TransferCommand{Caller: r2, Name: "example.tld"})
	require.NoError(t, err)
	require.Equal(t, model.TransferPending, q.Status)
	_, err = e.reg.QueryTransfer(ctx, e.tld, TransferCommand{Caller: Caller{RegistrarID: "R3"}, Name: "example.tld"})
	require.ErrorIs(t, err, errs.ErrNotTransferParty)

	_, err = e.reg.RenewDomain(ctx, e.tld, RenewCommand{Caller: r1, Name: "example.tld", Years: 1, CurrentExpiration: created.Domain.ExpirationTime})
	require.ErrorIs(t, err, errs.ErrStatusProhibits)
	_, err = e.reg.DeleteDomain(ctx, e.tld, DeleteCommand{Caller: r1, Name: "example.tld"})
	require.ErrorIs(t, err, errs.ErrStatusProhibits)
	_, err = e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{Caller: Caller{RegistrarID: "R3"}, Name: "example.tld", AuthCode: "secret-example.tld", PeriodYears: 1})
	require.ErrorIs(t, err, errs.ErrAlreadyPendingTransfer)
}

func TestApproveTransfer_ReplacesBundle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	created := e.create(t, r1, "example.tld", 2)
	e.clock.Advance(10 * day)
	req := e.requestTransfer(t, r2, "example.tld")
	e.clock.Advance(day)
	now := e.clock.Now()

	_, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r2, Name: "example.tld"})
	require.ErrorIs(t, err, errs.ErrNotOwner)

	res, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.NoError(t, err)
	require.Equal(t, model.TransferClientApproved, res.Transfer.Status)
	require.Empty(t, res.Transfer.ServerApproveEntities)

	d := res.Domain
	require.Equal(t, "R2", d.SponsorID)
	require.Equal(t, t0.AddDate(3, 0, 0), d.ExpirationTime)
	require.False(t, d.Statuses.Has(model.StatusPendingTransfer))
	require.Equal(t, now, d.LastTransferTime)
	gp, ok := d.GracePeriodOf(model.GraceTransfer)
	require.True(t, ok)
	require.Equal(t, now.Add(5*day), gp.ExpirationTime)

	for _, k := range req.Transfer.ServerApproveEntities {
		require.False(t, e.exists(t, created.Domain.RepoID, k), "speculative %s survived approval", k.Kind)
	}
	transfers := oneTimesByReason(e.records(t, "example.tld").Ledger)[model.ReasonTransfer]
	require.Len(t, transfers, 1)
	require.Equal(t, now, transfers[0].EventTime)
	require.Equal(t, gp.BillingEvent, transfers[0].EntityKey())

	old := e.recurring(t, model.Key{Kind: model.KindRecurring, ID: created.Domain.AutorenewBillingEvent})
	require.Equal(t, now, old.RecurrenceEndTime)
	cur := e.recurring(t, model.Key{Kind: model.KindRecurring, ID: d.AutorenewBillingEvent})
	require.Equal(t, "R2", cur.RegistrarID)
	require.Equal(t, d.ExpirationTime, cur.EventTime)

	polled, err := e.reg.PollRequest(ctx, r2)
	require.NoError(t, err)
	require.Equal(t, 1, polled.Count)
	require.Equal(t, model.MsgTransferApproved, polled.Message.Message)

	_, err = e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.ErrorIs(t, err, errs.ErrNotPendingTransfer)
}

func TestDenyTransfer_RemovesBundleAndReopensAutorenew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		deny       func(*Registry, context.Context, model.Tld, TransferCommand) (TransferResult, error)
		caller     Caller
		wrong      Caller
		wrongErr   error
		status     model.TransferStatus
		notified   Caller
		notice     string
		wantRecord bool
	}{
		{
			name: "reject", deny: (*Registry).RejectTransfer, caller: r1, wrong: r2, wrongErr: errs.ErrNotOwner,
			status: model.TransferClientRejected, notified: r2, notice: model.MsgTransferRejected, wantRecord: true,
		},
		{
			name: "cancel", deny: (*Registry).CancelTransfer, caller: r2, wrong: r1, wrongErr: errs.ErrNotTransferInitiator,
			status: model.TransferClientCancelled, notified: r1, notice: model.MsgTransferCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			ctx := context.Background()
			created := e.create(t, r1, "example.tld", 2)
			e.clock.Advance(10 * day)
			req := e.requestTransfer(t, r2, "example.tld")
			if tt.notified.RegistrarID == r1.RegistrarID {
				// drain the transfer-requested notice
				p, err := e.reg.PollRequest(ctx, r1)
				require.NoError(t, err)
				_, err = e.reg.PollAck(ctx, r1, p.Message.ID)
				require.NoError(t, err)
			}
			e.clock.Advance(day)

			_, err := tt.deny(e.reg, ctx, e.tld, TransferCommand{Caller: tt.wrong, Name: "example.tld"})
			require.ErrorIs(t, err, tt.wrongErr)

			res, err := tt.deny(e.reg, ctx, e.tld, TransferCommand{Caller: tt.caller, Name: "example.tld"})
			require.NoError(t, err)
			require.Equal(t, tt.status, res.Transfer.Status)
			require.Equal(t, "R1", res.Domain.SponsorID)
			require.Equal(t, created.Domain.ExpirationTime, res.Domain.ExpirationTime)
			require.False(t, res.Domain.Statuses.Has(model.StatusPendingTransfer))

			for _, k := range req.Transfer.ServerApproveEntities {
				require.False(t, e.exists(t, created.Domain.RepoID, k), "speculative %s survived", k.Kind)
			}
			require.Empty(t, oneTimesByReason(e.records(t, "example.tld").Ledger)[model.ReasonTransfer])

			rec := e.recurring(t, model.Key{Kind: model.KindRecurring, ID: created.Domain.AutorenewBillingEvent})
			require.Equal(t, model.EndOfTime, rec.RecurrenceEndTime)
			arPoll, ok := e.poll(t, model.Key{Kind: model.KindPollAutorenew, ID: created.Domain.AutorenewPollMessage})
			require.True(t, ok, "autorenew poll is recreated")
			require.Equal(t, model.EndOfTime, arPoll.AutorenewEndTime)

			polled, err := e.reg.PollRequest(ctx, tt.notified)
			require.NoError(t, err)
			require.Equal(t, 1, polled.Count)
			require.Equal(t, tt.notice, polled.Message.Message)

			hist := e.records(t, "example.tld").History
			last := hist[len(hist)-1]
			if tt.wantRecord {
				require.Len(t, last.TransactionRecords, 1)
				require.Equal(t, model.FieldTransferNacked, last.TransactionRecords[0].Field)
			} else {
				require.Empty(t, last.TransactionRecords)
			}

			_, err = e.reg.RenewDomain(ctx, e.tld, RenewCommand{Caller: r1, Name: "example.tld", Years: 1, CurrentExpiration: created.Domain.ExpirationTime})
			require.NoError(t, err, "domain is usable again")
		})
	}
}

func TestTransfer_ServerApprovedByTime(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	created := e.create(t, r1, "example.tld", 2)
	e.clock.Advance(10 * day)
	req := e.requestTransfer(t, r2, "example.tld")
	e.clock.Advance(6 * day)

	d := e.info(t, "example.tld")
	require.Equal(t, "R2", d.SponsorID)
	require.Equal(t, model.TransferServerApproved, d.Transfer.Status)
	require.Equal(t, req.Transfer.TransferredExpirationTime, d.ExpirationTime)
	require.Equal(t, req.Transfer.ServerApproveAutorenewEvent.ID, d.AutorenewBillingEvent)
	require.True(t, d.HasGracePeriod(model.GraceTransfer))

	for _, k := range req.Transfer.ServerApproveEntities {
		require.True(t, e.exists(t, created.Domain.RepoID, k), "server-approve %s must stand", k.Kind)
	}
	for _, c := range []Caller{r1, r2} {
		polled, err := e.reg.PollRequest(ctx, c)
		require.NoError(t, err)
		var msgs []string
		for q := polled; q.Message != nil; {
			msgs = append(msgs, q.Message.Message)
			_, err := e.reg.PollAck(ctx, c, q.Message.ID)
			require.NoError(t, err)
			q, err = e.reg.PollRequest(ctx, c)
			require.NoError(t, err)
		}
		require.Contains(t, msgs, model.MsgTransferServerApproved, c.RegistrarID)
	}

	_, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.ErrorIs(t, err, errs.ErrNotPendingTransfer)

	q, err := e.reg.QueryTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.NoError(t, err)
	require.Equal(t, model.TransferServerApproved, q.Status)

	_, err = e.reg.RenewDomain(ctx, e.tld, RenewCommand{Caller: r2, Name: "example.tld", Years: 1, CurrentExpiration: d.ExpirationTime})
	require.NoError(t, err, "gaining registrar owns the domain")
}

func TestRequestTransfer_AutorenewGraceCancellation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		sinceExpiry    int // days after the first expiration when the transfer is requested
		wantCancel     bool
		wantExpiration int // years after t0
	}{
		{name: "transfer inside autorenew grace", sinceExpiry: 10, wantCancel: true, wantExpiration: 2},
		{name: "transfer after autorenew grace", sinceExpiry: 41, wantCancel: false, wantExpiration: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			created := e.create(t, r1, "example.tld", 1)
			e.clock.Advance(t0.AddDate(1, 0, 0).Sub(t0) + time.Duration(tt.sinceExpiry)*day)

			req := e.requestTransfer(t, r2, "example.tld")
			var cancels []model.Key
			for _, k := range req.Transfer.ServerApproveEntities {
				if k.Kind == model.KindCancellation {
					cancels = append(cancels, k)
				}
			}
			if !tt.wantCancel {
				require.Empty(t, cancels)
				require.Len(t, req.Transfer.ServerApproveEntities, 5)
			} else {
				require.Len(t, cancels, 1)
				require.Len(t, req.Transfer.ServerApproveEntities, 6)
				l := e.records(t, "example.tld").Ledger
				require.Len(t, l.Cancellations, 1)
				c := l.Cancellations[0]
				require.Equal(t, model.ReasonRenew, c.Reason)
				require.Equal(t, created.Domain.AutorenewKey(), c.Cancelled)
				require.Equal(t, req.Transfer.PendingExpirationTime, c.EventTime)
			}
			require.Equal(t, t0.AddDate(tt.wantExpiration, 0, 0), req.Transfer.TransferredExpirationTime)
		})
	}
}

func TestRequestTransfer_ConcurrentRequestsYieldOnePending(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.create(t, r1, "example.tld", 1)
	e.clock.Advance(10 * day)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		pending int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{
				Caller:      Caller{RegistrarID: fmt.Sprintf("G%d", i)},
				Name:        "example.tld",
				AuthCode:    "secret-example.tld",
				PeriodYears: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrAlreadyPendingTransfer):
				pending++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, pending)

	transfers := oneTimesByReason(e.records(t, "example.tld").Ledger)[model.ReasonTransfer]
	require.Len(t, transfers, 1)
}

func kindsOf(keys []model.Key) map[model.EntityKind]int {
	out := map[model.EntityKind]int{}
	for _, k := range keys {
		out[k.Kind]++
	}
	return out
}

func TestRequestTransfer_ZeroPeriodInsideAutorenewGrace(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	created := e.create(t, r1, "example.tld", 1)
	e.clock.Advance(t0.AddDate(1, 0, 0).Sub(t0) + 10*day)
	require.True(t, e.info(t, "example.tld").HasGracePeriod(model.GraceAutoRenew))

	req, err := e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{Caller: admin, Name: "example.tld"})
	require.NoError(t, err)
	kinds := kindsOf(req.Transfer.ServerApproveEntities)
	require.Zero(t, kinds[model.KindOneTime])
	require.Zero(t, kinds[model.KindCancellation])
	require.Len(t, req.Transfer.ServerApproveEntities, 4)
	require.Equal(t, model.Key{}, req.Transfer.ServerApproveBillingEvent)
	require.Equal(t, t0.AddDate(2, 0, 0), req.Transfer.TransferredExpirationTime)

	e.clock.Advance(day)
	res, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.NoError(t, err)
	require.Equal(t, t0.AddDate(2, 0, 0), res.Domain.ExpirationTime)
	require.False(t, res.Domain.HasGracePeriod(model.GraceTransfer))

	l := e.records(t, "example.tld").Ledger
	require.Empty(t, oneTimesByReason(l)[model.ReasonTransfer])
	require.Empty(t, l.Cancellations)
	require.Equal(t, created.Domain.RepoID, res.Domain.RepoID)
}

func TestApproveTransfer_InsideAutorenewGrace(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	created := e.create(t, r1, "example.tld", 1)
	e.clock.Advance(t0.AddDate(1, 0, 0).Sub(t0) + 10*day)
	e.requestTransfer(t, r2, "example.tld")
	e.clock.Advance(day)
	now := e.clock.Now()

	res, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "example.tld"})
	require.NoError(t, err)
	require.Equal(t, t0.AddDate(2, 0, 0), res.Domain.ExpirationTime, "transfer year replaces the autorenew year")

	l := e.records(t, "example.tld").Ledger
	require.Len(t, l.Cancellations, 1)
	c := l.Cancellations[0]
	require.Equal(t, now, c.EventTime)
	require.Equal(t, created.Domain.AutorenewKey(), c.Cancelled)
	transfers := oneTimesByReason(l)[model.ReasonTransfer]
	require.Len(t, transfers, 1)
	require.Equal(t, now, transfers[0].EventTime)
}

func (e *env) token(t *testing.T, code string) model.AllocationToken {
	t.Helper()
	var out model.AllocationToken
	require.NoError(t, e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Token(ctx, code)
		return err
	}))
	return out
}

func TestRequestTransfer_SingleUseToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.reg.PutToken(ctx, admin, model.AllocationToken{Code: "ONCE", Type: model.TokenSingleUse}))
	e.create(t, r1, "a.tld", 2)
	e.create(t, r1, "b.tld", 2)
	e.clock.Advance(10 * day)

	request := func(name string) (TransferResult, error) {
		return e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{
			Caller: r2, Name: name, AuthCode: "secret-" + name, PeriodYears: 1, Token: "ONCE",
		})
	}

	first, err := request("a.tld")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.Transfer.TokenRedemption)
	require.Equal(t, first.Transfer.TokenRedemption, e.token(t, "ONCE").RedemptionHistoryID)

	_, err = request("b.tld")
	require.ErrorIs(t, err, errs.ErrTokenAlreadyRedeemed, "token is held by the pending transfer")

	// server approval keeps the redemption
	e.clock.Advance(6 * day)
	require.Equal(t, "R2", e.info(t, "a.tld").SponsorID)
	require.True(t, e.token(t, "ONCE").Redeemed())
	_, err = request("b.tld")
	require.ErrorIs(t, err, errs.ErrTokenAlreadyRedeemed)
}

func TestTransferToken_ApproveKeepsAndRejectReleases(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.reg.PutToken(ctx, admin, model.AllocationToken{Code: "ONCE", Type: model.TokenSingleUse}))
	e.create(t, r1, "a.tld", 2)
	e.create(t, r1, "b.tld", 2)
	e.clock.Advance(10 * day)

	request := func(name string) TransferResult {
		res, err := e.reg.RequestTransfer(ctx, e.tld, TransferRequestCommand{
			Caller: r2, Name: name, AuthCode: "secret-" + name, PeriodYears: 1, Token: "ONCE",
		})
		require.NoError(t, err)
		return res
	}

	request("a.tld")
	_, err := e.reg.RejectTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "a.tld"})
	require.NoError(t, err)
	require.False(t, e.token(t, "ONCE").Redeemed(), "rejected transfer releases the token")

	req := request("b.tld")
	res, err := e.reg.ApproveTransfer(ctx, e.tld, TransferCommand{Caller: r1, Name: "b.tld"})
	require.NoError(t, err)
	require.Equal(t, "R2", res.Domain.SponsorID)
	require.Equal(t, req.Transfer.TokenRedemption, e.token(t, "ONCE").RedemptionHistoryID)

	transfers := oneTimesByReason(e.records(t, "b.tld").Ledger)[model.ReasonTransfer]
	require.Len(t, transfers, 1)
	require.Equal(t, "ONCE", transfers[0].AllocationToken)
}
