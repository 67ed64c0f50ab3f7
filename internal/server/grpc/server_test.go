package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/limiter"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository/memory"
	"github.com/and161185/tld-registry/internal/service"
)

const bufSize = 1 << 20

func testTlds() map[string]model.Tld {
	usd := func(s string) model.Schedule { return model.Flat(model.MustMoney("USD", s)) }
	day := 24 * time.Hour
	return map[string]model.Tld{
		"tld": {
			Name: "tld", Currency: "USD",
			CreateCost: usd("13"), RenewCost: usd("11"), RestoreCost: usd("17"),
			ServerStatusCost: usd("19"), EapFee: usd("0"),
			AddGracePeriod: 5 * day, RenewGracePeriod: 5 * day, AutoRenewGracePeriod: 45 * day,
			TransferGracePeriod: 5 * day, RedemptionGracePeriod: 30 * day, PendingDeletePeriod: 5 * day,
			AutomaticTransferLength: 5 * day,
		},
	}
}

type harness struct {
	cc   *grpc.ClientConn
	auth *service.AuthServiceImpl
}

func startBufGRPC(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memory.New(time.Now)
	lim := limiter.NewMemory(limiter.DefaultPolicy, time.Now)
	auth := service.NewAuthService(store, []byte("test-secret"), time.Minute, lim, nil)
	reg := service.NewRegistry(store, nil, nil, nil, log)
	srv := New(auth, reg, testTlds(), log)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		AuthUnary(auth, PublicMethods()...),
		LoggingUnary(log),
	))
	Register(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })

	require.NoError(t, auth.Register(context.Background(), "Admin", "admin-pass", true, nil))
	return &harness{cc: cc, auth: auth}
}

func (h *harness) call(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := h.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *harness) login(t *testing.T, id, password string) context.Context {
	t.Helper()
	resp, err := h.call(context.Background(), MethodLogin, map[string]any{"registrar_id": id, "password": password})
	require.NoError(t, err)
	tok := resp.GetFields()["access_token"].GetStringValue()
	require.NotEmpty(t, tok)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func TestServer_E2E_DomainLifecycle(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	adminCtx := h.login(t, "Admin", "admin-pass")
	_, err := h.call(adminCtx, MethodRegisterRegistrar, map[string]any{
		"registrar_id": "R1", "password": "r1-pass", "allowed_tlds": []any{"tld"},
	})
	require.NoError(t, err)
	r1 := h.login(t, "R1", "r1-pass")

	fees, err := h.call(r1, MethodCheckFees, map[string]any{"op": "create", "name": "example.tld", "years": 2})
	require.NoError(t, err)
	require.Equal(t, "26", fees.GetFields()["fees"].GetStructValue().GetFields()["total"].GetStringValue())

	created, err := h.call(r1, MethodCreateDomain, map[string]any{
		"name": "example.tld", "years": 2, "auth_code": "s3cret",
		"fee": map[string]any{"currency": "USD", "amount": "26.00"},
	})
	require.NoError(t, err)
	dom := created.GetFields()["domain"].GetStructValue().GetFields()
	require.Equal(t, "R1", dom["sponsor"].GetStringValue())
	require.Equal(t, "s3cret", created.GetFields()["auth_code"].GetStringValue())

	info, err := h.call(r1, MethodDomainInfo, map[string]any{"name": "EXAMPLE.tld"})
	require.NoError(t, err)
	require.Equal(t, "example.tld", info.GetFields()["domain"].GetStructValue().GetFields()["name"].GetStringValue())

	var trailer metadata.MD
	_, err = h.call(r1, MethodCreateDomain, map[string]any{"name": "example.tld"}, grpc.Trailer(&trailer))
	require.Equal(t, codes.AlreadyExists, status.Code(err))
	require.Equal(t, []string{"2302"}, trailer.Get(EPPCodeTrailer))

	_, err = h.call(r1, MethodDomainRecords, map[string]any{"name": "example.tld"})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	recs, err := h.call(adminCtx, MethodDomainRecords, map[string]any{"name": "example.tld"})
	require.NoError(t, err)
	ledger := recs.GetFields()["ledger"].GetStructValue().GetFields()
	require.Len(t, ledger["one_time"].GetListValue().GetValues(), 1)

	poll, err := h.call(r1, MethodPollRequest, nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, poll.GetFields()["count"].GetNumberValue())
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	_, err := h.call(context.Background(), MethodCreateDomain, map[string]any{"name": "a.tld"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.call(context.Background(), MethodLogin, map[string]any{"registrar_id": "Admin", "password": "nope"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.call(context.Background(), MethodLogin, map[string]any{"registrar_id": "Admin"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	admin := h.login(t, "Admin", "admin-pass")
	_, err = h.call(admin, MethodCreateDomain, map[string]any{"name": "a.nowhere"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.call(admin, MethodCreateDomain, map[string]any{"name": "a.tld", "years": 1.5})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(admin, MethodPollAck, map[string]any{"id": "not-a-uuid"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(admin, MethodDeleteDomain, map[string]any{"name": "missing.tld"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestToStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		err  error
		want codes.Code
	}{
		{errs.ErrDomainExists.About("a.tld"), codes.AlreadyExists},
		{fmt.Errorf("wrapped: %w", errs.ErrDomainNotFound), codes.NotFound},
		{errs.ErrBadPeriod, codes.InvalidArgument},
		{errs.ErrNotOwner, codes.PermissionDenied},
		{errs.ErrAlreadyPendingTransfer, codes.FailedPrecondition},
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{errs.ErrVersionConflict, codes.Aborted},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		got := toStatus(ctx, "op", tt.err)
		if status.Code(got) != tt.want {
			t.Fatalf("%v: got %v, want %v", tt.err, status.Code(got), tt.want)
		}
	}
	st, _ := status.FromError(toStatus(ctx, "op", errors.New("secret detail")))
	if st.Message() != "op: internal error" {
		t.Fatalf("internal errors must not leak details: %q", st.Message())
	}
}

func TestAuthUnary_PassesOtherServices(t *testing.T) {
	t.Parallel()
	ic := AuthUnary(nil, PublicMethods()...)
	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	resp, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, h)
	if err != nil || resp != "ok" {
		t.Fatalf("health must pass without auth: %v", err)
	}
	resp, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodLogin)}, h)
	if err != nil || resp != "ok" {
		t.Fatalf("login must pass without auth: %v", err)
	}
	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodPollRequest)}, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func Test_bearerTokenFromMD_MultipleHeaders_CaseInsensitive(t *testing.T) {
	t.Parallel()
	md := metadata.MD{}
	md.Append("authorization", "Basic zzz")
	md.Append("authorization", "  bEaReR   tok-123  ")
	got, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), md))
	if err != nil || got != "tok-123" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

type loopbackAddr struct{}

func (loopbackAddr) Network() string { return "tcp" }
func (loopbackAddr) String() string  { return "127.0.0.1:5555" }

func Test_remoteIP(t *testing.T) {
	t.Parallel()
	if remoteIP(context.Background()) != "" {
		t.Fatalf("want empty without peer")
	}
	tests := []struct {
		addr net.Addr
		want string
	}{
		{loopbackAddr{}, "127.0.0.1"},
		{&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6000}, "127.0.0.1"},
		{&net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}, "2001:db8::1"},
		{&net.UnixAddr{Name: "bufconn", Net: "unix"}, "bufconn"},
	}
	for _, tt := range tests {
		ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: tt.addr})
		if got := remoteIP(ctx); got != tt.want {
			t.Fatalf("remoteIP(%s) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func Test_tldOf_LongestSuffix(t *testing.T) {
	t.Parallel()
	tlds := testTlds()
	co := tlds["tld"]
	co.Name = "co.tld"
	tlds["co.tld"] = co
	s := New(nil, nil, tlds, nil)

	got, err := s.tldOf("shop.co.tld")
	if err != nil || got.Name != "co.tld" {
		t.Fatalf("got %q, %v", got.Name, err)
	}
	got, err = s.tldOf("shop.tld")
	if err != nil || got.Name != "tld" {
		t.Fatalf("got %q, %v", got.Name, err)
	}
	if _, err := s.tldOf("shop.com"); !errors.Is(err, errs.ErrTLDNotFound) {
		t.Fatalf("want ErrTLDNotFound, got %v", err)
	}
}
