// Package grpcserver exposes the registry over gRPC.
package grpcserver

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/tld-registry/internal/convert"
	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	auth     service.AuthService
	registry *service.Registry
	tlds     map[string]model.Tld
	suffixes []string // TLD names, longest first
	log      *zap.Logger
}

var _ RegistryServer = (*Server)(nil)

// New constructs a gRPC server with injected services and the loaded TLD policies.
func New(auth service.AuthService, registry *service.Registry, tlds map[string]model.Tld, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	suffixes := make([]string, 0, len(tlds))
	for name := range tlds {
		suffixes = append(suffixes, name)
	}
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })
	return &Server{auth: auth, registry: registry, tlds: tlds, suffixes: suffixes, log: log}
}

// PublicMethods need no bearer token.
func PublicMethods() []string { return []string{FullMethod(MethodLogin)} }

// remoteIP is the peer host without its port, so reconnecting does not reset login throttling.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) caller(ctx context.Context) (service.Caller, error) {
	c, ok := CallerFromCtx(ctx)
	if !ok {
		return service.Caller{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return c, nil
}

// tldOf resolves the policy of the TLD a domain name is under.
func (s *Server) tldOf(name string) (model.Tld, error) {
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(name, "."+suffix) {
			return s.tlds[suffix], nil
		}
	}
	return model.Tld{}, errs.ErrTLDNotFound.About(name)
}

func badRequest(err error) error {
	return status.Errorf(codes.InvalidArgument, "bad request: %v", err)
}

func reply(m convert.M) (*structpb.Struct, error) {
	out, err := convert.Struct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// domainCall resolves caller and TLD for a command on the domain named in req.
func (s *Server) domainCall(ctx context.Context, req *structpb.Struct) (service.Caller, model.Tld, string, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return service.Caller{}, model.Tld{}, "", err
	}
	name := convert.Name(convert.Of(req))
	if name == "" {
		return service.Caller{}, model.Tld{}, "", status.Error(codes.InvalidArgument, "empty name")
	}
	tld, err := s.tldOf(name)
	if err != nil {
		return service.Caller{}, model.Tld{}, "", toStatus(ctx, "resolve tld", err)
	}
	return c, tld, name, nil
}

// --- Auth ---

// Login authenticates a registrar and returns an access token.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Of(req)
	id, password := f.String("registrar_id"), f.String("password")
	if id == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty registrar_id/password")
	}
	tok, r, err := s.auth.LoginWithIP(ctx, id, password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus(ctx, "login", err)
	}
	return reply(convert.M{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.UTC().Format(time.RFC3339),
		"registrar_id": r.ID,
		"superuser":    r.Superuser,
	})
}

// RegisterRegistrar creates a registrar account. Superuser only.
func (s *Server) RegisterRegistrar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Superuser {
		return nil, toStatus(ctx, "register", errs.ErrSuperuserOnly)
	}
	f := convert.Of(req)
	id, password := f.String("registrar_id"), f.String("password")
	if id == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty registrar_id/password")
	}
	if err := s.auth.Register(ctx, id, password, f.Bool("superuser"), f.Strings("allowed_tlds")); err != nil {
		return nil, toStatus(ctx, "register", err)
	}
	s.log.Info("registrar created", zap.String("registrar", id), zap.String("by", c.RegistrarID))
	return reply(convert.M{"registrar_id": id})
}

// --- Domain commands ---

// CreateDomain registers a new name.
func (s *Server) CreateDomain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	cmd, err := convert.CreateCommand(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	cmd.Caller = c
	res, err := s.registry.CreateDomain(ctx, tld, cmd)
	if err != nil {
		return nil, toStatus(ctx, "create", err)
	}
	return reply(convert.M{"domain": convert.Domain(res.Domain), "fees": convert.Fees(res.Fees), "auth_code": res.AuthCode})
}

// RenewDomain extends a registration.
func (s *Server) RenewDomain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	cmd, err := convert.RenewCommand(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	cmd.Caller = c
	res, err := s.registry.RenewDomain(ctx, tld, cmd)
	if err != nil {
		return nil, toStatus(ctx, "renew", err)
	}
	return reply(convert.M{"domain": convert.Domain(res.Domain), "fees": convert.Fees(res.Fees)})
}

// UpdateDomain changes statuses, hosts, registrant or auth code.
func (s *Server) UpdateDomain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	cmd := convert.UpdateCommand(convert.Of(req))
	cmd.Caller = c
	res, err := s.registry.UpdateDomain(ctx, tld, cmd)
	if err != nil {
		return nil, toStatus(ctx, "update", err)
	}
	return reply(convert.M{"domain": convert.Domain(res.Domain), "fees": convert.Fees(res.Fees)})
}

// DeleteDomain deletes a name, immediately or into redemption.
func (s *Server) DeleteDomain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, name, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := s.registry.DeleteDomain(ctx, tld, service.DeleteCommand{Caller: c, Name: name})
	if err != nil {
		return nil, toStatus(ctx, "delete", err)
	}
	return reply(convert.M{
		"immediate":     res.Immediate,
		"deletion_time": res.DeletionTime.UTC().Format(time.RFC3339),
		"domain":        convert.Domain(res.Domain),
	})
}

// RestoreDomain brings a name back out of redemption.
func (s *Server) RestoreDomain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	cmd, err := convert.RestoreCommand(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	cmd.Caller = c
	res, err := s.registry.RestoreDomain(ctx, tld, cmd)
	if err != nil {
		return nil, toStatus(ctx, "restore", err)
	}
	return reply(convert.M{"domain": convert.Domain(res.Domain), "fees": convert.Fees(res.Fees)})
}

// --- Transfers ---

func transferReply(res service.TransferResult) (*structpb.Struct, error) {
	return reply(convert.M{"transfer": convert.Transfer(res.Transfer), "fees": convert.Fees(res.Fees)})
}

// RequestTransfer starts a transfer to the caller.
func (s *Server) RequestTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	cmd, err := convert.TransferRequestCommand(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	cmd.Caller = c
	res, err := s.registry.RequestTransfer(ctx, tld, cmd)
	if err != nil {
		return nil, toStatus(ctx, "transfer request", err)
	}
	return transferReply(res)
}

type transferAction func(*service.Registry, context.Context, model.Tld, service.TransferCommand) (service.TransferResult, error)

func (s *Server) resolveTransfer(ctx context.Context, req *structpb.Struct, op string, act transferAction) (*structpb.Struct, error) {
	c, tld, name, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := act(s.registry, ctx, tld, service.TransferCommand{Caller: c, Name: name})
	if err != nil {
		return nil, toStatus(ctx, op, err)
	}
	return transferReply(res)
}

// ApproveTransfer is issued by the losing registrar.
func (s *Server) ApproveTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.resolveTransfer(ctx, req, "transfer approve", (*service.Registry).ApproveTransfer)
}

// RejectTransfer is issued by the losing registrar.
func (s *Server) RejectTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.resolveTransfer(ctx, req, "transfer reject", (*service.Registry).RejectTransfer)
}

// CancelTransfer is issued by the gaining registrar.
func (s *Server) CancelTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.resolveTransfer(ctx, req, "transfer cancel", (*service.Registry).CancelTransfer)
}

// QueryTransfer reports the current or last transfer of a name.
func (s *Server) QueryTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, name, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	td, err := s.registry.QueryTransfer(ctx, tld, service.TransferCommand{Caller: c, Name: name})
	if err != nil {
		return nil, toStatus(ctx, "transfer query", err)
	}
	return reply(convert.M{"transfer": convert.Transfer(td)})
}

// --- Queries ---

// DomainInfo returns the current state of a name.
func (s *Server) DomainInfo(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, name, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	d, err := s.registry.DomainInfo(ctx, tld, c, name)
	if err != nil {
		return nil, toStatus(ctx, "info", err)
	}
	return reply(convert.M{"domain": convert.Domain(d)})
}

// DomainRecords returns history and billing of a name. Superuser only.
func (s *Server) DomainRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.registry.DomainRecords(ctx, c, convert.Name(convert.Of(req)))
	if err != nil {
		return nil, toStatus(ctx, "records", err)
	}
	return reply(convert.Records(recs))
}

// CheckFees prices an operation without performing it.
func (s *Server) CheckFees(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, tld, _, err := s.domainCall(ctx, req)
	if err != nil {
		return nil, err
	}
	q, err := convert.FeeCheck(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	fees, err := s.registry.CheckFees(ctx, tld, c, q)
	if err != nil {
		return nil, toStatus(ctx, "check fees", err)
	}
	return reply(convert.M{"fees": convert.Fees(fees)})
}

// --- Poll queue ---

// PollRequest returns the oldest visible message without consuming it.
func (s *Server) PollRequest(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.registry.PollRequest(ctx, c)
	if err != nil {
		return nil, toStatus(ctx, "poll", err)
	}
	return reply(convert.Poll(res))
}

// PollAck consumes a message.
func (s *Server) PollAck(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.Of(req).UUID("id")
	if err != nil {
		return nil, badRequest(err)
	}
	left, err := s.registry.PollAck(ctx, c, id)
	if err != nil {
		return nil, toStatus(ctx, "poll ack", err)
	}
	return reply(convert.M{"count": left})
}

// --- Administration ---

// PutToken creates or replaces an allocation token. Superuser only.
func (s *Server) PutToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := convert.Token(convert.Of(req))
	if err != nil {
		return nil, badRequest(err)
	}
	if err := s.registry.PutToken(ctx, c, tok); err != nil {
		return nil, toStatus(ctx, "put token", err)
	}
	return reply(convert.M{"code": tok.Code})
}
