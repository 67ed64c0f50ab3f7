package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "registry.v1.Registry"

// Method names, also usable as full method paths via FullMethod.
const (
	MethodLogin             = "Login"
	MethodRegisterRegistrar = "RegisterRegistrar"
	MethodCreateDomain      = "CreateDomain"
	MethodRenewDomain       = "RenewDomain"
	MethodUpdateDomain      = "UpdateDomain"
	MethodDeleteDomain      = "DeleteDomain"
	MethodRestoreDomain     = "RestoreDomain"
	MethodRequestTransfer   = "RequestTransfer"
	MethodApproveTransfer   = "ApproveTransfer"
	MethodRejectTransfer    = "RejectTransfer"
	MethodCancelTransfer    = "CancelTransfer"
	MethodQueryTransfer     = "QueryTransfer"
	MethodDomainInfo        = "DomainInfo"
	MethodDomainRecords     = "DomainRecords"
	MethodCheckFees         = "CheckFees"
	MethodPollRequest       = "PollRequest"
	MethodPollAck           = "PollAck"
	MethodPutToken          = "PutToken"
)

// FullMethod returns the path used on the wire for a method name.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// RegistryServer is the server API. Every message is a google.protobuf.Struct.
type RegistryServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterRegistrar(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenewDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RestoreDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DomainInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DomainRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckFees(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PollRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PollAck(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(RegistryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, h handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(RegistryServer)
			if ic == nil {
				return h(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the registry service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodLogin, RegistryServer.Login),
		unary(MethodRegisterRegistrar, RegistryServer.RegisterRegistrar),
		unary(MethodCreateDomain, RegistryServer.CreateDomain),
		unary(MethodRenewDomain, RegistryServer.RenewDomain),
		unary(MethodUpdateDomain, RegistryServer.UpdateDomain),
		unary(MethodDeleteDomain, RegistryServer.DeleteDomain),
		unary(MethodRestoreDomain, RegistryServer.RestoreDomain),
		unary(MethodRequestTransfer, RegistryServer.RequestTransfer),
		unary(MethodApproveTransfer, RegistryServer.ApproveTransfer),
		unary(MethodRejectTransfer, RegistryServer.RejectTransfer),
		unary(MethodCancelTransfer, RegistryServer.CancelTransfer),
		unary(MethodQueryTransfer, RegistryServer.QueryTransfer),
		unary(MethodDomainInfo, RegistryServer.DomainInfo),
		unary(MethodDomainRecords, RegistryServer.DomainRecords),
		unary(MethodCheckFees, RegistryServer.CheckFees),
		unary(MethodPollRequest, RegistryServer.PollRequest),
		unary(MethodPollAck, RegistryServer.PollAck),
		unary(MethodPutToken, RegistryServer.PutToken),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry/v1/registry.proto",
}

// Register attaches srv to a grpc server.
func Register(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
