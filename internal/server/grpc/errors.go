package grpcserver

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/tld-registry/internal/errs"
)

// EPPCodeTrailer carries the EPP result code of a failed call.
const EPPCodeTrailer = "epp-code"

var eppToGRPC = map[errs.Code]codes.Code{
	errs.CodeCommandUse:           codes.FailedPrecondition,
	errs.CodeParameterRange:       codes.InvalidArgument,
	errs.CodeParameterSyntax:      codes.InvalidArgument,
	errs.CodeBillingFailure:       codes.FailedPrecondition,
	errs.CodeAuthorization:        codes.PermissionDenied,
	errs.CodeInvalidAuthInfo:      codes.PermissionDenied,
	errs.CodePendingTransfer:      codes.FailedPrecondition,
	errs.CodeNotPendingTransfer:   codes.FailedPrecondition,
	errs.CodeObjectExists:         codes.AlreadyExists,
	errs.CodeObjectDoesNotExist:   codes.NotFound,
	errs.CodeStatusProhibits:      codes.FailedPrecondition,
	errs.CodeDataManagementPolicy: codes.FailedPrecondition,
}

// toStatus maps service errors to gRPC statuses. Registry failures keep their message and report
// their EPP code in a trailer; anything unexpected becomes Internal.
func toStatus(ctx context.Context, op string, err error) error {
	if e, ok := errs.As(err); ok {
		c, known := eppToGRPC[e.Code]
		if !known {
			c = codes.FailedPrecondition
		}
		_ = grpc.SetTrailer(ctx, metadata.Pairs(EPPCodeTrailer, strconv.Itoa(int(e.Code))))
		return status.Error(c, e.Error())
	}
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrVersionConflict):
		return status.Error(codes.Aborted, "concurrent modification, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Errorf(codes.Internal, "%s: internal error", op)
}
