package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/memoproof/receipt"
)

// toStatus maps store errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, receipt.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, receipt.ErrInvalidDigest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, receipt.ErrImmutable):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps gRPC status codes back onto store errors.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return receipt.ErrNotFound
	case codes.InvalidArgument:
		return receipt.ErrInvalidDigest
	case codes.FailedPrecondition:
		return receipt.ErrImmutable
	default:
		return err
	}
}
