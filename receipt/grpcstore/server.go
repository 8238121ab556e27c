package grpcstore

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
)

// Server exposes a receipt.Store over the Receipts gRPC service.
type Server struct {
	UnimplementedReceiptsServer
	Store  receipt.Store
	Logger *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	r, err := receipt.Unmarshal(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.Store.Put(ctx, r); err != nil {
		s.log().Warn("put failed", "digest", r.Digest.String(), "err", err)
		return nil, toStatus(err)
	}
	s.log().Debug("put", "digest", r.Digest.String(), "signature", r.Signature.String())
	return wrapperspb.String(r.Digest.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	d, err := digest.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, receipt.ErrInvalidDigest.Error())
	}
	r, err := s.Store.Get(ctx, d)
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := receipt.Marshal(r)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	d, err := digest.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, receipt.ErrInvalidDigest.Error())
	}
	return wrapperspb.Bool(s.Store.Has(ctx, d)), nil
}
