package grpc

import (
	"context"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/delegation-marketplace/stx-delegator/common/cbor"
	"github.com/delegation-marketplace/stx-delegator/common/errors"
)

// IsErrorCode returns true if the given error represents a specific gRPC error code.
func IsErrorCode(err error, code codes.Code) bool {
	var grpcError interface {
		error
		GRPCStatus() *status.Status
	}
	if !errors.As(err, &grpcError) {
		return false
	}

	return grpcError.GRPCStatus().Code() == code
}

// grpcError is a serializable error.
type grpcError struct {
	Module string `json:"module,omitempty"`
	Code   uint32 `json:"code,omitempty"`
}

func errorToGrpc(err error) error {
	if err == nil {
		return nil
	}

	module, code := errors.Code(err)
	if module == errors.UnknownModule {
		// If the error is not known, just pass the original error.
		return err
	}

	// NOTE: The status details are serialized with the CBOR codec, so the
	//       module/code pair is CBOR nested in a protobuf Any.
	return status.FromProto(&spb.Status{
		Code:    int32(grpcCodeFor(err)),
		Message: err.Error(),
		Details: []*anypb.Any{
			{
				Value: cbor.Marshal(&grpcError{Module: module, Code: code}),
			},
		},
	}).Err()
}

func grpcCodeFor(err error) codes.Code {
	if code := status.Code(err); code != codes.Unknown {
		return code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Unknown
	}
}

func errorFromGrpc(err error) error {
	if err == nil {
		return nil
	}

	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	sp := s.Proto()
	if len(sp.Details) != 1 {
		return err
	}
	var ge grpcError
	if cerr := cbor.Unmarshal(sp.Details[0].Value, &ge); cerr != nil {
		return err
	}

	return errors.FromCode(ge.Module, ge.Code, sp.Message)
}

func serverUnaryErrorMapper(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	rsp, err := handler(ctx, req)
	return rsp, errorToGrpc(err)
}

func serverStreamErrorMapper(
	srv interface{},
	ss grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	err := handler(srv, ss)
	return errorToGrpc(err)
}

func clientUnaryErrorMapper(
	ctx context.Context,
	method string,
	req, rsp interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	err := invoker(ctx, method, req, rsp, cc, opts...)
	return errorFromGrpc(err)
}

func clientStreamErrorMapper(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	cs, err := streamer(ctx, desc, cc, method, opts...)
	if err != nil {
		return nil, errorFromGrpc(err)
	}
	return &errorMappingClientStream{cs}, nil
}

type errorMappingClientStream struct {
	grpc.ClientStream
}

func (s *errorMappingClientStream) RecvMsg(m interface{}) error {
	return errorFromGrpc(s.ClientStream.RecvMsg(m))
}
