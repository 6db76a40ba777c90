package grpc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
)

const testModule = "test/grpc"

var errTest = errors.New(testModule, 7, "test: rejected")

func TestErrorMapping(t *testing.T) {
	require := require.New(t)

	require.Nil(errorToGrpc(nil))
	require.Nil(errorFromGrpc(nil))

	// Registered errors survive the round trip.
	err := errorFromGrpc(errorToGrpc(errTest))
	require.True(errors.Is(err, errTest), "registered error should be reconstructed")

	// Context is preserved.
	err = errorFromGrpc(errorToGrpc(errors.WithContext(errTest, "caller ST1")))
	require.True(errors.Is(err, errTest))
	require.Equal("caller ST1", errors.Context(err))

	// Unregistered errors are passed through as-is.
	plain := fmt.Errorf("plain failure")
	require.Equal(plain, errorToGrpc(plain))

	// Context cancellation maps onto the gRPC code.
	grpcErr := errorToGrpc(errors.WithContext(errTest, context.Canceled.Error()))
	require.Equal(codes.Unknown, status.Code(grpcErr))
	require.True(IsErrorCode(grpcErr, codes.Unknown))
	require.False(IsErrorCode(plain, codes.Unknown))
}

func TestServiceName(t *testing.T) {
	require := require.New(t)

	sn := NewServiceName("Test")
	require.EqualValues("stx-delegator.Test", sn)

	md := sn.NewMethod("Ping", nil)
	require.Equal("Ping", md.ShortName())
	require.Equal("/stx-delegator.Test/Ping", md.FullName())

	require.Panics(func() { sn.NewMethod("Ping", nil) }, "duplicate method")
	require.Panics(func() { NewServiceName("a/b") }, "invalid service name")
}
