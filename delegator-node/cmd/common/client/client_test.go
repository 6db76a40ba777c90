package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

func TestCallErrorKeyvals(t *testing.T) {
	require := require.New(t)

	kv := callErrorKeyvals(api.ErrUnauthorized)
	require.Equal([]interface{}{"err", api.ErrUnauthorized}, kv, "gateway errors should carry no hint")

	unavailable := status.Error(codes.Unavailable, "connection refused")
	kv = callErrorKeyvals(unavailable)
	require.Len(kv, 4)
	require.Equal("hint", kv[2])
	require.Contains(kv[3], "--wait")

	kv = callErrorKeyvals(fmt.Errorf("watch: %w", unavailable))
	require.Len(kv, 4, "wrapped unavailable errors should carry a hint")
}
