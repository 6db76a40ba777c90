package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
)

func TestWaitReady(t *testing.T) {
	require := require.New(t)

	listener := bufconn.Listen(1024 * 1024)
	srv, err := cmnGrpc.NewServer(&cmnGrpc.ServerConfig{
		Name:     "test",
		Listener: listener,
	})
	require.NoError(err, "NewServer")
	require.NoError(srv.Start(), "Start")
	defer func() {
		srv.Stop()
		srv.Cleanup()
	}()

	conn, err := cmnGrpc.Dial("bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
	)
	require.NoError(err, "Dial")
	defer conn.Close()

	err = WaitReady(context.Background(), conn, 5*time.Second)
	require.NoError(err, "WaitReady")
}

func TestWaitReadyTimeout(t *testing.T) {
	require := require.New(t)

	listener := bufconn.Listen(1024 * 1024)
	_ = listener.Close()

	conn, err := cmnGrpc.Dial("bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
	)
	require.NoError(err, "Dial")
	defer conn.Close()

	err = WaitReady(context.Background(), conn, 500*time.Millisecond)
	require.Error(err, "WaitReady should give up")
}
