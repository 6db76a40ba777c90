// Package grpc implements common gRPC command-line flags and helpers.
package grpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	cmnBackoff "github.com/delegation-marketplace/stx-delegator/common/backoff"
	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/config"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common"
)

const (
	// CfgAddress configures the remote address.
	CfgAddress = "address"
	// CfgWait waits for the remote address to become available.
	CfgWait = "wait"

	defaultAddress = "unix:internal.sock"
)

var (
	// ClientFlags has the flags for a gRPC client.
	ClientFlags = flag.NewFlagSet("", flag.ContinueOnError)

	logger = logging.GetLogger("cmd/grpc")
)

// NewServers constructs the gRPC server services from the global
// configuration: one on the local socket when one is configured, and one
// on TCP when a port is configured.
func NewServers() ([]*cmnGrpc.Server, error) {
	cfg := config.GlobalConfig.GRPC

	var servers []*cmnGrpc.Server
	if cfg.SocketPath != "" {
		if common.DataDir() == "" && !filepath.IsAbs(cfg.SocketPath) {
			return nil, fmt.Errorf("grpc: relative socket path requires a data directory")
		}
		srv, err := cmnGrpc.NewServer(&cmnGrpc.ServerConfig{
			Name: "internal",
			Path: common.NormalizePath(cfg.SocketPath),
		})
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	if cfg.Port != 0 {
		srv, err := cmnGrpc.NewServer(&cmnGrpc.ServerConfig{
			Name:    "external",
			Address: cfg.Address,
			Port:    cfg.Port,
		})
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}

	return servers, nil
}

// NewClient creates a new gRPC client connection to the address given by
// the client flags.
func NewClient(cmd *cobra.Command) (*grpc.ClientConn, error) {
	addr, _ := cmd.Flags().GetString(CfgAddress)

	if _, err := os.Stat(addr); err == nil {
		logger.Warn(fmt.Sprintf("'%s' is a file name. Assuming 'unix:%s'.", addr, addr))
		addr = "unix:" + addr
	}

	conn, err := cmnGrpc.Dial(addr)
	if err != nil {
		return nil, err
	}

	if wait := viper.GetDuration(CfgWait); wait > 0 {
		if err = WaitReady(context.Background(), conn, wait); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// WaitReady waits, backing off exponentially, for the connection to
// become ready or for maxWait to elapse.
func WaitReady(ctx context.Context, conn *grpc.ClientConn, maxWait time.Duration) error {
	op := func() error {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		}
		logger.Debug("waiting for connection",
			"target", conn.Target(),
			"state", state,
		)
		return fmt.Errorf("grpc: connection not ready (state: %s)", state)
	}

	bo := backoff.WithContext(cmnBackoff.NewExponentialBackOff(maxWait), ctx)
	return backoff.Retry(op, bo)
}

func init() {
	ClientFlags.StringP(CfgAddress, "a", defaultAddress, "remote gRPC address")
	ClientFlags.Duration(CfgWait, 0, "wait up to the given duration for the gRPC address to become available")
	_ = viper.BindPFlags(ClientFlags)
}
