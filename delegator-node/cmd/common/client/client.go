// Package client implements the delegation gateway client helpers shared
// by the delegator-node sub-commands.
package client

import (
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	cmdCommon "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common"
	cmdGrpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc"
)

var logger = logging.GetLogger("cmd/client")

// DoConnect initializes the common environment and connects to the
// node's delegation gateway, exiting on failure.
func DoConnect(cmd *cobra.Command) (*grpc.ClientConn, api.Backend) {
	if err := cmdCommon.Init(); err != nil {
		cmdCommon.EarlyLogAndExit(err)
	}

	conn, err := cmdGrpc.NewClient(cmd)
	if err != nil {
		logger.Error("failed to establish connection with node",
			"err", err,
		)
		os.Exit(1)
	}

	return conn, api.NewDelegatorClient(conn)
}

// ExitOnCallError logs a failed gateway call and exits.
func ExitOnCallError(l *logging.Logger, msg string, err error, keyvals ...interface{}) {
	l.Error(msg, append(keyvals, callErrorKeyvals(err)...)...)
	os.Exit(1)
}

func callErrorKeyvals(err error) []interface{} {
	keyvals := []interface{}{"err", err}
	if cmnGrpc.IsErrorCode(err, codes.Unavailable) {
		keyvals = append(keyvals, "hint", "node unreachable, check that it is running or retry with --"+cmdGrpc.CfgWait)
	}
	return keyvals
}
