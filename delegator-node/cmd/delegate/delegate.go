// Package delegate implements the delegate and revoke sub-commands.
package delegate

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/client"
	cmdFlags "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/flags"
	cmdGrpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc"
)

const (
	// CfgAmount configures the amount of micro-STX.
	CfgAmount = "amount"
	// CfgStartBurnHeight configures the burn height the delegation starts at.
	CfgStartBurnHeight = "start_burn_height"
	// CfgLockPeriod configures the number of reward cycles to lock for.
	CfgLockPeriod = "lock_period"
)

var (
	delegateCmd = &cobra.Command{
		Use:   "delegate",
		Short: "delegate STX to a PoX reward address through the gateway",
		Args:  cobra.NoArgs,
		Run:   doDelegate,
	}

	revokeCmd = &cobra.Command{
		Use:   "revoke",
		Short: "revoke delegated STX through the gateway",
		Args:  cobra.NoArgs,
		Run:   doRevoke,
	}

	amountFlags   = flag.NewFlagSet("", flag.ContinueOnError)
	delegateFlags = flag.NewFlagSet("", flag.ContinueOnError)

	logger = logging.GetLogger("cmd/delegate")
)

func callContextOrExit() api.CallContext {
	call, err := cmdFlags.CallContext()
	if err != nil {
		logger.Error("invalid call context",
			"err", err,
		)
		os.Exit(1)
	}
	return call
}

func doDelegate(cmd *cobra.Command, args []string) {
	call := callContextOrExit()
	addr, err := cmdFlags.PoxAddress()
	if err != nil {
		logger.Error("invalid PoX address",
			"err", err,
		)
		os.Exit(1)
	}

	req := &api.DelegateToPoxRequest{
		Call:            call,
		Amount:          viper.GetUint64(CfgAmount),
		PoxAddress:      addr,
		StartBurnHeight: viper.GetUint64(CfgStartBurnHeight),
		LockPeriod:      viper.GetUint64(CfgLockPeriod),
	}

	conn, backend := client.DoConnect(cmd)
	defer conn.Close()

	if err = backend.DelegateToPox(context.Background(), req); err != nil {
		client.ExitOnCallError(logger, "failed to delegate", err,
			"amount", req.Amount,
			"pox_address", req.PoxAddress,
		)
	}
	logger.Info("delegated",
		"amount", req.Amount,
		"pox_address", req.PoxAddress,
		"start_burn_height", req.StartBurnHeight,
		"lock_period", req.LockPeriod,
	)
}

func doRevoke(cmd *cobra.Command, args []string) {
	req := &api.RevokeDelegationRequest{
		Call:   callContextOrExit(),
		Amount: viper.GetUint64(CfgAmount),
	}

	conn, backend := client.DoConnect(cmd)
	defer conn.Close()

	if err := backend.RevokeDelegation(context.Background(), req); err != nil {
		client.ExitOnCallError(logger, "failed to revoke delegation", err,
			"amount", req.Amount,
		)
	}
	logger.Info("revoked delegation",
		"amount", req.Amount,
	)
}

// Register registers the delegate and revoke sub-commands.
func Register(parentCmd *cobra.Command) {
	for _, v := range []*cobra.Command{
		delegateCmd,
		revokeCmd,
	} {
		v.Flags().AddFlagSet(cmdGrpc.ClientFlags)
		v.Flags().AddFlagSet(cmdFlags.CallFlags)
		v.Flags().AddFlagSet(amountFlags)
		parentCmd.AddCommand(v)
	}
	delegateCmd.Flags().AddFlagSet(cmdFlags.PoxAddressFlags)
	delegateCmd.Flags().AddFlagSet(delegateFlags)
}

func init() {
	amountFlags.Uint64(CfgAmount, 0, "amount of micro-STX")
	_ = viper.BindPFlags(amountFlags)

	delegateFlags.Uint64(CfgStartBurnHeight, 0, "burn height the delegation starts at")
	delegateFlags.Uint64(CfgLockPeriod, 1, "number of reward cycles to lock for")
	_ = viper.BindPFlags(delegateFlags)
}
