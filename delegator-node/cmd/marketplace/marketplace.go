// Package marketplace implements the marketplace contract sub-commands.
package marketplace

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/client"
	cmdFlags "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/flags"
	cmdGrpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc"
)

var (
	marketplaceCmd = &cobra.Command{
		Use:   "marketplace",
		Short: "marketplace contract utilities",
	}

	getCmd = &cobra.Command{
		Use:   "get",
		Short: "query the current marketplace contract",
		Args:  cobra.NoArgs,
		Run:   doGet,
	}

	setCmd = &cobra.Command{
		Use:   "set <principal>",
		Short: "replace the marketplace contract (owner only)",
		Args:  cobra.ExactArgs(1),
		Run:   doSet,
	}

	logger = logging.GetLogger("cmd/marketplace")
)

func doGet(cmd *cobra.Command, args []string) {
	conn, backend := client.DoConnect(cmd)
	defer conn.Close()

	ctx := context.Background()
	contract, err := backend.MarketplaceContract(ctx)
	if err != nil {
		client.ExitOnCallError(logger, "failed to query marketplace contract", err)
	}
	fmt.Println(contract)

	if cmdFlags.Verbose() {
		owner, err := backend.Owner(ctx)
		if err != nil {
			client.ExitOnCallError(logger, "failed to query owner", err)
		}
		fmt.Printf("owner: %s\n", owner)
	}
}

func doSet(cmd *cobra.Command, args []string) {
	call, err := cmdFlags.CallContext()
	if err != nil {
		logger.Error("invalid call context",
			"err", err,
		)
		os.Exit(1)
	}

	conn, backend := client.DoConnect(cmd)
	defer conn.Close()

	contract, err := backend.SetMarketplaceContract(context.Background(), &api.SetMarketplaceContractRequest{
		Call:     call,
		Contract: api.Principal(args[0]),
	})
	if err != nil {
		client.ExitOnCallError(logger, "failed to set marketplace contract", err,
			"contract", args[0],
		)
	}
	fmt.Println(contract)
}

// Register registers the marketplace sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	for _, v := range []*cobra.Command{
		getCmd,
		setCmd,
	} {
		v.Flags().AddFlagSet(cmdGrpc.ClientFlags)
	}
	getCmd.Flags().AddFlagSet(cmdFlags.VerboseFlags)
	setCmd.Flags().AddFlagSet(cmdFlags.CallFlags)

	marketplaceCmd.AddCommand(getCmd)
	marketplaceCmd.AddCommand(setCmd)
	parentCmd.AddCommand(marketplaceCmd)
}
