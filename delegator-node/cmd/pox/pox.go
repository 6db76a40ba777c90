// Package pox implements the PoX address sub-commands.
package pox

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	cmdCommon "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common"
	cmdFlags "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/flags"
)

var (
	poxCmd = &cobra.Command{
		Use:   "pox",
		Short: "PoX address utilities",
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "check that a PoX address is structurally valid",
		Args:  cobra.NoArgs,
		Run:   doValidate,
	}

	logger = logging.GetLogger("cmd/pox")
)

func doValidate(cmd *cobra.Command, args []string) {
	if err := cmdCommon.Init(); err != nil {
		cmdCommon.EarlyLogAndExit(err)
	}

	addr, err := cmdFlags.PoxAddress()
	if err != nil {
		logger.Error("malformed PoX address",
			"err", err,
		)
		os.Exit(1)
	}

	if !api.IsValidPoxAddress(addr) {
		fmt.Printf("%s: invalid\n", addr)
		os.Exit(1)
	}
	fmt.Printf("%s: valid\n", addr)
}

// Register registers the pox sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	validateCmd.Flags().AddFlagSet(cmdFlags.PoxAddressFlags)

	poxCmd.AddCommand(validateCmd)
	parentCmd.AddCommand(poxCmd)
}
