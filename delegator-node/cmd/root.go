// Package cmd implements the commands for the delegator-node executable.
package cmd

import (
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/delegation-marketplace/stx-delegator/common/version"
	cmdCommon "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/delegate"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/events"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/marketplace"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/node"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/pox"
)

var rootCmd = &cobra.Command{
	Use:     "delegator-node",
	Short:   "STX delegation gateway node",
	Version: version.SoftwareVersion,
}

// RootCommand returns the root (top level) cobra.Command.
func RootCommand() *cobra.Command {
	return rootCmd
}

// Execute spawns the main entry point after handling the config file
// and command line arguments.
func Execute() {
	// Only the owner should have read/write/execute permissions for
	// anything created by the delegator-node binary.
	syscall.Umask(0o077)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initVersions() {
	cobra.AddTemplateFunc("gatewayProtocol", func() interface{} { return version.GatewayProtocol })

	rootCmd.SetVersionTemplate(`Software version: {{.Version}}
Gateway state version: {{ gatewayProtocol }}
`)
}

func init() {
	cobra.OnInitialize(cmdCommon.InitConfig)
	initVersions()

	rootCmd.PersistentFlags().AddFlagSet(cmdCommon.RootFlags)

	// Register all of the sub-commands.
	for _, v := range []func(*cobra.Command){
		node.Register,
		marketplace.Register,
		delegate.Register,
		pox.Register,
		events.Register,
	} {
		v(rootCmd)
	}
}
