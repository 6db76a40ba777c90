// Package node implements the delegator node.
package node

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/common/persistent"
	"github.com/delegation-marketplace/stx-delegator/config"
	"github.com/delegation-marketplace/stx-delegator/delegator"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator/pox"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
	cmdCommon "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/background"
	cmdGrpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the delegator node",
	Run:   Run,
}

// Run runs the delegator node.
func Run(cmd *cobra.Command, args []string) {
	node, err := NewNode()
	if err != nil {
		os.Exit(1)
	}
	defer node.Cleanup()

	node.Wait()
}

// Node is the delegator node service.
//
// WARNING: This is exposed for the benefit of tests and the interface
// is not guaranteed to be stable.
type Node struct {
	svcMgr  *background.ServiceManager
	servers []*cmnGrpc.Server

	stopping uint32

	commonStore *persistent.CommonStore

	Ledger    *pox.Ledger
	Delegator *delegator.Gateway
}

// Cleanup cleans up after the node has terminated.
func (n *Node) Cleanup() {
	n.svcMgr.Cleanup()
	if n.commonStore != nil {
		n.commonStore.Close()
	}
}

// Stop gracefully terminates the node.
func (n *Node) Stop() {
	if !atomic.CompareAndSwapUint32(&n.stopping, 0, 1) {
		return
	}
	n.svcMgr.Stop()
}

// Wait waits for the node to gracefully terminate.  Callers MUST
// call Cleanup() after wait returns.
func (n *Node) Wait() {
	n.svcMgr.Wait()
}

// Addresses returns the addresses the node's gRPC servers listen on.
func (n *Node) Addresses() []string {
	var addrs []string
	for _, srv := range n.servers {
		for _, addr := range srv.Addresses() {
			addrs = append(addrs, addr.String())
		}
	}
	return addrs
}

func (n *Node) initStore() (state.Store, error) {
	cfg := config.GlobalConfig.Delegator
	initial := &api.State{
		Owner:               cfg.OwnerPrincipal(),
		MarketplaceContract: cfg.MarketplacePrincipal(),
	}

	switch cfg.Backend {
	case state.BackendMemory:
		return state.NewMemoryStore(initial)
	case state.BackendBadger:
		var err error
		if n.commonStore, err = persistent.NewCommonStore(cmdCommon.DataDir()); err != nil {
			return nil, err
		}
		return state.NewBadgerStore(n.commonStore, initial)
	default:
		return nil, fmt.Errorf("node: unsupported state backend: %s", cfg.Backend)
	}
}

func (n *Node) initDelegator() error {
	store, err := n.initStore()
	if err != nil {
		return err
	}

	cfg := config.GlobalConfig.Delegator
	n.Ledger = pox.NewLedger()
	if n.Delegator, err = delegator.New(delegator.Config{
		Principal:        cfg.GatewayPrincipal(),
		EventHistorySize: cfg.EventHistory,
	}, store, n.Ledger); err != nil {
		store.Close()
		return err
	}
	n.svcMgr.RegisterCleanupOnly(n.Delegator, "delegator")

	return nil
}

// NewNode initializes and launches the delegator node service.
func NewNode() (*Node, error) {
	logger := cmdCommon.Logger()

	node := &Node{
		svcMgr: background.NewServiceManager(logger),
	}

	var startOk bool
	defer func() {
		if !startOk {
			node.Cleanup()
		}
	}()

	err := cmdCommon.Init()
	if err != nil {
		// Common initialization may have failed before logging is
		// available, so this must use Println.
		fmt.Println("common initialization failed:", err)
		return nil, err
	}
	applyFlagOverrides(&config.GlobalConfig)
	if err = config.GlobalConfig.Validate(); err != nil {
		logger.Error("invalid configuration",
			"err", err,
		)
		return nil, err
	}

	logger.Info("starting delegator node",
		"owner", config.GlobalConfig.Delegator.Owner,
		"backend", config.GlobalConfig.Delegator.Backend,
	)

	// Initialize the metrics server.
	metricsSvc, err := metrics.New()
	if err != nil {
		logger.Error("failed to initialize metrics server",
			"err", err,
		)
		return nil, err
	}
	node.svcMgr.Register(metricsSvc)

	if err = node.initDelegator(); err != nil {
		logger.Error("failed to initialize delegation gateway",
			"err", err,
		)
		return nil, err
	}

	// Initialize the gRPC servers.
	if node.servers, err = cmdGrpc.NewServers(); err != nil {
		logger.Error("failed to initialize gRPC servers",
			"err", err,
		)
		return nil, err
	}
	for _, srv := range node.servers {
		api.RegisterService(srv.Server(), node.Delegator)
		node.svcMgr.Register(srv)
	}

	// Start the metrics server first, so that everything afterwards
	// is observable, then the gRPC servers.
	if err = node.svcMgr.Start(); err != nil {
		logger.Error("failed to start services",
			"err", err,
		)
		node.svcMgr.Stop()
		node.svcMgr.Wait()
		return nil, err
	}
	metrics.MarkUp()

	logger.Info("initialization complete: ready to serve",
		"addresses", node.Addresses(),
	)
	startOk = true

	return node, nil
}

// Register registers the run sub-command.
func Register(parentCmd *cobra.Command) {
	runCmd.Flags().AddFlagSet(Flags)
	parentCmd.AddCommand(runCmd)
}
