package node

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/config"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
	"github.com/delegation-marketplace/stx-delegator/delegator/tests"
)

func startTestNode(t *testing.T, dataDir string) (*Node, api.Backend) {
	require := require.New(t)

	cfg := config.DefaultConfig()
	cfg.Common.DataDir = dataDir
	cfg.Common.Log.Level = map[string]string{"default": "error"}
	cfg.Delegator.Owner = tests.TestOwner.String()
	cfg.Delegator.Backend = state.BackendBadger
	config.GlobalConfig = cfg

	node, err := NewNode()
	require.NoError(err, "NewNode")

	addrs := node.Addresses()
	require.Len(addrs, 1, "only the internal socket should be served")

	conn, err := cmnGrpc.Dial("unix:" + addrs[0])
	require.NoError(err, "Dial")
	t.Cleanup(func() { _ = conn.Close() })

	return node, api.NewDelegatorClient(conn)
}

func stopTestNode(node *Node) {
	node.Stop()
	node.Wait()
	node.Cleanup()
}

func TestNode(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dataDir := filepath.Join(t.TempDir(), "data")

	node, client := startTestNode(t, dataDir)
	require.NotNil(node.Delegator, "gateway should be initialized")

	owner, err := client.Owner(ctx)
	require.NoError(err, "Owner")
	require.Equal(tests.TestOwner, owner)

	marketplace, err := client.MarketplaceContract(ctx)
	require.NoError(err, "MarketplaceContract")
	require.Equal(tests.TestMarketplace, marketplace)

	tests.GatewayImplementationTests(t, client)

	delegations, err := node.Ledger.Delegations(ctx)
	require.NoError(err, "Delegations")
	require.Len(delegations, 1, "partially revoked delegation should remain")
	require.Equal(tests.TestOwner.ContractPrincipal(api.DefaultGatewayName), delegations[0].Delegator)
	require.EqualValues(600_000, delegations[0].Amount)

	replacement := tests.TestOwner.ContractPrincipal("marketplace-v2")
	_, err = client.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call:     api.CallContext{Caller: tests.TestOwner},
		Contract: replacement,
	})
	require.NoError(err, "SetMarketplaceContract")

	stopTestNode(node)

	// The marketplace contract survives a restart.
	node, client = startTestNode(t, dataDir)
	defer stopTestNode(node)

	marketplace, err = client.MarketplaceContract(ctx)
	require.NoError(err, "MarketplaceContract")
	require.Equal(replacement, marketplace)
}
