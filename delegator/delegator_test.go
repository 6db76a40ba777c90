package delegator

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator/pox"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
	"github.com/delegation-marketplace/stx-delegator/delegator/tests"
)

const (
	owner       = api.Principal("ST1OWNER")
	marketplace = api.Principal("ST1OWNER.delegation-marketplace")
	stranger    = api.Principal("ST2STRANGER")
)

var validPoxAddress = api.PoxAddress{
	Version:   0x01,
	HashBytes: bytes.Repeat([]byte{0xaa}, 20),
}

type recordingLocker struct {
	delegations []*pox.DelegateStx
	revocations []*pox.RevokeDelegateStx

	err error
}

func (l *recordingLocker) DelegateStx(ctx context.Context, req *pox.DelegateStx) error {
	l.delegations = append(l.delegations, req)
	return l.err
}

func (l *recordingLocker) RevokeDelegateStx(ctx context.Context, req *pox.RevokeDelegateStx) error {
	l.revocations = append(l.revocations, req)
	return l.err
}

func newTestGateway(t *testing.T, locker pox.Locker, owner, marketplace api.Principal, historySize int) *Gateway {
	store, err := state.NewMemoryStore(&api.State{
		Owner:               owner,
		MarketplaceContract: marketplace,
	})
	require.NoError(t, err, "NewMemoryStore")

	gw, err := New(Config{
		Principal:        owner.ContractPrincipal(api.DefaultGatewayName),
		EventHistorySize: historySize,
	}, store, locker)
	require.NoError(t, err, "New")
	t.Cleanup(gw.Cleanup)

	return gw
}

func TestGateway(t *testing.T) {
	gw := newTestGateway(t, pox.NewLedger(), tests.TestOwner, tests.TestMarketplace, 0)
	tests.GatewayImplementationTests(t, gw)
}

func newTestGRPCClient(t *testing.T, gw *Gateway) api.Backend {
	require := require.New(t)

	listener := bufconn.Listen(1024 * 1024)
	srv, err := cmnGrpc.NewServer(&cmnGrpc.ServerConfig{
		Name:     "test",
		Listener: listener,
	})
	require.NoError(err, "NewServer")
	api.RegisterService(srv.Server(), gw)
	require.NoError(srv.Start(), "Start")
	t.Cleanup(func() {
		srv.Stop()
		srv.Cleanup()
	})

	conn, err := cmnGrpc.Dial("bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
	)
	require.NoError(err, "Dial")
	t.Cleanup(func() { _ = conn.Close() })

	return api.NewDelegatorClient(conn)
}

func TestGatewayGRPC(t *testing.T) {
	gw := newTestGateway(t, pox.NewLedger(), tests.TestOwner, tests.TestMarketplace, 0)
	tests.GatewayImplementationTests(t, newTestGRPCClient(t, gw))
}

func TestWatchEventsGRPCSubscribed(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gw := newTestGateway(t, &recordingLocker{}, owner, marketplace, 0)
	client := newTestGRPCClient(t, gw)

	for i := 0; i < 10; i++ {
		ch, sub, err := client.WatchEvents(ctx)
		require.NoError(err, "WatchEvents")

		// Events emitted right after WatchEvents returns are delivered.
		contract := api.Principal(fmt.Sprintf("ST1OWNER.marketplace-%d", i))
		_, err = gw.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
			Call:     api.CallContext{Caller: owner},
			Contract: contract,
		})
		require.NoError(err, "SetMarketplaceContract")

		select {
		case ev := <-ch:
			require.NotNil(ev.MarketplaceContractChanged, "marketplace changed event")
			require.Equal(contract, ev.MarketplaceContractChanged.Current)
		case <-time.After(5 * time.Second):
			t.Fatalf("failed to receive event %d", i)
		}
		sub.Close()
	}
}

func TestWatchEventsClosedWithoutReading(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gw := newTestGateway(t, &recordingLocker{}, owner, marketplace, 0)

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		_, sub, err := gw.WatchEvents(ctx)
		require.NoError(err, "WatchEvents")

		_, err = gw.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
			Call:     api.CallContext{Caller: owner},
			Contract: api.Principal(fmt.Sprintf("ST1OWNER.marketplace-%d", i)),
		})
		require.NoError(err, "SetMarketplaceContract")
		sub.Close()
	}

	require.Eventually(func() bool {
		return runtime.NumGoroutine() <= before
	}, 5*time.Second, 10*time.Millisecond, "closed subscriptions should not leak goroutines")
}

func TestGetEventsReturnsCopies(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gw := newTestGateway(t, &recordingLocker{}, owner, marketplace, 0)
	_, err := gw.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call:     api.CallContext{Caller: owner},
		Contract: "ST1OWNER.marketplace-v2",
	})
	require.NoError(err, "SetMarketplaceContract")

	events, err := gw.GetEvents(ctx)
	require.NoError(err, "GetEvents")
	require.Len(events, 1)
	events[0].MarketplaceContractChanged.Current = "ST1OWNER.tampered"
	events[0].Sequence = 42

	events, err = gw.GetEvents(ctx)
	require.NoError(err, "GetEvents")
	require.EqualValues(1, events[0].Sequence)
	require.EqualValues("ST1OWNER.marketplace-v2", events[0].MarketplaceContractChanged.Current)
}

func TestScenario(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	locker := &recordingLocker{}
	gw := newTestGateway(t, locker, "O", "M", 0)

	contract, err := gw.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call:     api.CallContext{Caller: "O"},
		Contract: "N",
	})
	require.NoError(err, "SetMarketplaceContract")
	require.EqualValues("N", contract)

	contract, err = gw.MarketplaceContract(ctx)
	require.NoError(err, "MarketplaceContract")
	require.EqualValues("N", contract)

	err = gw.DelegateToPox(ctx, &api.DelegateToPoxRequest{
		Call:            api.CallContext{Caller: "M"},
		Amount:          1,
		PoxAddress:      validPoxAddress,
		StartBurnHeight: 1,
		LockPeriod:      1,
	})
	require.Equal(api.ErrUnauthorized, err)
	require.Empty(locker.delegations, "stake-locking should not be reached")
}

func TestLockerInvokedOnlyWhenAuthorized(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	locker := &recordingLocker{}
	gw := newTestGateway(t, locker, owner, marketplace, 0)

	for _, tc := range []struct {
		caller api.Principal
		addr   api.PoxAddress
		err    error
	}{
		{stranger, validPoxAddress, api.ErrUnauthorized},
		{owner, validPoxAddress, api.ErrUnauthorized},
		{stranger, api.PoxAddress{Version: 0x02}, api.ErrUnauthorized},
		{marketplace, api.PoxAddress{Version: 0x02, HashBytes: validPoxAddress.HashBytes}, api.ErrInvalidPoxAddress},
		{marketplace, api.PoxAddress{Version: 0x01, HashBytes: validPoxAddress.HashBytes[:16]}, api.ErrInvalidPoxAddress},
	} {
		err := gw.DelegateToPox(ctx, &api.DelegateToPoxRequest{
			Call:       api.CallContext{Caller: tc.caller},
			Amount:     10,
			PoxAddress: tc.addr,
			LockPeriod: 1,
		})
		require.Equal(tc.err, err, "DelegateToPox(%s, %s)", tc.caller, tc.addr)
	}
	err := gw.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
		Call:   api.CallContext{Caller: stranger},
		Amount: 10,
	})
	require.Equal(api.ErrUnauthorized, err)

	require.Empty(locker.delegations, "stake-locking should not be reached")
	require.Empty(locker.revocations, "stake-locking should not be reached")

	err = gw.DelegateToPox(ctx, &api.DelegateToPoxRequest{
		Call:            api.CallContext{Caller: marketplace},
		Amount:          10,
		PoxAddress:      validPoxAddress,
		StartBurnHeight: 7,
		LockPeriod:      3,
	})
	require.NoError(err, "DelegateToPox")
	err = gw.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
		Call:   api.CallContext{Caller: marketplace},
		Amount: 4,
	})
	require.NoError(err, "RevokeDelegation")

	require.Equal([]*pox.DelegateStx{{
		Delegator:       owner.ContractPrincipal(api.DefaultGatewayName),
		Amount:          10,
		PoxAddress:      validPoxAddress,
		StartBurnHeight: 7,
		LockPeriod:      3,
	}}, locker.delegations)
	require.Equal([]*pox.RevokeDelegateStx{{
		Delegator: owner.ContractPrincipal(api.DefaultGatewayName),
		Amount:    4,
	}}, locker.revocations)
}

func TestLockerErrorSurfacedUnchanged(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	lockerErr := errors.WithContext(api.ErrDelegationFailed, "insufficient balance")
	locker := &recordingLocker{err: lockerErr}
	gw := newTestGateway(t, locker, owner, marketplace, 0)

	err := gw.DelegateToPox(ctx, &api.DelegateToPoxRequest{
		Call:       api.CallContext{Caller: marketplace},
		Amount:     10,
		PoxAddress: validPoxAddress,
		LockPeriod: 1,
	})
	require.Equal(lockerErr, err)

	err = gw.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
		Call:   api.CallContext{Caller: marketplace},
		Amount: 10,
	})
	require.Equal(lockerErr, err)

	events, err := gw.GetEvents(ctx)
	require.NoError(err, "GetEvents")
	require.Empty(events, "failed calls should not emit events")
}

func TestEventHistoryBounded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gw := newTestGateway(t, &recordingLocker{}, owner, marketplace, 3)

	for i := 0; i < 5; i++ {
		_, err := gw.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
			Call:     api.CallContext{Caller: owner},
			Contract: api.Principal(fmt.Sprintf("ST1OWNER.marketplace-%d", i)),
		})
		require.NoError(err, "SetMarketplaceContract")
	}

	events, err := gw.GetEvents(ctx)
	require.NoError(err, "GetEvents")
	require.Len(events, 3)
	for i, ev := range events {
		require.EqualValues(i+3, ev.Sequence)
		require.EqualValues(fmt.Sprintf("ST1OWNER.marketplace-%d", i+2), ev.MarketplaceContractChanged.Current)
	}
}

func TestNewRejectsMissingPrincipal(t *testing.T) {
	store, err := state.NewMemoryStore(&api.State{Owner: owner, MarketplaceContract: marketplace})
	require.NoError(t, err, "NewMemoryStore")

	_, err = New(Config{}, store, pox.NewLedger())
	require.Error(t, err, "missing gateway principal should be rejected")
}

func TestResultLabel(t *testing.T) {
	require := require.New(t)

	require.Equal("ok", resultLabel(nil))
	require.Equal("unauthorized", resultLabel(api.ErrUnauthorized))
	require.Equal("delegation_failed", resultLabel(errors.WithContext(api.ErrDelegationFailed, "refused")))
	require.Equal("error", resultLabel(fmt.Errorf("boom")))
}
