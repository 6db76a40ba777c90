// Package tests is a collection of delegation gateway implementation test
// cases.
package tests

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

const recvTimeout = 5 * time.Second

var (
	// TestOwner is the deployment owner the gateway under test must be
	// deployed with.
	TestOwner = api.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	// TestMarketplace is the initial marketplace contract the gateway
	// under test must be deployed with.
	TestMarketplace = TestOwner.ContractPrincipal(api.DefaultMarketplaceName)

	testStranger       = api.Principal("ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG")
	testNewMarketplace = TestOwner.ContractPrincipal("delegation-marketplace-v2")

	testValidPoxAddress = api.PoxAddress{
		Version:   0x01,
		HashBytes: bytes.Repeat([]byte{0x11}, 20),
	}
	testBadVersionPoxAddress = api.PoxAddress{
		Version:   0x02,
		HashBytes: bytes.Repeat([]byte{0x11}, 20),
	}
	testShortPoxAddress = api.PoxAddress{
		Version:   0x01,
		HashBytes: bytes.Repeat([]byte{0x11}, 16),
	}
)

type gatewayTestState struct {
	events <-chan *api.Event
}

// GatewayImplementationTests exercises the basic functionality of a
// delegation gateway backend.
//
// The backend must be freshly deployed by TestOwner with TestMarketplace
// as its marketplace contract, and must forward to a pox.Ledger.
func GatewayImplementationTests(t *testing.T, backend api.Backend) {
	require := require.New(t)
	ctx := context.Background()

	owner, err := backend.Owner(ctx)
	require.NoError(err, "Owner")
	require.Equal(TestOwner, owner)

	marketplace, err := backend.MarketplaceContract(ctx)
	require.NoError(err, "MarketplaceContract")
	require.Equal(TestMarketplace, marketplace)

	ch, sub, err := backend.WatchEvents(ctx)
	require.NoError(err, "WatchEvents")
	defer sub.Close()
	testState := &gatewayTestState{events: ch}

	// Run multiple sub-tests.
	for _, tc := range []struct {
		n  string
		fn func(*testing.T, api.Backend, *gatewayTestState)
	}{
		{"SetMarketplaceContractNotOwner", testSetMarketplaceContractNotOwner},
		{"DelegateUnauthorized", testDelegateUnauthorized},
		{"DelegateInvalidPoxAddress", testDelegateInvalidPoxAddress},
		{"DelegateAndRevoke", testDelegateAndRevoke},
		{"SetMarketplaceContract", testSetMarketplaceContract},
		{"GetEvents", testGetEvents},
	} {
		t.Run(tc.n, func(t *testing.T) { tc.fn(t, backend, testState) })
	}
}

func requireMarketplace(t *testing.T, backend api.Backend, expected api.Principal) {
	marketplace, err := backend.MarketplaceContract(context.Background())
	require.NoError(t, err, "MarketplaceContract")
	require.Equal(t, expected, marketplace)
}

func requireEvent(t *testing.T, testState *gatewayTestState) *api.Event {
	select {
	case ev := <-testState.events:
		require.NotNil(t, ev, "event")
		return ev
	case <-time.After(recvTimeout):
		t.Fatalf("failed to receive event")
		return nil
	}
}

func requireNoEvent(t *testing.T, testState *gatewayTestState) {
	select {
	case ev := <-testState.events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func testSetMarketplaceContractNotOwner(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	for _, call := range []api.CallContext{
		{Caller: testStranger},
		{Caller: TestMarketplace},
		// The owner guard looks at the origin, not the immediate caller.
		{Caller: TestOwner, Sender: testStranger},
	} {
		_, err := backend.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
			Call:     call,
			Contract: testStranger,
		})
		require.True(errors.Is(err, api.ErrOwnerOnly), "SetMarketplaceContract(%+v): %v", call, err)
		module, code := errors.Code(err)
		require.Equal(api.ModuleName, module)
		require.EqualValues(100, code)
	}

	requireMarketplace(t, backend, TestMarketplace)
	requireNoEvent(t, testState)
}

func testDelegateUnauthorized(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	for _, call := range []api.CallContext{
		{Caller: testStranger},
		{Caller: TestOwner},
		// The marketplace guard looks at the immediate caller only.
		{Caller: testStranger, Sender: TestMarketplace},
	} {
		// Authorization is checked before the address.
		for _, addr := range []api.PoxAddress{testValidPoxAddress, testBadVersionPoxAddress, testShortPoxAddress} {
			err := backend.DelegateToPox(ctx, &api.DelegateToPoxRequest{
				Call:            call,
				Amount:          1_000_000,
				PoxAddress:      addr,
				StartBurnHeight: 100,
				LockPeriod:      1,
			})
			require.True(errors.Is(err, api.ErrUnauthorized), "DelegateToPox(%+v, %s): %v", call, addr, err)
		}

		err := backend.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
			Call:   call,
			Amount: 1,
		})
		require.True(errors.Is(err, api.ErrUnauthorized), "RevokeDelegation(%+v): %v", call, err)
		module, code := errors.Code(err)
		require.Equal(api.ModuleName, module)
		require.EqualValues(101, code)
	}

	requireNoEvent(t, testState)
}

func testDelegateInvalidPoxAddress(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	for _, addr := range []api.PoxAddress{testBadVersionPoxAddress, testShortPoxAddress, {}} {
		err := backend.DelegateToPox(ctx, &api.DelegateToPoxRequest{
			Call:            api.CallContext{Caller: TestMarketplace},
			Amount:          1_000_000,
			PoxAddress:      addr,
			StartBurnHeight: 100,
			LockPeriod:      1,
		})
		require.True(errors.Is(err, api.ErrInvalidPoxAddress), "DelegateToPox(%s): %v", addr, err)
		module, code := errors.Code(err)
		require.Equal(api.ModuleName, module)
		require.EqualValues(102, code)
	}

	requireNoEvent(t, testState)
}

func testDelegateAndRevoke(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	delegate := &api.DelegateToPoxRequest{
		Call:            api.CallContext{Caller: TestMarketplace, Sender: testStranger},
		Amount:          1_000_000,
		PoxAddress:      testValidPoxAddress,
		StartBurnHeight: 100,
		LockPeriod:      6,
	}
	err := backend.DelegateToPox(ctx, delegate)
	require.NoError(err, "DelegateToPox")

	ev := requireEvent(t, testState)
	require.NotNil(ev.Delegated, "delegated event")
	require.Equal(TestMarketplace, ev.Delegated.Caller)
	require.EqualValues(1_000_000, ev.Delegated.Amount)
	require.Equal(testValidPoxAddress, ev.Delegated.PoxAddress)
	require.EqualValues(100, ev.Delegated.StartBurnHeight)
	require.EqualValues(6, ev.Delegated.LockPeriod)

	// A refusal of the stake-locking mechanism is surfaced as-is.
	err = backend.DelegateToPox(ctx, delegate)
	require.True(errors.Is(err, api.ErrDelegationFailed), "DelegateToPox (already delegating): %v", err)
	module, code := errors.Code(err)
	require.Equal(api.ModuleName, module)
	require.EqualValues(103, code)

	err = backend.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
		Call:   api.CallContext{Caller: TestMarketplace},
		Amount: 400_000,
	})
	require.NoError(err, "RevokeDelegation")

	ev = requireEvent(t, testState)
	require.NotNil(ev.Revoked, "revoked event")
	require.Equal(TestMarketplace, ev.Revoked.Caller)
	require.EqualValues(400_000, ev.Revoked.Amount)

	err = backend.RevokeDelegation(ctx, &api.RevokeDelegationRequest{
		Call:   api.CallContext{Caller: TestMarketplace},
		Amount: 600_001,
	})
	require.True(errors.Is(err, api.ErrDelegationFailed), "RevokeDelegation (too much): %v", err)

	requireNoEvent(t, testState)
}

func testSetMarketplaceContract(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	// An empty principal is rejected, but only once the owner guard passed.
	_, err := backend.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call: api.CallContext{Caller: testStranger},
	})
	require.True(errors.Is(err, api.ErrOwnerOnly), "SetMarketplaceContract(stranger, empty): %v", err)
	_, err = backend.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call: api.CallContext{Caller: TestOwner},
	})
	require.True(errors.Is(err, api.ErrInvalidArgument), "SetMarketplaceContract(owner, empty): %v", err)
	requireMarketplace(t, backend, TestMarketplace)

	contract, err := backend.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call:     api.CallContext{Caller: TestOwner},
		Contract: testNewMarketplace,
	})
	require.NoError(err, "SetMarketplaceContract")
	require.Equal(testNewMarketplace, contract)
	requireMarketplace(t, backend, testNewMarketplace)

	ev := requireEvent(t, testState)
	require.NotNil(ev.MarketplaceContractChanged, "marketplace contract changed event")
	require.Equal(TestMarketplace, ev.MarketplaceContractChanged.Previous)
	require.Equal(testNewMarketplace, ev.MarketplaceContractChanged.Current)

	// The previous marketplace contract lost its authority.
	err = backend.DelegateToPox(ctx, &api.DelegateToPoxRequest{
		Call:            api.CallContext{Caller: TestMarketplace},
		Amount:          1,
		PoxAddress:      testValidPoxAddress,
		StartBurnHeight: 100,
		LockPeriod:      1,
	})
	require.True(errors.Is(err, api.ErrUnauthorized), "DelegateToPox (old marketplace): %v", err)

	// Owner calls routed through another contract are still the owner's.
	contract, err = backend.SetMarketplaceContract(ctx, &api.SetMarketplaceContractRequest{
		Call:     api.CallContext{Caller: testStranger, Sender: TestOwner},
		Contract: TestMarketplace,
	})
	require.NoError(err, "SetMarketplaceContract (via contract)")
	require.Equal(TestMarketplace, contract)
	requireMarketplace(t, backend, TestMarketplace)

	ev = requireEvent(t, testState)
	require.NotNil(ev.MarketplaceContractChanged, "marketplace contract changed event")
	require.Equal(testNewMarketplace, ev.MarketplaceContractChanged.Previous)
	require.Equal(TestMarketplace, ev.MarketplaceContractChanged.Current)
}

func testGetEvents(t *testing.T, backend api.Backend, testState *gatewayTestState) {
	require := require.New(t)
	ctx := context.Background()

	events, err := backend.GetEvents(ctx)
	require.NoError(err, "GetEvents")

	var kinds []string
	for i, ev := range events {
		kinds = append(kinds, ev.Kind())
		if i > 0 {
			require.Greater(ev.Sequence, events[i-1].Sequence, "sequence numbers should increase")
		}
	}
	require.Equal([]string{
		"delegated",
		"revoked",
		"marketplace_contract_changed",
		"marketplace_contract_changed",
	}, kinds)
}
