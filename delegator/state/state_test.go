package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/common/persistent"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

var testInitial = api.State{
	Owner:               "ST1OWNER",
	MarketplaceContract: "ST1OWNER.delegation-marketplace",
}

func testStore(t *testing.T, store Store) {
	require := require.New(t)
	ctx := context.Background()

	st, err := store.State(ctx)
	require.NoError(err, "State")
	require.Equal(testInitial, *st)

	// Returned state is a copy.
	st.MarketplaceContract = "ST1.other"
	st, err = store.State(ctx)
	require.NoError(err, "State")
	require.Equal(testInitial.MarketplaceContract, st.MarketplaceContract)

	err = store.SetMarketplaceContract(ctx, "ST1OWNER.new-marketplace")
	require.NoError(err, "SetMarketplaceContract")
	st, err = store.State(ctx)
	require.NoError(err, "State")
	require.EqualValues("ST1OWNER.new-marketplace", st.MarketplaceContract)
	require.Equal(testInitial.Owner, st.Owner, "owner should never change")
}

func TestMemoryStore(t *testing.T) {
	_, err := NewMemoryStore(&api.State{MarketplaceContract: "ST1.m"})
	require.Error(t, err, "missing owner should be rejected")
	_, err = NewMemoryStore(&api.State{Owner: "ST1"})
	require.Error(t, err, "missing marketplace should be rejected")

	initial := testInitial
	store, err := NewMemoryStore(&initial)
	require.NoError(t, err, "NewMemoryStore")
	defer store.Close()

	testStore(t, store)
}

func TestBadgerStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	common, err := persistent.NewCommonStore(dir)
	require.NoError(err, "NewCommonStore")

	initial := testInitial
	store, err := NewBadgerStore(common, &initial)
	require.NoError(err, "NewBadgerStore")
	testStore(t, store)
	store.Close()
	common.Close()

	// Reopen, the persisted marketplace contract wins.
	common, err = persistent.NewCommonStore(dir)
	require.NoError(err, "NewCommonStore (reopen)")
	defer common.Close()

	store, err = NewBadgerStore(common, &initial)
	require.NoError(err, "NewBadgerStore (reopen)")
	st, err := store.State(ctx)
	require.NoError(err, "State")
	require.EqualValues("ST1OWNER.new-marketplace", st.MarketplaceContract)

	// A different owner is a configuration error.
	_, err = NewBadgerStore(common, &api.State{
		Owner:               "ST2OTHER",
		MarketplaceContract: "ST2OTHER.delegation-marketplace",
	})
	require.Error(err, "owner mismatch should be rejected")
}
