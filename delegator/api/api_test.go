package api

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
)

func TestPoxAddress(t *testing.T) {
	for _, tc := range []struct {
		name  string
		addr  PoxAddress
		valid bool
	}{
		{"Valid", PoxAddress{Version: 0x01, HashBytes: bytes.Repeat([]byte{0xab}, 20)}, true},
		{"VersionZero", PoxAddress{Version: 0x00, HashBytes: bytes.Repeat([]byte{0xab}, 20)}, false},
		{"VersionTwo", PoxAddress{Version: 0x02, HashBytes: bytes.Repeat([]byte{0xab}, 20)}, false},
		{"Short", PoxAddress{Version: 0x01, HashBytes: bytes.Repeat([]byte{0xab}, 16)}, false},
		{"Long", PoxAddress{Version: 0x01, HashBytes: bytes.Repeat([]byte{0xab}, 21)}, false},
		{"Empty", PoxAddress{Version: 0x01}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.valid, IsValidPoxAddress(tc.addr))
			require.Equal(t, tc.valid, tc.addr.IsValid())
		})
	}

	addr := PoxAddress{Version: 0x01, HashBytes: []byte{0xde, 0xad}}
	require.Equal(t, "0x01:dead", addr.String())
}

func TestCallContext(t *testing.T) {
	require := require.New(t)

	cc := CallContext{Caller: "ST1.market"}
	require.EqualValues("ST1.market", cc.Origin(), "caller should be the origin without a sender")

	cc.Sender = "ST1OWNER"
	require.EqualValues("ST1OWNER", cc.Origin())
	require.EqualValues("ST1.market", cc.Caller)
}

func TestPrincipal(t *testing.T) {
	require := require.New(t)

	var empty Principal
	require.False(empty.IsValid())

	owner := Principal("ST1OWNER")
	require.True(owner.IsValid())
	require.EqualValues("ST1OWNER.delegation-marketplace", owner.ContractPrincipal(DefaultMarketplaceName))
}

func TestErrorCodes(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code uint32
	}{
		{ErrInvalidArgument, 1},
		{ErrOwnerOnly, 100},
		{ErrUnauthorized, 101},
		{ErrInvalidPoxAddress, 102},
		{ErrDelegationFailed, 103},
	} {
		module, code := errors.Code(tc.err)
		require.Equal(t, ModuleName, module, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestEventKind(t *testing.T) {
	require := require.New(t)

	require.Equal("marketplace_contract_changed", (&Event{MarketplaceContractChanged: &MarketplaceContractChangedEvent{}}).Kind())
	require.Equal("delegated", (&Event{Delegated: &DelegatedEvent{}}).Kind())
	require.Equal("revoked", (&Event{Revoked: &RevokedEvent{}}).Kind())
	require.Equal("unknown", (&Event{}).Kind())
}

func TestEventClone(t *testing.T) {
	require := require.New(t)

	ev := &Event{
		Sequence: 7,
		Delegated: &DelegatedEvent{
			Caller:     "ST1.market",
			Amount:     10,
			PoxAddress: PoxAddress{Version: PoxAddressVersion, HashBytes: []byte{1, 2, 3}},
		},
	}
	clone := ev.Clone()
	require.Equal(ev, clone)

	clone.Delegated.Amount = 11
	clone.Delegated.PoxAddress.HashBytes[0] = 0xff
	require.EqualValues(10, ev.Delegated.Amount, "clone should not share the payload")
	require.EqualValues(1, ev.Delegated.PoxAddress.HashBytes[0], "clone should not share the hash bytes")
	require.Nil(clone.Revoked)
	require.Nil(clone.MarketplaceContractChanged)
}
