package flags

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

func TestCallContext(t *testing.T) {
	require := require.New(t)

	_, err := CallContext()
	require.Error(err, "caller is required")

	require.NoError(CallFlags.Set(CfgCaller, "ST1.market"))
	call, err := CallContext()
	require.NoError(err)
	require.Equal(api.CallContext{Caller: "ST1.market"}, call)

	require.NoError(CallFlags.Set(CfgSender, "ST1OWNER"))
	call, err = CallContext()
	require.NoError(err)
	require.EqualValues("ST1OWNER", call.Origin())
}

func TestPoxAddress(t *testing.T) {
	require := require.New(t)

	require.NoError(PoxAddressFlags.Set(CfgPoxHashBytes, "00112233445566778899aabbccddeeff00112233"))
	addr, err := PoxAddress()
	require.NoError(err)
	require.True(addr.IsValid())
	require.EqualValues(0x01, addr.Version)
	require.Len(addr.HashBytes, 20)

	require.NoError(PoxAddressFlags.Set(CfgPoxVersion, "2"))
	addr, err = PoxAddress()
	require.NoError(err)
	require.False(addr.IsValid(), "version 2 is not accepted")

	require.NoError(PoxAddressFlags.Set(CfgPoxVersion, "256"))
	_, err = PoxAddress()
	require.Error(err, "version must fit a byte")

	viper.Set(CfgPoxVersion, 1)
	viper.Set(CfgPoxHashBytes, "zz")
	_, err = PoxAddress()
	require.Error(err, "malformed hash")
}
