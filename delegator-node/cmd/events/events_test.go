package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

func TestWriteEvents(t *testing.T) {
	require := require.New(t)

	addr := api.PoxAddress{Version: api.PoxAddressVersion, HashBytes: bytes.Repeat([]byte{0xab}, api.PoxAddressHashSize)}
	events := []*api.Event{
		{
			Sequence: 1,
			MarketplaceContractChanged: &api.MarketplaceContractChangedEvent{
				Previous: "ST1.old",
				Current:  "ST1.new",
			},
		},
		{
			Sequence: 2,
			Delegated: &api.DelegatedEvent{
				Caller:          "ST1.new",
				Amount:          1000,
				PoxAddress:      addr,
				StartBurnHeight: 5,
				LockPeriod:      2,
			},
		},
		{
			Sequence: 3,
			Revoked:  &api.RevokedEvent{Caller: "ST1.new", Amount: 400},
		},
	}

	var buf bytes.Buffer
	writeEvents(&buf, events, true)
	out := buf.String()

	for _, want := range []string{
		"ST1.old -> ST1.new",
		"amount=1000",
		"pox_address=" + addr.String(),
		"lock_period=2",
		"amount=400",
	} {
		require.True(strings.Contains(out, want), "output should contain %q:\n%s", want, out)
	}

	row := eventRow(events[2])
	require.Equal([]string{"3", events[2].Kind(), "ST1.new", "amount=400"}, row)
}
