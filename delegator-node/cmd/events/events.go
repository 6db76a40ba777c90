// Package events implements the gateway event sub-command.
package events

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/common/pubsub"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/client"
	cmdGrpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc"
)

// CfgFollow keeps printing new events as they are emitted.
const CfgFollow = "follow"

var (
	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "show recent gateway events",
		Args:  cobra.NoArgs,
		Run:   doEvents,
	}

	eventsFlags = flag.NewFlagSet("", flag.ContinueOnError)

	tableHeader = []string{"Seq", "Kind", "Caller", "Details"}

	logger = logging.GetLogger("cmd/events")
)

func eventRow(ev *api.Event) []string {
	row := []string{strconv.FormatUint(ev.Sequence, 10), ev.Kind(), "", ""}
	switch {
	case ev.MarketplaceContractChanged != nil:
		e := ev.MarketplaceContractChanged
		row[3] = fmt.Sprintf("%s -> %s", e.Previous, e.Current)
	case ev.Delegated != nil:
		e := ev.Delegated
		row[2] = e.Caller.String()
		row[3] = fmt.Sprintf("amount=%d pox_address=%s start_burn_height=%d lock_period=%d",
			e.Amount, e.PoxAddress, e.StartBurnHeight, e.LockPeriod,
		)
	case ev.Revoked != nil:
		e := ev.Revoked
		row[2] = e.Caller.String()
		row[3] = fmt.Sprintf("amount=%d", e.Amount)
	}
	return row
}

func writeEvents(w io.Writer, events []*api.Event, header bool) {
	table := tablewriter.NewWriter(w)
	if header {
		table.SetHeader(tableHeader)
	}
	for _, ev := range events {
		table.Append(eventRow(ev))
	}
	table.Render()
}

func doEvents(cmd *cobra.Command, args []string) {
	conn, backend := client.DoConnect(cmd)
	defer conn.Close()

	ctx := context.Background()

	// Subscribe before querying the history so that nothing is missed.
	var (
		ch  <-chan *api.Event
		sub pubsub.ClosableSubscription
		err error
	)
	follow := viper.GetBool(CfgFollow)
	if follow {
		if ch, sub, err = backend.WatchEvents(ctx); err != nil {
			client.ExitOnCallError(logger, "failed to watch events", err)
		}
		defer sub.Close()
	}

	events, err := backend.GetEvents(ctx)
	if err != nil {
		client.ExitOnCallError(logger, "failed to query events", err)
	}
	writeEvents(os.Stdout, events, true)

	if !follow {
		return
	}

	var lastSeq uint64
	if n := len(events); n > 0 {
		lastSeq = events[n-1].Sequence
	}
	for ev := range ch {
		if ev.Sequence <= lastSeq {
			continue
		}
		lastSeq = ev.Sequence
		writeEvents(os.Stdout, []*api.Event{ev}, false)
	}
}

// Register registers the events sub-command.
func Register(parentCmd *cobra.Command) {
	eventsCmd.Flags().AddFlagSet(cmdGrpc.ClientFlags)
	eventsCmd.Flags().AddFlagSet(eventsFlags)
	parentCmd.AddCommand(eventsCmd)
}

func init() {
	eventsFlags.BoolP(CfgFollow, "f", false, "keep printing new events")
	_ = viper.BindPFlags(eventsFlags)
}
