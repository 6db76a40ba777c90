package pubsub

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/eapache/channels"
	"github.com/stretchr/testify/require"
)

const (
	recvTimeout = 5 * time.Second
	bufferSize  = 4
)

func TestPubSub(t *testing.T) {
	t.Run("Unbounded", testUnbounded)
	t.Run("Overwriting", testOverwriting)
	t.Run("LastOnSubscribe", testLastOnSubscribe)
	t.Run("CloseTwice", testCloseTwice)
	t.Run("CloseWithoutReading", testCloseWithoutReading)
}

func receive(t *testing.T, ch <-chan string, expected string) {
	select {
	case v := <-ch:
		require.Equal(t, expected, v)
	case <-time.After(recvTimeout):
		t.Fatalf("failed to receive %q", expected)
	}
}

func testUnbounded(t *testing.T) {
	broker := NewBroker(false)

	sub := broker.Subscribe()
	typedCh := make(chan string)
	sub.Unwrap(typedCh)

	values := []string{"delegated", "revoked", "marketplace_changed"}
	for _, v := range values {
		broker.Broadcast(v)
	}
	for _, v := range values {
		receive(t, typedCh, v)
	}

	require.NotPanics(t, func() { sub.Close() }, "Close()")
	require.Len(t, broker.subscribers, 0, "Subscriber map, post Close()")

	_, ok := <-typedCh
	require.False(t, ok, "unwrapped channel should be closed after Close()")
}

func testOverwriting(t *testing.T) {
	broker := NewBroker(false)

	sub := broker.SubscribeBuffered(bufferSize)
	untyped := sub.Untyped()

	for i := 0; i < bufferSize*3; i++ {
		broker.Broadcast(i)
	}
	// Let the ring channel settle before draining it.
	time.Sleep(100 * time.Millisecond)

	var last int
	for n := 0; n < bufferSize+1; n++ {
		select {
		case v := <-untyped:
			last = v.(int)
		case <-time.After(100 * time.Millisecond):
		}
	}
	require.Equal(t, bufferSize*3-1, last, "newest broadcast should survive overwriting")

	sub.Close()
}

func testLastOnSubscribe(t *testing.T) {
	broker := NewBroker(true)
	broker.Broadcast("ST1.market")

	for _, b := range []int64{
		int64(channels.Infinity),
		bufferSize,
	} {
		sub := broker.SubscribeBuffered(b)
		typedCh := make(chan string)
		sub.Unwrap(typedCh)

		receive(t, typedCh, "ST1.market")
		sub.Close()
	}
}

func testCloseTwice(t *testing.T) {
	broker := NewBroker(false)
	sub := broker.Subscribe()

	require.NotPanics(t, func() {
		sub.Close()
		sub.Close()
	}, "closing a subscription twice should be safe")
}

func testCloseWithoutReading(t *testing.T) {
	broker := NewBroker(false)

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		sub := broker.Subscribe()
		typedCh := make(chan string)
		sub.Unwrap(typedCh)

		broker.Broadcast("revoked")
		broker.Broadcast("delegated")
		sub.Close()
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, recvTimeout, 10*time.Millisecond, "unread subscriptions should not leak goroutines")
	require.Len(t, broker.subscribers, 0, "Subscriber map, post Close()")
}

func TestContextSubscription(t *testing.T) {
	require := require.New(t)

	ctx, sub := NewContextSubscription(context.Background())
	require.NoError(ctx.Err())
	sub.Close()
	require.ErrorIs(ctx.Err(), context.Canceled)
}
