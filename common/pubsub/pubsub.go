// Package pubsub implements a generic publish-subscribe interface.
package pubsub

import (
	"context"
	"reflect"
	"sync"

	"github.com/eapache/channels"
)

// ClosableSubscription is an interface for a subscription that can be
// closed.
type ClosableSubscription interface {
	// Close unsubscribes from the broker and releases resources.
	Close()
}

type contextSubscription struct {
	cancel context.CancelFunc
}

func (s *contextSubscription) Close() {
	s.cancel()
}

// NewContextSubscription creates a subscription that cancels the returned
// context when closed.
func NewContextSubscription(parent context.Context) (context.Context, ClosableSubscription) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &contextSubscription{cancel}
}

// Subscription is a Broker subscription instance.
type Subscription struct {
	b       *Broker
	ch      channels.Channel
	closeCh chan struct{}
	index   uint64
}

// Untyped returns the subscription's untyped output. Effort should be
// made to use Unwrap instead.
func (s *Subscription) Untyped() <-chan interface{} {
	return s.ch.Out()
}

// Unwrap ties the read end of the provided channel to the subscription's
// output. The provided channel is closed once the subscription is closed,
// even if values are still pending and nobody reads them.
func (s *Subscription) Unwrap(into interface{}) {
	chV := reflect.ValueOf(into)
	if chV.Kind() != reflect.Chan || chV.Type().ChanDir()&reflect.SendDir == 0 {
		panic("pubsub: Unwrap called with a non-sendable channel")
	}

	go func() {
		defer func() {
			chV.Close()
			// Drain so that the underlying channel's buffer goroutine exits.
			for range s.ch.Out() {
			}
		}()

		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.closeCh)},
			{Dir: reflect.SelectSend, Chan: chV},
		}
		for v := range s.ch.Out() {
			cases[1].Send = reflect.ValueOf(v)
			if chosen, _, _ := reflect.Select(cases); chosen == 0 {
				return
			}
		}
	}()
}

// Close unsubscribes from the Broker.
func (s *Subscription) Close() {
	s.b.Lock()
	defer s.b.Unlock()

	if _, ok := s.b.subscribers[s.index]; !ok {
		return
	}
	delete(s.b.subscribers, s.index)
	close(s.closeCh)
	s.ch.Close()
}

// Broker is a pubsub broker instance.
type Broker struct {
	sync.Mutex

	subscribers map[uint64]*Subscription
	nextIndex   uint64

	lastElem           interface{}
	pubLastOnSubscribe bool
}

// Subscribe subscribes to the Broker's broadcasts, and returns a
// subscription handle that can be used to receive broadcasts.
//
// Note: The returned subscription's channel will have an unbounded
// capacity.
func (b *Broker) Subscribe() *Subscription {
	return b.SubscribeBuffered(int64(channels.Infinity))
}

// SubscribeBuffered subscribes to the Broker's broadcasts, and returns a
// subscription handle that can be used to receive broadcasts.
//
// Buffer controls the capacity of a ring buffer: when the buffer is full
// the oldest buffered broadcast is dropped. A buffer of
// channels.Infinity results in an unbounded channel.
func (b *Broker) SubscribeBuffered(buffer int64) *Subscription {
	var ch channels.Channel
	if buffer == int64(channels.Infinity) {
		ch = channels.NewInfiniteChannel()
	} else {
		ch = channels.NewRingChannel(channels.BufferCap(buffer))
	}

	b.Lock()
	defer b.Unlock()

	sub := &Subscription{
		b:       b,
		ch:      ch,
		closeCh: make(chan struct{}),
		index:   b.nextIndex,
	}
	b.subscribers[sub.index] = sub
	b.nextIndex++

	if b.pubLastOnSubscribe && b.lastElem != nil {
		ch.In() <- b.lastElem
	}

	return sub
}

// Broadcast pushes the value v out to all subscribers.
func (b *Broker) Broadcast(v interface{}) {
	b.Lock()
	defer b.Unlock()

	for _, sub := range b.subscribers {
		sub.ch.In() <- v
	}

	if b.pubLastOnSubscribe {
		b.lastElem = v
	}
}

// NewBroker creates a new pubsub broker. If pubLastOnSubscribe is set,
// the last broadcast value is sent to each new subscriber.
func NewBroker(pubLastOnSubscribe bool) *Broker {
	return &Broker{
		subscribers:        make(map[uint64]*Subscription),
		pubLastOnSubscribe: pubLastOnSubscribe,
	}
}
