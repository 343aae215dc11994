package tracing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Broker fans flushed events out to live subscribers. Publishing never
// blocks: a subscriber whose channel is full drops events, and every
// outcome is counted in the subscriber's stats. When nobody is subscribed,
// publish exits on a single atomic load.
type Broker struct {
	active atomic.Bool

	mtx  sync.Mutex
	subs map[chan<- Event]*subscriber
}

type subscriber struct {
	allow func(Event) bool
	ch    chan<- Event
	stats SubscriberStats
}

// SubscriberStats counts publish outcomes for one subscriber.
type SubscriberStats struct {
	Skips uint64 `json:"skips"`
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

func (s SubscriberStats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}

// NewBroker returns a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{
		subs: map[chan<- Event]*subscriber{},
	}
}

func (b *Broker) publish(events []Event) {
	if !b.active.Load() {
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(b.subs) <= 0 { // re-check, might have changed
		return
	}

	for _, ev := range events {
		for _, sub := range b.subs {
			if sub.allow != nil && !sub.allow(ev) {
				sub.stats.Skips++
				continue
			}
			select {
			case sub.ch <- ev:
				sub.stats.Sends++
			default:
				sub.stats.Drops++
			}
		}
	}
}

// Subscribe registers ch to receive events that pass the allow predicate
// (nil allows everything), blocks until ctx is done, and then unsubscribes
// and returns the subscriber's stats. The channel should be buffered: sends
// to it never block, and a full channel counts as a drop.
func (b *Broker) Subscribe(ctx context.Context, allow func(Event) bool, ch chan<- Event) (SubscriberStats, error) {
	if err := func() error {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		if _, ok := b.subs[ch]; ok {
			return fmt.Errorf("already subscribed")
		}

		b.subs[ch] = &subscriber{
			allow: allow,
			ch:    ch,
		}
		b.active.Store(true)

		return nil
	}(); err != nil {
		return SubscriberStats{}, err
	}

	<-ctx.Done()

	sub := func() *subscriber {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		sub := b.subs[ch]
		delete(b.subs, ch)
		b.active.Store(len(b.subs) > 0)

		return sub
	}()

	if sub == nil {
		return SubscriberStats{}, fmt.Errorf("not subscribed (programmer error)")
	}

	return sub.stats, ctx.Err()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.subs)
}
