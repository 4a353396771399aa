// Package bus implements the in-process publish/subscribe dispatcher. Live
// subscribers receive matching events in per-subscriber FIFO order; history
// is available only through explicit replay against the event store.
//
// A handler failure (panic) is recovered, logged, and counted; it never
// reaches the publisher or other subscribers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swarm/pkg/event"
	"swarm/pkg/eventstore"
	"swarm/pkg/metrics"
)

// Handler processes one delivered event. Handlers run on the subscription's
// own goroutine; a slow handler delays only its own subscriber.
type Handler func(ctx context.Context, e event.Event)

// Filter is an optional content predicate applied after the event-type match.
type Filter func(e event.Event) bool

// subscriptionBuffer is the per-subscriber delivery queue depth. Publishing
// blocks when a subscriber falls this far behind rather than dropping.
const subscriptionBuffer = 1024

// Subscription is a live registration on the bus. It exists only in memory
// and dies with Unsubscribe or bus Close; it never affects replay.
type Subscription struct {
	id         uint64
	Subscriber string
	EventType  string // empty = all types
	filter     Filter
	handler    Handler

	mu     sync.Mutex
	closed bool
	ch     chan event.Event
	done   chan struct{}
}

// deliver enqueues an event for this subscription. Safe against a concurrent
// Unsubscribe: a closed subscription silently drops.
func (s *Subscription) deliver(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- e
}

// close marks the subscription dead and stops its delivery goroutine.
func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}

// Bus routes published events to live subscribers and persists every
// published event to the store before dispatch.
type Bus struct {
	store   *eventstore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// New creates a Bus. store may be nil for a purely in-memory bus (no
// persistence, Replay returns an error); logger and m may be nil.
func New(store *eventstore.Store, logger *slog.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		store:   store,
		logger:  logger,
		metrics: m,
		subs:    make(map[uint64]*Subscription),
	}
}

// Subscribe registers a handler for events of the given type (empty string
// for all types) with an optional content filter. Late subscribers never see
// events published before this call.
func (b *Bus) Subscribe(subscriberID, eventType string, filter Filter, handler Handler) *Subscription {
	sub := &Subscription{
		Subscriber: subscriberID,
		EventType:  eventType,
		filter:     filter,
		handler:    handler,
		ch:         make(chan event.Event, subscriptionBuffer),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		close(sub.done)
		sub.closed = true
		return sub
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.Subscriptions.Inc()
	}

	go b.deliveryLoop(sub)
	return sub
}

// deliveryLoop drains one subscription's queue, isolating handler panics.
func (b *Bus) deliveryLoop(sub *Subscription) {
	defer close(sub.done)
	for e := range sub.ch {
		b.invoke(sub, e)
	}
}

// invoke runs the handler with panic isolation.
func (b *Bus) invoke(sub *Subscription, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.HandlerErrors.Inc()
			}
			b.logger.Error("subscriber handler panicked",
				"subscriber", sub.Subscriber, "event_type", e.Type, "event_id", e.ID, "panic", r)
		}
	}()
	sub.handler(context.Background(), e)
	if b.metrics != nil {
		b.metrics.EventsDelivered.Inc()
	}
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, live := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if live {
		if b.metrics != nil {
			b.metrics.Subscriptions.Dec()
		}
		sub.close()
	}
}

// Publish persists the event, then dispatches it to every live subscription
// whose event type and content filter match. Dispatch to different
// subscribers is independent; the publisher never sees handler failures.
func (b *Bus) Publish(ctx context.Context, e event.Event) error {
	if b.store != nil {
		if err := b.store.Append(ctx, e); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	if b.metrics != nil {
		b.metrics.EventsPublished.Inc()
	}

	b.mu.Lock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.EventType != "" && sub.EventType != e.Type {
			continue
		}
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		matched = append(matched, sub)
	}
	b.mu.Unlock()

	for _, sub := range matched {
		sub.deliver(e)
	}
	return nil
}

// Replay reads persisted events with timestamps in [from, to] inclusive in
// ascending order and applies filters. It performs a fresh read on every
// call and never touches live subscriptions.
func (b *Bus) Replay(ctx context.Context, from, to time.Time, filters event.RelayFilters) ([]event.Event, error) {
	if b.store == nil {
		return nil, fmt.Errorf("replay: bus has no event store")
	}
	stored, err := b.store.BetweenFiltered(ctx, from, to, filters.Types, filters.Sources)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	out := make([]event.Event, 0, len(stored))
	for _, e := range stored {
		if filters.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close tears down every subscription. Further publishes reach no one;
// further subscribes are returned already closed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		if b.metrics != nil {
			b.metrics.Subscriptions.Dec()
		}
		sub.close()
	}
}
