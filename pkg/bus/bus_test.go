package bus

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"swarm/pkg/event"
	"swarm/pkg/eventstore"

	_ "modernc.org/sqlite"
)

// setupBus creates a bus backed by an in-memory SQLite event store.
func setupBus(t *testing.T) *Bus {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := eventstore.NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}

	b := New(store, nil, nil)
	t.Cleanup(b.Close)
	return b
}

// collector records delivered events behind a mutex.
type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) handle(_ context.Context, e event.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishReachesMatchingSubscriber(t *testing.T) {
	b := setupBus(t)
	var c collector
	b.Subscribe("obs", event.KindTaskClaimed, nil, c.handle)

	e := event.New("agent-a", event.UrgencyLow, &event.TaskClaimed{TaskID: "t-1", WorkerID: "agent-a"})
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return len(c.snapshot()) == 1 })
	if got := c.snapshot()[0]; got.ID != e.ID {
		t.Errorf("delivered wrong event: %s", got.ID)
	}
}

func TestTypeAndContentFilterRestrictDelivery(t *testing.T) {
	b := setupBus(t)
	var typed, filtered, all collector

	b.Subscribe("typed", event.KindTaskCompleted, nil, typed.handle)
	b.Subscribe("filtered", "", func(e event.Event) bool { return e.Urgency == event.UrgencyCritical }, filtered.handle)
	b.Subscribe("all", "", nil, all.handle)

	ctx := context.Background()
	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.TaskClaimed{TaskID: "t-1"}))
	_ = b.Publish(ctx, event.New("a", event.UrgencyCritical, &event.TaskCompleted{TaskID: "t-1"}))

	waitFor(t, func() bool { return len(all.snapshot()) == 2 })
	waitFor(t, func() bool { return len(typed.snapshot()) == 1 })
	waitFor(t, func() bool { return len(filtered.snapshot()) == 1 })

	if typed.snapshot()[0].Type != event.KindTaskCompleted {
		t.Error("typed subscriber got wrong event type")
	}
	if filtered.snapshot()[0].Urgency != event.UrgencyCritical {
		t.Error("content filter leaked a non-critical event")
	}
}

func TestSubscriberIsolationOnPanic(t *testing.T) {
	b := setupBus(t)
	var survivor1, survivor2 collector

	b.Subscribe("bomber", "", nil, func(context.Context, event.Event) {
		panic("handler exploded")
	})
	b.Subscribe("s1", "", nil, survivor1.handle)
	b.Subscribe("s2", "", nil, survivor2.handle)

	e := event.New("a", event.UrgencyLow, &event.AgentStarted{AgentID: "a"})
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish must not surface handler panic: %v", err)
	}

	waitFor(t, func() bool { return len(survivor1.snapshot()) == 1 && len(survivor2.snapshot()) == 1 })
}

func TestPerSubscriberFIFO(t *testing.T) {
	b := setupBus(t)
	var c collector
	b.Subscribe("obs", "", nil, c.handle)

	ctx := context.Background()
	var published []string
	for i := 0; i < 50; i++ {
		e := event.New("a", event.UrgencyLow, &event.TaskClaimed{TaskID: fmt.Sprintf("t-%d", i)})
		published = append(published, e.ID)
		_ = b.Publish(ctx, e)
	}

	waitFor(t, func() bool { return len(c.snapshot()) == 50 })
	for i, e := range c.snapshot() {
		if e.ID != published[i] {
			t.Fatalf("delivery order broken at %d: got %s want %s", i, e.ID, published[i])
		}
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := setupBus(t)
	ctx := context.Background()
	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.AgentStarted{AgentID: "a"}))

	var c collector
	b.Subscribe("late", "", nil, c.handle)
	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.AgentStopped{AgentID: "a"}))

	waitFor(t, func() bool { return len(c.snapshot()) == 1 })
	if c.snapshot()[0].Type != event.KindAgentStopped {
		t.Error("late subscriber received a pre-subscription event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := setupBus(t)
	var c collector
	sub := b.Subscribe("obs", "", nil, c.handle)

	ctx := context.Background()
	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.AgentStarted{AgentID: "a"}))
	waitFor(t, func() bool { return len(c.snapshot()) == 1 })

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // idempotent

	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.AgentStopped{AgentID: "a"}))
	time.Sleep(50 * time.Millisecond)
	if len(c.snapshot()) != 1 {
		t.Errorf("received %d events after unsubscribe, want 1", len(c.snapshot()))
	}
}

func TestReplayDeterministicAndFiltered(t *testing.T) {
	b := setupBus(t)
	ctx := context.Background()

	_ = b.Publish(ctx, event.New("agent-a", event.UrgencyLow, &event.TaskClaimed{TaskID: "t-1"}))
	_ = b.Publish(ctx, event.New("agent-b", event.UrgencyHigh, &event.TaskCompleted{TaskID: "t-1"}))
	_ = b.Publish(ctx, event.New("agent-a", event.UrgencyLow, &event.TaskCompleted{TaskID: "t-2"}))

	from := time.Now().Add(-time.Minute)
	to := time.Now().Add(time.Minute)

	first, err := b.Replay(ctx, from, to, event.NoFilters)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("replay len = %d, want 3", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].Timestamp.Before(first[i-1].Timestamp) {
			t.Error("replay not ascending by timestamp")
		}
	}

	// Repeated call returns the identical sequence.
	second, err := b.Replay(ctx, from, to, event.NoFilters)
	if err != nil {
		t.Fatalf("replay 2: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("replay not deterministic: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("replay order differs at %d", i)
		}
	}

	// Filtered replay is the unfiltered replay filtered.
	f := event.RelayFilters{Types: []string{event.KindTaskCompleted}, Sources: []string{"agent-a"}}
	filtered, err := b.Replay(ctx, from, to, f)
	if err != nil {
		t.Fatalf("replay filtered: %v", err)
	}
	var want []event.Event
	for _, e := range first {
		if f.Matches(e) {
			want = append(want, e)
		}
	}
	if len(filtered) != len(want) {
		t.Fatalf("filtered len = %d, want %d", len(filtered), len(want))
	}
	for i := range want {
		if filtered[i].ID != want[i].ID {
			t.Errorf("filtered replay mismatch at %d", i)
		}
	}
}

func TestReplayDoesNotTouchLiveSubscriptions(t *testing.T) {
	b := setupBus(t)
	ctx := context.Background()
	_ = b.Publish(ctx, event.New("a", event.UrgencyLow, &event.AgentStarted{AgentID: "a"}))

	var c collector
	b.Subscribe("obs", "", nil, c.handle)

	if _, err := b.Replay(ctx, time.Now().Add(-time.Hour), time.Now(), event.NoFilters); err != nil {
		t.Fatalf("replay: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(c.snapshot()) != 0 {
		t.Error("replay leaked events into a live subscription")
	}
}

func TestCloseTearsDownSubscriptions(t *testing.T) {
	b := setupBus(t)
	var c collector
	b.Subscribe("obs", "", nil, c.handle)
	b.Close()
	b.Close() // idempotent

	_ = b.Publish(context.Background(), event.New("a", event.UrgencyLow, &event.AgentStarted{AgentID: "a"}))
	time.Sleep(50 * time.Millisecond)
	if len(c.snapshot()) != 0 {
		t.Error("closed bus still delivering")
	}
}
