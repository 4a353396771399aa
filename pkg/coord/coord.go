// Package coord derives a live graph of inter-agent interactions purely by
// observing bus events. The tracker is read-only: it never publishes, never
// alters delivery, and agents do not know it exists.
package coord

import (
	"context"
	"sort"
	"sync"
	"time"

	"swarm/pkg/bus"
	"swarm/pkg/event"
)

// Edge is one directed interaction between two participants, aggregated
// over time.
type Edge struct {
	From     string
	To       string
	Kind     string // the event type that produced the edge
	Count    int
	LastSeen time.Time
}

// edgeKey identifies an aggregated edge.
type edgeKey struct {
	from, to, kind string
}

// Tracker observes the bus and maintains the interaction graph.
type Tracker struct {
	mu    sync.Mutex
	edges map[edgeKey]*Edge
	sub   *bus.Subscription
	bus   *bus.Bus
}

// NewTracker creates a Tracker subscribed to all events on b.
func NewTracker(b *bus.Bus) *Tracker {
	t := &Tracker{edges: make(map[edgeKey]*Edge), bus: b}
	t.sub = b.Subscribe("coord-tracker", "", nil, t.observe)
	return t
}

// Close detaches the tracker from the bus. The graph remains queryable.
func (t *Tracker) Close() {
	t.bus.Unsubscribe(t.sub)
}

// observe derives at most one edge per event. Events that involve only one
// participant are ignored.
func (t *Tracker) observe(_ context.Context, e event.Event) {
	var to, kind string
	switch p := e.Payload.(type) {
	case *event.CoordRequested:
		to, kind = p.Target, e.Type
	case *event.CoordResponded:
		to, kind = p.Target, e.Type
	case *event.HumanEscalated:
		to, kind = "human", e.Type
	case *event.ToolExecuted:
		to, kind = "tool:"+p.ToolID, e.Type
	default:
		return
	}
	if to == "" || to == e.Source {
		return
	}

	key := edgeKey{from: e.Source, to: to, kind: kind}
	t.mu.Lock()
	edge, ok := t.edges[key]
	if !ok {
		edge = &Edge{From: e.Source, To: to, Kind: kind}
		t.edges[key] = edge
	}
	edge.Count++
	if e.Timestamp.After(edge.LastSeen) {
		edge.LastSeen = e.Timestamp
	}
	t.mu.Unlock()
}

// Snapshot returns a copy of every edge, sorted by from, to, kind.
func (t *Tracker) Snapshot() []Edge {
	t.mu.Lock()
	out := make([]Edge, 0, len(t.edges))
	for _, e := range t.edges {
		out = append(out, *e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Interactions returns every edge touching the given participant, in
// Snapshot order.
func (t *Tracker) Interactions(agent string) []Edge {
	var out []Edge
	for _, e := range t.Snapshot() {
		if e.From == agent || e.To == agent {
			out = append(out, e)
		}
	}
	return out
}
