// Package metrics wires prometheus instrumentation for the runtime. The
// registry is constructed explicitly and passed into components rather than
// using the global default, so tests can run many instances side by side.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the bus and work loop.
type Metrics struct {
	registry *prometheus.Registry

	EventsPublished prometheus.Counter
	EventsDelivered prometheus.Counter
	HandlerErrors   prometheus.Counter
	Subscriptions   prometheus.Gauge

	ItemsClaimed   prometheus.Counter
	ItemsProcessed prometheus.Counter
	ClaimsLost     prometheus.Counter
	LoopThrottled  prometheus.Counter
	LoopErrors     prometheus.Counter
}

// New creates a Metrics with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_bus_events_published_total",
			Help: "Events published to the bus.",
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_bus_events_delivered_total",
			Help: "Event deliveries to subscribers.",
		}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_bus_handler_errors_total",
			Help: "Subscriber handler panics recovered by the bus.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_bus_subscriptions",
			Help: "Live subscriptions on the bus.",
		}),
		ItemsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_loop_items_claimed_total",
			Help: "Work items claimed by the loop.",
		}),
		ItemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_loop_items_processed_total",
			Help: "Work items fully processed by the loop.",
		}),
		ClaimsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_loop_claims_lost_total",
			Help: "Claim races lost to another worker.",
		}),
		LoopThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_loop_throttled_total",
			Help: "Loop iterations skipped by the hourly rate limit.",
		}),
		LoopErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_loop_errors_total",
			Help: "Unexpected errors absorbed by the loop.",
		}),
	}
	reg.MustRegister(
		m.EventsPublished, m.EventsDelivered, m.HandlerErrors, m.Subscriptions,
		m.ItemsClaimed, m.ItemsProcessed, m.ClaimsLost, m.LoopThrottled, m.LoopErrors,
	)
	return m
}

// Handler returns an HTTP handler exposing the registry in the standard
// prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
