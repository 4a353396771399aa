// Package event defines the immutable event model shared by every component
// of the runtime: typed payload variants, urgency levels, and the relay
// filters used for both live dispatch and historical replay.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Urgency classifies how quickly subscribers should react to an event.
type Urgency string

// Urgency levels, lowest to highest.
const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether u is one of the defined urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Event is the immutable record of something that happened. Events are never
// mutated or deleted once created; the event store keeps the permanent log.
type Event struct {
	ID        string
	Type      string
	Source    string
	Urgency   Urgency
	Timestamp time.Time
	Payload   Payload
}

// New creates an Event with a fresh ID and the current time. The event type
// is taken from the payload's kind so the two can never disagree.
func New(source string, urgency Urgency, p Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      p.Kind(),
		Source:    source,
		Urgency:   urgency,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}
}
