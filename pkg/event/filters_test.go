package event

import (
	"testing"
	"time"
)

func sampleEvent() Event {
	return Event{
		ID:        "ev-1",
		Type:      KindTaskClaimed,
		Source:    "agent-a",
		Urgency:   UrgencyHigh,
		Timestamp: time.Now(),
		Payload:   &TaskClaimed{TaskID: "t-1", WorkerID: "agent-a"},
	}
}

func TestNoFiltersMatchesEverything(t *testing.T) {
	events := []Event{
		sampleEvent(),
		{ID: "x", Type: "unknown.kind", Source: "", Urgency: UrgencyLow},
		{},
	}
	for _, e := range events {
		if !NoFilters.Matches(e) {
			t.Errorf("NoFilters rejected event %+v", e)
		}
	}
}

func TestFilterDimensions(t *testing.T) {
	e := sampleEvent()

	tests := []struct {
		name  string
		f     RelayFilters
		match bool
	}{
		{"type match", RelayFilters{Types: []string{KindTaskClaimed}}, true},
		{"type mismatch", RelayFilters{Types: []string{KindTaskFailed}}, false},
		{"type OR within dimension", RelayFilters{Types: []string{KindTaskFailed, KindTaskClaimed}}, true},
		{"source match", RelayFilters{Sources: []string{"agent-a"}}, true},
		{"source mismatch", RelayFilters{Sources: []string{"agent-b"}}, false},
		{"urgency match", RelayFilters{Urgencies: []Urgency{UrgencyHigh}}, true},
		{"urgency mismatch", RelayFilters{Urgencies: []Urgency{UrgencyLow, UrgencyMedium}}, false},
		{"id match", RelayFilters{IDs: []string{"ev-1"}}, true},
		{"id mismatch", RelayFilters{IDs: []string{"ev-2"}}, false},
		{
			"AND across dimensions, all pass",
			RelayFilters{Types: []string{KindTaskClaimed}, Sources: []string{"agent-a"}, Urgencies: []Urgency{UrgencyHigh}},
			true,
		},
		{
			"AND across dimensions, one fails",
			RelayFilters{Types: []string{KindTaskClaimed}, Sources: []string{"agent-b"}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(e); got != tt.match {
				t.Errorf("Matches = %v, want %v", got, tt.match)
			}
		})
	}
}

func TestUrgencyValid(t *testing.T) {
	for _, u := range []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical} {
		if !u.Valid() {
			t.Errorf("%q should be valid", u)
		}
	}
	if Urgency("urgent").Valid() {
		t.Error("unknown urgency should be invalid")
	}
}
