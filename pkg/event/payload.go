package event

import (
	"encoding/json"
	"fmt"
)

// Payload is the variant-specific body of an event. The set of variants is
// closed: every implementation lives in this file and is registered in
// payloadFactories, which the exhaustiveness test checks against KnownKinds.
type Payload interface {
	// Kind returns the event type tag identifying the variant.
	Kind() string
}

// Event type tags, one per payload variant.
const (
	KindTaskClaimed       = "task.claimed"
	KindTaskCompleted     = "task.completed"
	KindTaskFailed        = "task.failed"
	KindKnowledgeStored   = "knowledge.stored"
	KindKnowledgeRecalled = "knowledge.recalled"
	KindToolExecuted      = "tool.executed"
	KindAgentStarted      = "agent.started"
	KindAgentStopped      = "agent.stopped"
	KindCoordRequested    = "coordination.requested"
	KindCoordResponded    = "coordination.responded"
	KindHumanEscalated    = "human.escalated"
)

// TaskClaimed records exclusive acquisition of a work item by a worker.
type TaskClaimed struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// Kind implements Payload.
func (TaskClaimed) Kind() string { return KindTaskClaimed }

// TaskCompleted records successful completion of a work item.
type TaskCompleted struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
	Summary  string `json:"summary,omitempty"`
}

// Kind implements Payload.
func (TaskCompleted) Kind() string { return KindTaskCompleted }

// TaskFailed records a failed work item, with a retryability hint for
// observers deciding whether to requeue.
type TaskFailed struct {
	TaskID    string `json:"task_id"`
	WorkerID  string `json:"worker_id"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// Kind implements Payload.
func (TaskFailed) Kind() string { return KindTaskFailed }

// KnowledgeStored is emitted after a knowledge entry is durably persisted.
type KnowledgeStored struct {
	EntryID       int64    `json:"entry_id"`
	KnowledgeType string   `json:"knowledge_type"`
	Tags          []string `json:"tags,omitempty"`
	SourceID      string   `json:"source_id"`
}

// Kind implements Payload.
func (KnowledgeStored) Kind() string { return KindKnowledgeStored }

// KnowledgeRecalled is emitted after every recall call, including recalls
// that matched nothing, so observers can watch memory usage.
type KnowledgeRecalled struct {
	Count        int      `json:"count"`
	MeanScore    float64  `json:"mean_score"`
	TopIDs       []int64  `json:"top_ids,omitempty"`
	TopSummaries []string `json:"top_summaries,omitempty"`
}

// Kind implements Payload.
func (KnowledgeRecalled) Kind() string { return KindKnowledgeRecalled }

// ToolExecuted records the outcome of a tool invocation.
type ToolExecuted struct {
	ToolID         string `json:"tool_id"`
	Success        bool   `json:"success"`
	DurationMillis int64  `json:"duration_millis"`
	Message        string `json:"message,omitempty"`
}

// Kind implements Payload.
func (ToolExecuted) Kind() string { return KindToolExecuted }

// AgentStarted marks an agent work loop coming online.
type AgentStarted struct {
	AgentID string `json:"agent_id"`
}

// Kind implements Payload.
func (AgentStarted) Kind() string { return KindAgentStarted }

// AgentStopped marks an agent work loop going offline.
type AgentStopped struct {
	AgentID string `json:"agent_id"`
}

// Kind implements Payload.
func (AgentStopped) Kind() string { return KindAgentStopped }

// CoordRequested records one agent asking another for help on a topic.
type CoordRequested struct {
	Target string `json:"target"`
	Topic  string `json:"topic"`
}

// Kind implements Payload.
func (CoordRequested) Kind() string { return KindCoordRequested }

// CoordResponded records an agent answering a coordination request.
type CoordResponded struct {
	Target string `json:"target"`
	Topic  string `json:"topic"`
}

// Kind implements Payload.
func (CoordResponded) Kind() string { return KindCoordResponded }

// HumanEscalated records a question routed to a human operator.
type HumanEscalated struct {
	PromptID string `json:"prompt_id"`
	Question string `json:"question"`
}

// Kind implements Payload.
func (HumanEscalated) Kind() string { return KindHumanEscalated }

// payloadFactories maps each kind to a constructor for decoding.
var payloadFactories = map[string]func() Payload{
	KindTaskClaimed:       func() Payload { return &TaskClaimed{} },
	KindTaskCompleted:     func() Payload { return &TaskCompleted{} },
	KindTaskFailed:        func() Payload { return &TaskFailed{} },
	KindKnowledgeStored:   func() Payload { return &KnowledgeStored{} },
	KindKnowledgeRecalled: func() Payload { return &KnowledgeRecalled{} },
	KindToolExecuted:      func() Payload { return &ToolExecuted{} },
	KindAgentStarted:      func() Payload { return &AgentStarted{} },
	KindAgentStopped:      func() Payload { return &AgentStopped{} },
	KindCoordRequested:    func() Payload { return &CoordRequested{} },
	KindCoordResponded:    func() Payload { return &CoordResponded{} },
	KindHumanEscalated:    func() Payload { return &HumanEscalated{} },
}

// KnownKinds returns every registered payload kind. Used by the
// exhaustiveness test so a new variant cannot be added silently.
func KnownKinds() []string {
	kinds := make([]string, 0, len(payloadFactories))
	for k := range payloadFactories {
		kinds = append(kinds, k)
	}
	return kinds
}

// SerializationError wraps a payload encode/decode failure. It fails the
// single read or write that hit it without corrupting the store.
type SerializationError struct {
	Kind  string
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize payload %q: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SerializationError) Unwrap() error { return e.Cause }

// MarshalPayload encodes a payload as JSON for persistence.
func MarshalPayload(p Payload) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", &SerializationError{Kind: p.Kind(), Cause: err}
	}
	return string(data), nil
}

// UnmarshalPayload decodes a persisted payload body for the given kind.
// Unknown kinds return a nil payload with no error so old logs containing
// retired variants can still be replayed.
func UnmarshalPayload(kind, data string) (Payload, error) {
	factory, ok := payloadFactories[kind]
	if !ok || data == "" {
		return nil, nil
	}
	p := factory()
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, &SerializationError{Kind: kind, Cause: err}
	}
	return p, nil
}
