// Package human bridges autonomous agents to a person. An agent asks a
// question and blocks until someone responds or a timeout fires; nothing in
// the runtime ever hangs on an unanswered question.
package human

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarm/pkg/bus"
	"swarm/pkg/event"
)

// DefaultTimeout bounds how long Ask waits when the caller passes zero.
const DefaultTimeout = 30 * time.Minute

// TimeoutError reports an escalation nobody answered in time.
type TimeoutError struct {
	PromptID string
	Waited   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no human response for prompt %s after %s", e.PromptID, e.Waited)
}

// Prompt is one open question.
type Prompt struct {
	ID       string
	Source   string
	Question string
	Asked    time.Time
}

// pending is an open question plus its waiter.
type pending struct {
	prompt Prompt
	answer chan string
}

// Registry holds open questions and routes responses to blocked askers.
// It must be constructed explicitly; there is no package-level instance.
type Registry struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu     sync.Mutex
	open   map[string]*pending
	closed bool
}

// NewRegistry creates a Registry. Escalations are announced on b when it is
// non-nil; logger may be nil.
func NewRegistry(b *bus.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{bus: b, logger: logger, open: make(map[string]*pending)}
}

// Ask publishes an escalation and blocks until a response, the timeout
// (DefaultTimeout when zero), or ctx cancellation. The returned error is a
// *TimeoutError when nobody answered.
func (r *Registry) Ask(ctx context.Context, source, question string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	p := &pending{
		prompt: Prompt{
			ID:       uuid.NewString(),
			Source:   source,
			Question: question,
			Asked:    time.Now().UTC(),
		},
		answer: make(chan string, 1),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", fmt.Errorf("registry closed")
	}
	r.open[p.prompt.ID] = p
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.open, p.prompt.ID)
		r.mu.Unlock()
	}()

	if r.bus != nil {
		ev := event.New(source, event.UrgencyCritical, &event.HumanEscalated{
			PromptID: p.prompt.ID,
			Question: question,
		})
		if err := r.bus.Publish(ctx, ev); err != nil {
			r.logger.Warn("escalation event publish failed", "prompt", p.prompt.ID, "error", err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case answer, ok := <-p.answer:
		if !ok {
			return "", fmt.Errorf("registry closed while waiting for prompt %s", p.prompt.ID)
		}
		return answer, nil
	case <-timer.C:
		return "", &TimeoutError{PromptID: p.prompt.ID, Waited: timeout}
	case <-ctx.Done():
		return "", fmt.Errorf("ask cancelled: %w", ctx.Err())
	}
}

// Respond delivers an answer to an open prompt. Responding to an unknown or
// already-answered prompt returns an error.
func (r *Registry) Respond(promptID, answer string) error {
	r.mu.Lock()
	p, ok := r.open[promptID]
	if ok {
		delete(r.open, promptID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no open prompt %s", promptID)
	}
	p.answer <- answer
	return nil
}

// Pending lists open prompts, oldest first.
func (r *Registry) Pending() []Prompt {
	r.mu.Lock()
	out := make([]Prompt, 0, len(r.open))
	for _, p := range r.open {
		out = append(out, p.prompt)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Asked.Before(out[j].Asked) })
	return out
}

// Close releases every waiter with an error. Idempotent; further Asks fail
// immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	open := r.open
	r.open = make(map[string]*pending)
	r.mu.Unlock()

	for _, p := range open {
		close(p.answer)
	}
}
