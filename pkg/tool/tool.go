// Package tool defines the tool catalog surface: tool descriptors, immutable
// execution requests, terminal outcomes, and the status stream executors emit
// while a tool runs.
package tool

import (
	"context"
	"time"
)

// AutonomyLevel states how much oversight a tool requires.
type AutonomyLevel string

const (
	// AutonomyFull tools run without human review.
	AutonomyFull AutonomyLevel = "full"
	// AutonomySupervised tools run but their outcomes are flagged for review.
	AutonomySupervised AutonomyLevel = "supervised"
	// AutonomyApproval tools require human approval before execution.
	AutonomyApproval AutonomyLevel = "approval"
)

// Family distinguishes where a tool executes.
type Family string

const (
	// FamilyLocal tools run in-process.
	FamilyLocal Family = "local"
	// FamilyRemote tools run behind an external tool source.
	FamilyRemote Family = "remote"
)

// Tool describes one executable capability in the catalog.
type Tool struct {
	ID          string
	Name        string
	Description string
	Autonomy    AutonomyLevel
	Family      Family

	// Run performs the tool's work for local tools. Remote tools leave it
	// nil and are invoked through a tool source instead.
	Run func(ctx context.Context, req Request) (string, error)
}

// Request carries everything a tool needs to execute. Requests are treated
// as immutable: enrichment returns a copy, never mutates.
type Request struct {
	Ticket       string
	Task         string
	Instructions string
	Workspace    string
	Intent       string
	Params       map[string]string
}

// WithParams returns a copy of r with the given parameters merged over its
// existing ones. The receiver is unchanged.
func (r Request) WithParams(params map[string]string) Request {
	merged := make(map[string]string, len(r.Params)+len(params))
	for k, v := range r.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	r.Params = merged
	return r
}

// WithIntent returns a copy of r with the intent replaced.
func (r Request) WithIntent(intent string) Request {
	r.Intent = intent
	return r
}

// Outcome is the terminal result of one tool execution. Exactly one of
// Success or Failure is set.
type Outcome struct {
	Success *Success
	Failure *Failure
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool { return o.Success != nil }

// Duration returns the execution wall time.
func (o Outcome) Duration() time.Duration {
	switch {
	case o.Success != nil:
		return o.Success.Ended.Sub(o.Success.Started)
	case o.Failure != nil:
		return o.Failure.Ended.Sub(o.Failure.Started)
	}
	return 0
}

// Success describes a completed execution.
type Success struct {
	Summary   string
	Artifacts []string
	Started   time.Time
	Ended     time.Time
}

// Failure describes a failed execution. Retryable hints whether a later
// attempt could succeed.
type Failure struct {
	Message   string
	Retryable bool
	Started   time.Time
	Ended     time.Time
}

// StatusKind labels one entry in an execution's status stream.
type StatusKind string

const (
	StatusStarted   StatusKind = "started"
	StatusProgress  StatusKind = "progress"
	StatusCompleted StatusKind = "completed"
	StatusFailed    StatusKind = "failed"
)

// Terminal reports whether this status ends the stream.
func (k StatusKind) Terminal() bool {
	return k == StatusCompleted || k == StatusFailed
}

// Status is one entry in the stream an executor emits while running a tool.
// Outcome is set only on terminal statuses.
type Status struct {
	Kind    StatusKind
	Message string
	At      time.Time
	Outcome *Outcome
}

// Executor runs a tool and reports progress as a status stream. The returned
// channel always ends with exactly one terminal status carrying the Outcome,
// after which it is closed.
type Executor interface {
	Execute(ctx context.Context, req Request, t Tool) <-chan Status
}
