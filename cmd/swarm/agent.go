package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"swarm/pkg/bus"
	"swarm/pkg/event"
	"swarm/pkg/tool"
	"swarm/pkg/worker"
)

// taskSpec is the on-disk shape of one queued work item.
type taskSpec struct {
	ID           string            `json:"id"`
	Tool         string            `json:"tool"`
	Intent       string            `json:"intent"`
	Task         string            `json:"task,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// runner executes a tool request and reports the outcome.
type runner interface {
	Execute(ctx context.Context, t tool.Tool, req tool.Request) tool.Outcome
}

// spoolAgent serves work from a directory of JSON task files. Claiming is an
// atomic rename, so several loops can share one spool without double
// execution. Finished items move to .done or .failed; retryable failures go
// back into the queue.
type spoolAgent struct {
	dir     string
	agentID string
	engine  runner
	bus     *bus.Bus
	logger  *slog.Logger
	tools   map[string]tool.Tool
}

// newSpoolAgent creates a spool agent over dir. The bus may be nil.
func newSpoolAgent(dir, agentID string, eng runner, b *bus.Bus, logger *slog.Logger) *spoolAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &spoolAgent{
		dir:     dir,
		agentID: agentID,
		engine:  eng,
		bus:     b,
		logger:  logger,
		tools:   make(map[string]tool.Tool),
	}
}

// RegisterTool makes a local tool available to task files by id.
func (a *spoolAgent) RegisterTool(t tool.Tool) {
	a.tools[t.ID] = t
}

// ClaimableWork returns the oldest unclaimed task file name, or "" when the
// spool is empty.
func (a *spoolAgent) ClaimableWork(_ context.Context) (string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return "", fmt.Errorf("read spool %s: %w", a.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[0], nil
}

// Claim takes exclusive ownership of a task file by renaming it. A rename
// that finds the file gone means another loop won the race.
func (a *spoolAgent) Claim(_ context.Context, workID string) error {
	src := filepath.Join(a.dir, workID)
	if err := os.Rename(src, src+".claimed"); err != nil {
		if os.IsNotExist(err) {
			return &worker.ClaimLostError{WorkID: workID, Holder: "peer"}
		}
		return fmt.Errorf("claim %s: %w", workID, err)
	}
	return nil
}

// Execute runs a claimed task through the engine and files the result.
func (a *spoolAgent) Execute(ctx context.Context, workID string) error {
	claimed := filepath.Join(a.dir, workID+".claimed")
	data, err := os.ReadFile(claimed)
	if err != nil {
		return fmt.Errorf("read claimed task %s: %w", workID, err)
	}

	var spec taskSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		a.file(claimed, ".failed")
		return fmt.Errorf("parse task %s: %w", workID, err)
	}

	t, err := a.resolveTool(spec.Tool)
	if err != nil {
		a.file(claimed, ".failed")
		return fmt.Errorf("task %s: %w", workID, err)
	}

	req := tool.Request{
		Ticket:       spec.ID,
		Task:         spec.Task,
		Instructions: spec.Instructions,
		Workspace:    spec.Workspace,
		Intent:       spec.Intent,
		Params:       spec.Params,
	}

	started := time.Now()
	outcome := a.engine.Execute(ctx, t, req)
	a.announce(ctx, t.ID, outcome, time.Since(started))

	if outcome.Succeeded() {
		a.file(claimed, ".done")
		return nil
	}

	f := outcome.Failure
	if f != nil && f.Retryable {
		// Back into the queue for a later poll.
		if err := os.Rename(claimed, filepath.Join(a.dir, workID)); err != nil {
			a.logger.Warn("requeue failed", "work", workID, "error", err)
		}
		return fmt.Errorf("task %s failed (retryable): %s", workID, f.Message)
	}
	a.file(claimed, ".failed")
	msg := "no outcome"
	if f != nil {
		msg = f.Message
	}
	return fmt.Errorf("task %s failed: %s", workID, msg)
}

// resolveTool maps a task's tool id to a registered local tool or, for
// namespaced ids, a remote tool served over the tool protocol.
func (a *spoolAgent) resolveTool(id string) (tool.Tool, error) {
	if id == "" {
		return tool.Tool{}, fmt.Errorf("task has no tool")
	}
	if t, ok := a.tools[id]; ok {
		return t, nil
	}
	if strings.Contains(id, ":") {
		return tool.Tool{
			ID:       id,
			Name:     id,
			Autonomy: tool.AutonomyFull,
			Family:   tool.FamilyRemote,
		}, nil
	}
	return tool.Tool{}, fmt.Errorf("unknown tool %q", id)
}

// announce publishes a tool execution record. Best effort.
func (a *spoolAgent) announce(ctx context.Context, toolID string, outcome tool.Outcome, elapsed time.Duration) {
	if a.bus == nil {
		return
	}
	p := &event.ToolExecuted{
		ToolID:         toolID,
		Success:        outcome.Succeeded(),
		DurationMillis: elapsed.Milliseconds(),
	}
	if outcome.Failure != nil {
		p.Message = outcome.Failure.Message
	} else if outcome.Success != nil {
		p.Message = outcome.Success.Summary
	}
	if err := a.bus.Publish(ctx, event.New(a.agentID, event.UrgencyLow, p)); err != nil {
		a.logger.Warn("tool event publish failed", "tool", toolID, "error", err)
	}
}

// file moves a claimed task to its terminal suffix.
func (a *spoolAgent) file(claimed, suffix string) {
	dst := strings.TrimSuffix(claimed, ".claimed") + suffix
	if err := os.Rename(claimed, dst); err != nil {
		a.logger.Warn("file task result", "path", claimed, "error", err)
	}
}
