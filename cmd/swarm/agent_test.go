package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"swarm/pkg/engine"
	"swarm/pkg/tool"
	"swarm/pkg/worker"
)

// newTestAgent creates a spool agent over a temp dir with one registered
// echo tool.
func newTestAgent(t *testing.T) (*spoolAgent, string) {
	t.Helper()
	dir := t.TempDir()

	eng := engine.New(tool.NewLocalExecutor())
	agent := newSpoolAgent(dir, "agent-test", eng, nil, nil)
	agent.RegisterTool(tool.Tool{
		ID:       "echo",
		Name:     "echo",
		Autonomy: tool.AutonomyFull,
		Family:   tool.FamilyLocal,
		Run: func(_ context.Context, req tool.Request) (string, error) {
			return req.Intent, nil
		},
	})
	agent.RegisterTool(tool.Tool{
		ID:       "explode",
		Name:     "explode",
		Autonomy: tool.AutonomyFull,
		Family:   tool.FamilyLocal,
		Run: func(_ context.Context, _ tool.Request) (string, error) {
			return "", errors.New("boom")
		},
	})
	return agent, dir
}

// queueTask writes a task file into the spool.
func queueTask(t *testing.T, dir, name string, spec taskSpec) {
	t.Helper()
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write task: %v", err)
	}
}

func TestSpoolAgentClaimableWorkOrdering(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	if work, err := agent.ClaimableWork(ctx); err != nil || work != "" {
		t.Fatalf("empty spool: work=%q err=%v", work, err)
	}

	queueTask(t, dir, "02-second.json", taskSpec{ID: "b", Tool: "echo", Intent: "b"})
	queueTask(t, dir, "01-first.json", taskSpec{ID: "a", Tool: "echo", Intent: "a"})

	work, err := agent.ClaimableWork(ctx)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if work != "01-first.json" {
		t.Errorf("work = %q, want oldest name first", work)
	}
}

func TestSpoolAgentClaimIsExclusive(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	queueTask(t, dir, "job.json", taskSpec{ID: "j", Tool: "echo", Intent: "hi"})

	if err := agent.Claim(ctx, "job.json"); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := agent.Claim(ctx, "job.json")
	var lost *worker.ClaimLostError
	if !errors.As(err, &lost) {
		t.Fatalf("second claim err = %v, want *worker.ClaimLostError", err)
	}
}

func TestSpoolAgentExecuteSuccess(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	queueTask(t, dir, "job.json", taskSpec{ID: "j", Tool: "echo", Intent: "say hello"})
	if err := agent.Claim(ctx, "job.json"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := agent.Execute(ctx, "job.json"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "job.json.done")); err != nil {
		t.Errorf("done file missing: %v", err)
	}
	if work, _ := agent.ClaimableWork(ctx); work != "" {
		t.Errorf("finished task still claimable: %q", work)
	}
}

func TestSpoolAgentExecuteRetryableRequeues(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	// A plain tool error is retryable, so the task goes back into the queue.
	queueTask(t, dir, "job.json", taskSpec{ID: "j", Tool: "explode", Intent: "go"})
	if err := agent.Claim(ctx, "job.json"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := agent.Execute(ctx, "job.json"); err == nil {
		t.Fatal("expected execute error")
	}

	work, err := agent.ClaimableWork(ctx)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if work != "job.json" {
		t.Errorf("retryable task not requeued, claimable = %q", work)
	}
}

func TestSpoolAgentExecuteBadTaskFiled(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"malformed json", "bad.json", "{not json"},
		{"unknown tool", "ghost.json", `{"id":"g","tool":"ghost","intent":"x"}`},
		{"missing tool", "none.json", `{"id":"n","intent":"x"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, tc.file), []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := agent.Claim(ctx, tc.file); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if err := agent.Execute(ctx, tc.file); err == nil {
				t.Fatal("expected execute error")
			}
			if _, err := os.Stat(filepath.Join(dir, tc.file+".failed")); err != nil {
				t.Errorf("failed file missing: %v", err)
			}
		})
	}
}

func TestSpoolAgentRemoteToolWithoutTransport(t *testing.T) {
	agent, dir := newTestAgent(t)
	ctx := context.Background()

	// Namespaced ids resolve to remote tools; with no remote executor the
	// engine reports a non-retryable failure and the task is filed.
	queueTask(t, dir, "remote.json", taskSpec{ID: "r", Tool: "files:read", Intent: "read it"})
	if err := agent.Claim(ctx, "remote.json"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := agent.Execute(ctx, "remote.json"); err == nil {
		t.Fatal("expected execute error")
	}
	if _, err := os.Stat(filepath.Join(dir, "remote.json.failed")); err != nil {
		t.Errorf("failed file missing: %v", err)
	}
}
