package main

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"swarm/pkg/human"
	"swarm/pkg/knowledge"
	"swarm/pkg/tool"
)

func TestSplitTags(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , ,b ", []string{"a", "b"}},
	}
	for _, tc := range tests {
		if got := splitTags(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitTags(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

// findTool returns the builtin with the given id.
func findTool(t *testing.T, tools []tool.Tool, id string) tool.Tool {
	t.Helper()
	for _, bt := range tools {
		if bt.ID == id {
			return bt
		}
	}
	t.Fatalf("no builtin tool %q", id)
	return tool.Tool{}
}

func TestBuiltinRememberAndRecall(t *testing.T) {
	svc, store := newTestService(t)
	humans := human.NewRegistry(nil, nil)
	t.Cleanup(humans.Close)

	tools := builtinTools(svc, humans)
	ctx := context.Background()

	remember := findTool(t, tools, "remember")
	out, err := remember.Run(ctx, tool.Request{
		Ticket: "job-1",
		Intent: "store it",
		Params: map[string]string{
			"type":      "outcome",
			"learnings": "spool renames are atomic on one filesystem",
			"task_type": "infra",
			"tags":      "spool,fs",
		},
	})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if !strings.Contains(out, "stored knowledge entry") {
		t.Errorf("remember output = %q", out)
	}

	entries, err := store.ByType(ctx, knowledge.TypeOutcome, 0)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(entries) != 1 || entries[0].SourceID != "job-1" || len(entries[0].Tags) != 2 {
		t.Fatalf("stored = %+v", entries)
	}

	recall := findTool(t, tools, "recall")
	out, err = recall.Run(ctx, tool.Request{
		Intent: "look it up",
		Params: map[string]string{"task_type": "infra", "query": "spool renames"},
	})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if !strings.Contains(out, "spool renames are atomic") {
		t.Errorf("recall output = %q", out)
	}
}

func TestBuiltinRecallEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	humans := human.NewRegistry(nil, nil)
	t.Cleanup(humans.Close)

	recall := findTool(t, builtinTools(svc, humans), "recall")
	out, err := recall.Run(context.Background(), tool.Request{Intent: "x", Params: map[string]string{"query": "nothing"}})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if out != "no relevant knowledge" {
		t.Errorf("output = %q", out)
	}
}

func TestBuiltinAskHuman(t *testing.T) {
	svc, _ := newTestService(t)
	humans := human.NewRegistry(nil, nil)
	t.Cleanup(humans.Close)

	ask := findTool(t, builtinTools(svc, humans), "ask-human")

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if pending := humans.Pending(); len(pending) == 1 {
				_ = humans.Respond(pending[0].ID, "use the replica")
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out, err := ask.Run(context.Background(), tool.Request{
		Ticket: "job-2",
		Intent: "which database?",
		Params: map[string]string{"timeout": "2s"},
	})
	if err != nil {
		t.Fatalf("ask-human: %v", err)
	}
	if out != "use the replica" {
		t.Errorf("answer = %q", out)
	}
}

func TestBuiltinAskHumanBadTimeout(t *testing.T) {
	svc, _ := newTestService(t)
	humans := human.NewRegistry(nil, nil)
	t.Cleanup(humans.Close)

	ask := findTool(t, builtinTools(svc, humans), "ask-human")
	_, err := ask.Run(context.Background(), tool.Request{
		Intent: "q",
		Params: map[string]string{"timeout": "soon"},
	})
	if err == nil {
		t.Fatal("expected error for unparseable timeout")
	}
}
