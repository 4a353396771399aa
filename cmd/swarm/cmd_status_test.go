package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"swarm/pkg/event"
	"swarm/pkg/knowledge"
)

func TestStatusCmd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")

	ctx := context.Background()
	db, events, learnings, err := openStores(ctx, dbPath)
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}

	for i := 0; i < 2; i++ {
		e := event.New("agent-a", event.UrgencyMedium, &event.TaskClaimed{TaskID: "t", WorkerID: "agent-a"})
		if err := events.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	done := event.New("agent-a", event.UrgencyMedium, &event.TaskCompleted{TaskID: "t", WorkerID: "agent-a"})
	if err := events.Append(ctx, done); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := learnings.Insert(ctx, knowledge.Entry{Type: knowledge.TypeTask, Learnings: "x"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cmd := newStatusCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", dbPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, event.KindTaskClaimed) || !strings.Contains(output, "2") {
		t.Errorf("missing claimed count:\n%s", output)
	}
	if !strings.Contains(output, "total: 3") {
		t.Errorf("missing total:\n%s", output)
	}
	if !strings.Contains(output, "knowledge entries: 1") {
		t.Errorf("missing knowledge count:\n%s", output)
	}
}

func TestStatusCmdEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	cmd := newStatusCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", dbPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "No recorded activity.") {
		t.Errorf("output = %q", out.String())
	}
}
