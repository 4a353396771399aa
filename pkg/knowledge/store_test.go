package knowledge

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// setupTestStore creates an in-memory SQLite store with the schema applied.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestInsertRoutesSourceIDByType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		typ    Type
		column string
	}{
		{TypeIdea, "idea_id"},
		{TypeOutcome, "outcome_id"},
		{TypePerception, "perception_id"},
		{TypePlan, "plan_id"},
		{TypeTask, "task_id"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			id, err := store.Insert(ctx, Entry{
				Type:      tt.typ,
				Approach:  "approach text",
				Learnings: "learnings text",
				SourceID:  "src-" + string(tt.typ),
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}

			var got string
			row := store.db.QueryRow("SELECT "+tt.column+" FROM knowledge WHERE id = ?", id)
			if err := row.Scan(&got); err != nil {
				t.Fatalf("scan %s: %v", tt.column, err)
			}
			if got != "src-"+string(tt.typ) {
				t.Errorf("%s = %q, want src-%s", tt.column, got, tt.typ)
			}
		})
	}
}

func TestInsertRejectsInvalidType(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Insert(context.Background(), Entry{Type: "bogus", Approach: "a", Learnings: "l"}); err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestGetByIDRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

	id, err := store.Insert(ctx, Entry{
		Type:            TypeOutcome,
		Approach:        "retry with backoff",
		Learnings:       "flaky network calls need jitter",
		Timestamp:       ts,
		Tags:            []string{"network", "retry"},
		TaskType:        "deploy",
		ComplexityLevel: "medium",
		SourceID:        "out-1",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry, got nil")
	}
	if got.Type != TypeOutcome || got.Approach != "retry with backoff" || got.TaskType != "deploy" {
		t.Errorf("fields lost on round trip: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "network" {
		t.Errorf("tags = %v, want [network retry]", got.Tags)
	}
	if got.SourceID != "out-1" {
		t.Errorf("source id = %q, want out-1", got.SourceID)
	}

	missing, err := store.GetByID(ctx, 99999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing id, got %+v", missing)
	}
}

func TestTypeTaskTypeAndTagQueries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seed := []Entry{
		{Type: TypeTask, Approach: "a1", Learnings: "l1", TaskType: "build", Tags: []string{"go", "ci"}, SourceID: "t-1"},
		{Type: TypeTask, Approach: "a2", Learnings: "l2", TaskType: "deploy", Tags: []string{"k8s"}, SourceID: "t-2"},
		{Type: TypePlan, Approach: "a3", Learnings: "l3", TaskType: "build", Tags: []string{"go"}, SourceID: "p-1"},
	}
	for _, e := range seed {
		if _, err := store.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	byType, err := store.ByType(ctx, TypeTask, 0)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("ByType(task) = %d entries, want 2", len(byType))
	}

	byTaskType, err := store.ByTaskType(ctx, "build", 0)
	if err != nil {
		t.Fatalf("by task type: %v", err)
	}
	if len(byTaskType) != 2 {
		t.Errorf("ByTaskType(build) = %d entries, want 2", len(byTaskType))
	}

	byTag, err := store.ByTag(ctx, "go", 0)
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(byTag) != 2 {
		t.Errorf("ByTag(go) = %d entries, want 2", len(byTag))
	}

	// A tag that is a substring of another must not match.
	byPartial, err := store.ByTag(ctx, "g", 0)
	if err != nil {
		t.Fatalf("by partial tag: %v", err)
	}
	if len(byPartial) != 0 {
		t.Errorf("ByTag(g) = %d entries, want 0", len(byPartial))
	}
}

func TestByTimeRangeInclusive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := store.Insert(ctx, Entry{
			Type: TypeTask, Approach: "a", Learnings: "l",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			SourceID:  "t",
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.ByTimeRange(ctx, base.Add(time.Hour), base.Add(2*time.Hour), 0)
	if err != nil {
		t.Fatalf("by time range: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (inclusive bounds)", len(got))
	}
}

func TestSearchTextRanksMatches(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Type: TypeTask, Approach: "incremental compilation cache", Learnings: "compilation cache invalidation needs content hashing", SourceID: "t-1"},
		{Type: TypeTask, Approach: "database migration", Learnings: "run migrations inside a transaction", SourceID: "t-2"},
		{Type: TypeOutcome, Approach: "cache warming", Learnings: "pre-populate the cache before cutover", SourceID: "o-1"},
	}
	for _, e := range entries {
		if _, err := store.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.SearchText(ctx, "cache", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("search(cache) = %d entries, want 2", len(got))
	}
	for _, se := range got {
		if se.SourceID == "t-2" {
			t.Error("migration entry matched a cache query")
		}
	}

	// Empty and whitespace queries return nothing rather than erroring.
	for _, q := range []string{"", "   "} {
		res, err := store.SearchText(ctx, q, 10)
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if res != nil {
			t.Errorf("search %q returned %d entries, want none", q, len(res))
		}
	}

	// FTS operator words must not be interpreted as operators.
	if _, err := store.SearchText(ctx, "and or not", 10); err != nil {
		t.Fatalf("search with operator words: %v", err)
	}
}

func TestSearchTextSurvivesUpdateAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, Entry{Type: TypeTask, Approach: "original phrase", Learnings: "x", SourceID: "t-1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := store.db.Exec("UPDATE knowledge SET approach = 'replacement phrase' WHERE id = ?", id); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.SearchText(ctx, "original", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Error("stale FTS row matched after update")
	}
	got, err = store.SearchText(ctx, "replacement", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Error("updated text not searchable")
	}

	if _, err := store.db.Exec("DELETE FROM knowledge WHERE id = ?", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = store.SearchText(ctx, "replacement", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Error("deleted row still searchable")
	}
}
