// Package knowledge persists learnings extracted from completed work and
// serves the retrieval strategies the recall service composes. Storage is
// SQLite with an FTS5 mirror for BM25-ranked text search.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type classifies what kind of source a knowledge entry was extracted from.
type Type string

const (
	TypeIdea       Type = "idea"
	TypeOutcome    Type = "outcome"
	TypePerception Type = "perception"
	TypePlan       Type = "plan"
	TypeTask       Type = "task"
)

// Valid reports whether t is a known knowledge type.
func (t Type) Valid() bool {
	switch t {
	case TypeIdea, TypeOutcome, TypePerception, TypePlan, TypeTask:
		return true
	}
	return false
}

// Entry is one persisted learning. SourceID refers to the idea, outcome,
// perception, plan, or task the learning was extracted from, depending on
// Type.
type Entry struct {
	ID              int64
	Type            Type
	Approach        string
	Learnings       string
	Timestamp       time.Time
	Tags            []string
	TaskType        string
	ComplexityLevel string
	SourceID        string
}

// Store manages the knowledge table in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given SQLite database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("knowledge schema: %w", err)
	}
	return nil
}

// tagsToJSON converts a string slice to a JSON array string.
func tagsToJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// tagsFromJSON parses a JSON array string into a string slice.
func tagsFromJSON(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

// sourceColumn maps a knowledge type to the column its source id lives in.
func sourceColumn(t Type) string {
	switch t {
	case TypeIdea:
		return "idea_id"
	case TypeOutcome:
		return "outcome_id"
	case TypePerception:
		return "perception_id"
	case TypePlan:
		return "plan_id"
	case TypeTask:
		return "task_id"
	}
	return ""
}

// Insert adds a new entry and returns its ID. The source id is stored in the
// column matching the entry's type.
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	if !e.Type.Valid() {
		return 0, fmt.Errorf("knowledge insert: invalid type %q", e.Type)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	col := sourceColumn(e.Type)
	q := fmt.Sprintf(
		`INSERT INTO knowledge (knowledge_type, approach, learnings, timestamp, tags, task_type, complexity_level, %s)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, col)

	res, err := s.db.ExecContext(ctx, q,
		string(e.Type), e.Approach, e.Learnings, ts.UnixMilli(),
		tagsToJSON(e.Tags), e.TaskType, e.ComplexityLevel, e.SourceID,
	)
	if err != nil {
		return 0, fmt.Errorf("knowledge insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("knowledge last insert id: %w", err)
	}
	return id, nil
}

const entryColumns = `
	id, knowledge_type, approach, learnings, timestamp, tags,
	COALESCE(task_type, '') AS task_type,
	COALESCE(complexity_level, '') AS complexity_level,
	COALESCE(idea_id, outcome_id, perception_id, plan_id, task_id, '') AS source_id`

// scanEntry reads one row into an Entry.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var ts int64
	var tags string
	if err := rows.Scan(
		&e.ID, &e.Type, &e.Approach, &e.Learnings, &ts, &tags,
		&e.TaskType, &e.ComplexityLevel, &e.SourceID,
	); err != nil {
		return Entry{}, fmt.Errorf("knowledge scan: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	e.Tags = tagsFromJSON(tags)
	return e, nil
}

// query runs a SELECT over the knowledge table with the given WHERE clause
// and returns entries ordered newest first.
func (s *Store) query(ctx context.Context, where string, limit int, args ...any) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT %s FROM knowledge`, entryColumns)
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge rows: %w", err)
	}
	return out, nil
}

// GetByID returns the entry with the given id, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	entries, err := s.query(ctx, "id = ?", 1, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ByType returns entries of the given knowledge type, newest first.
func (s *Store) ByType(ctx context.Context, t Type, limit int) ([]Entry, error) {
	return s.query(ctx, "knowledge_type = ?", limit, string(t))
}

// ByTaskType returns entries recorded against the given task type.
func (s *Store) ByTaskType(ctx context.Context, taskType string, limit int) ([]Entry, error) {
	return s.query(ctx, "task_type = ?", limit, taskType)
}

// ByTag returns entries whose tag list contains tag.
func (s *Store) ByTag(ctx context.Context, tag string, limit int) ([]Entry, error) {
	// Match the tag within the JSON array using LIKE.
	return s.query(ctx, "tags LIKE ?", limit, fmt.Sprintf(`%%"%s"%%`, tag))
}

// ByTimeRange returns entries with timestamps in [from, to] inclusive,
// newest first.
func (s *Store) ByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	return s.query(ctx, "timestamp >= ? AND timestamp <= ?", limit, from.UnixMilli(), to.UnixMilli())
}

// ScoredEntry is an Entry with its BM25 text-match rank. Higher is better.
type ScoredEntry struct {
	Entry
	Rank float64
}

// SearchText performs FTS5 BM25-ranked search over approach, learnings, and
// tags. An empty query returns no results.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]ScoredEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	q := `
		SELECT k.id, k.knowledge_type, k.approach, k.learnings, k.timestamp, k.tags,
		       COALESCE(k.task_type, '') AS task_type,
		       COALESCE(k.complexity_level, '') AS complexity_level,
		       COALESCE(k.idea_id, k.outcome_id, k.perception_id, k.plan_id, k.task_id, '') AS source_id,
		       (-bm25(knowledge_fts)) AS rank
		FROM knowledge_fts
		JOIN knowledge k ON knowledge_fts.rowid = k.id
		WHERE knowledge_fts MATCH ?
		ORDER BY rank DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, q, sanitizeFTS5Query(query), limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer rows.Close()

	var out []ScoredEntry
	for rows.Next() {
		var se ScoredEntry
		var ts int64
		var tags string
		if err := rows.Scan(
			&se.ID, &se.Type, &se.Approach, &se.Learnings, &ts, &tags,
			&se.TaskType, &se.ComplexityLevel, &se.SourceID, &se.Rank,
		); err != nil {
			return nil, fmt.Errorf("knowledge search scan: %w", err)
		}
		se.Timestamp = time.UnixMilli(ts).UTC()
		se.Tags = tagsFromJSON(tags)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge search rows: %w", err)
	}
	return out, nil
}

// sanitizeFTS5Query wraps each term in double quotes to prevent FTS5 operator
// interpretation (e.g., "and", "or", "not" are FTS5 operators) and joins them
// with OR for broader recall.
func sanitizeFTS5Query(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return query
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		// Strip quote characters that break FTS5 quoting
		clean := strings.Map(func(r rune) rune {
			if r == '"' {
				return -1
			}
			return r
		}, w)
		if clean != "" {
			quoted = append(quoted, `"`+clean+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}
