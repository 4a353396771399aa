// Package eventstore persists events to SQLite and serves the query shapes
// the bus needs for historical replay: by id, newest-first listing, by type,
// since a timestamp, and ascending time ranges with optional type/source
// restriction. Timestamps are stored as epoch milliseconds.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"swarm/pkg/event"
)

// Store manages the events table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given SQLite database. The caller
// owns the connection and must have applied SchemaDDL.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema. Safe to call more than once.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("init event schema: %w", err)
	}
	return nil
}

// Append persists an event. Events are immutable: there is no update or
// delete path.
func (s *Store) Append(ctx context.Context, e event.Event) error {
	payload, err := event.MarshalPayload(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, source_id, urgency, timestamp, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Source, string(e.Urgency), e.Timestamp.UnixMilli(), payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetByID returns the event with the given id, or (nil, nil) if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*event.Event, error) {
	rows, err := s.query(ctx, "WHERE event_id = ?", "ORDER BY id", 1, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// All returns events newest first, up to limit (0 = no limit).
func (s *Store) All(ctx context.Context, limit int) ([]event.Event, error) {
	return s.query(ctx, "", "ORDER BY timestamp DESC, id DESC", limit)
}

// ByType returns events of one type, newest first.
func (s *Store) ByType(ctx context.Context, eventType string, limit int) ([]event.Event, error) {
	return s.query(ctx, "WHERE event_type = ?", "ORDER BY timestamp DESC, id DESC", limit, eventType)
}

// Since returns events at or after ts, ascending.
func (s *Store) Since(ctx context.Context, ts time.Time) ([]event.Event, error) {
	return s.query(ctx, "WHERE timestamp >= ?", "ORDER BY timestamp ASC, id ASC", 0, ts.UnixMilli())
}

// Between returns events in [from, to] inclusive, ascending by timestamp.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]event.Event, error) {
	return s.query(ctx, "WHERE timestamp >= ? AND timestamp <= ?",
		"ORDER BY timestamp ASC, id ASC", 0, from.UnixMilli(), to.UnixMilli())
}

// BetweenFiltered returns events in [from, to] inclusive restricted to the
// given event types and/or sources, ascending. Nil slices are unconstrained,
// so all four shapes (none / type-only / source-only / both) go through here.
func (s *Store) BetweenFiltered(ctx context.Context, from, to time.Time, eventTypes, sourceIDs []string) ([]event.Event, error) {
	where := []string{"timestamp >= ?", "timestamp <= ?"}
	args := []any{from.UnixMilli(), to.UnixMilli()}

	if len(eventTypes) > 0 {
		where = append(where, "event_type IN ("+placeholders(len(eventTypes))+")")
		for _, t := range eventTypes {
			args = append(args, t)
		}
	}
	if len(sourceIDs) > 0 {
		where = append(where, "source_id IN ("+placeholders(len(sourceIDs))+")")
		for _, src := range sourceIDs {
			args = append(args, src)
		}
	}

	return s.query(ctx, "WHERE "+strings.Join(where, " AND "),
		"ORDER BY timestamp ASC, id ASC", 0, args...)
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// query runs a SELECT over the events table and scans results. A payload
// that fails to decode fails only that read, wrapped in SerializationError.
func (s *Store) query(ctx context.Context, whereClause, orderClause string, limit int, args ...any) ([]event.Event, error) {
	q := fmt.Sprintf(
		"SELECT event_id, event_type, source_id, urgency, timestamp, COALESCE(payload, '') FROM events %s %s",
		whereClause, orderClause)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var urgency, payload string
		var millis int64
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &urgency, &millis, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Urgency = event.Urgency(urgency)
		e.Timestamp = time.UnixMilli(millis).UTC()
		p, err := event.UnmarshalPayload(e.Type, payload)
		if err != nil {
			return nil, err
		}
		e.Payload = p
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
