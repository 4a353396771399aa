package main

import (
	"context"
	"database/sql"
	"fmt"

	"swarm/pkg/eventstore"
	"swarm/pkg/knowledge"

	_ "modernc.org/sqlite"
)

// openDB opens a SQLite database at path and enforces production-safe
// defaults: WAL journal mode and a 5-second busy timeout. It also calls
// db.PingContext to verify the connection is usable before returning.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// openStores opens the database and applies both schemas.
func openStores(ctx context.Context, path string) (*sql.DB, *eventstore.Store, *knowledge.Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, nil, nil, err
	}

	events := eventstore.NewStore(db)
	if err := events.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	learnings := knowledge.NewStore(db)
	if err := learnings.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	return db, events, learnings, nil
}
