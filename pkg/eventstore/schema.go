package eventstore

// SchemaDDL defines the SQLite schema for the durable event log.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Append-only event log: the permanent record of everything that happened
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    event_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    urgency TEXT NOT NULL DEFAULT 'low',
    timestamp INTEGER NOT NULL,
    payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type_source ON events(event_type, source_id);
`
