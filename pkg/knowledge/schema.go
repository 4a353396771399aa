package knowledge

// SchemaDDL defines the SQLite schema for persisted knowledge entries.
// The FTS5 mirror indexes approach, learnings, and tags for BM25-ranked
// full-text recall; triggers keep it in sync.
const SchemaDDL = `
-- Persisted learnings extracted from ideas, outcomes, perceptions, plans, tasks
CREATE TABLE IF NOT EXISTS knowledge (
    id INTEGER PRIMARY KEY,
    knowledge_type TEXT NOT NULL,
    approach TEXT NOT NULL,
    learnings TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    tags TEXT DEFAULT '[]',
    task_type TEXT,
    complexity_level TEXT,
    idea_id TEXT,
    outcome_id TEXT,
    perception_id TEXT,
    plan_id TEXT,
    task_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge(knowledge_type);
CREATE INDEX IF NOT EXISTS idx_knowledge_task_type ON knowledge(task_type);
CREATE INDEX IF NOT EXISTS idx_knowledge_timestamp ON knowledge(timestamp);

-- FTS5 full-text index over knowledge for BM25-ranked search
CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
    approach,
    learnings,
    tags,
    content=knowledge,
    content_rowid=id
);

-- Triggers to keep FTS index in sync with the knowledge table
CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge BEGIN
    INSERT INTO knowledge_fts(rowid, approach, learnings, tags)
    VALUES (new.id, new.approach, new.learnings, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge BEGIN
    INSERT INTO knowledge_fts(knowledge_fts, rowid, approach, learnings, tags)
    VALUES ('delete', old.id, old.approach, old.learnings, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS knowledge_au AFTER UPDATE ON knowledge BEGIN
    INSERT INTO knowledge_fts(knowledge_fts, rowid, approach, learnings, tags)
    VALUES ('delete', old.id, old.approach, old.learnings, old.tags);
    INSERT INTO knowledge_fts(rowid, approach, learnings, tags)
    VALUES (new.id, new.approach, new.learnings, new.tags);
END;
`
