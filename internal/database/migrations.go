package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
//
// events.search_result_id deliberately has no foreign key: deleting a search
// result leaves its events in place.
var migrations = []Migration{
	{
		Version:     1,
		Description: "search results and events",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS search_results (
    pk INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    query TEXT NOT NULL,
    search_date TEXT NOT NULL,
    provider TEXT NOT NULL,
    params TEXT NOT NULL DEFAULT '{}',
    results TEXT NOT NULL DEFAULT '[]',
    summary TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    pk INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    event_date TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    source_url TEXT NOT NULL DEFAULT '',
    source_title TEXT,
    search_result_id TEXT,
    provider TEXT NOT NULL,
    relevance_score INTEGER,
    relevance_reasoning TEXT,
    rank INTEGER CHECK (rank IS NULL OR rank > 0),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_results_search_date ON search_results(search_date);
CREATE INDEX IF NOT EXISTS idx_search_results_provider ON search_results(provider);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(query);
CREATE INDEX IF NOT EXISTS idx_events_event_date ON events(event_date);
CREATE INDEX IF NOT EXISTS idx_events_search_result_id ON events(search_result_id);
CREATE INDEX IF NOT EXISTS idx_events_rank ON events(rank);
CREATE INDEX IF NOT EXISTS idx_events_relevance_score ON events(relevance_score);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "full-text search over events",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
    title, description, content='events', content_rowid='pk'
);

CREATE TRIGGER IF NOT EXISTS events_fts_insert AFTER INSERT ON events BEGIN
    INSERT INTO events_fts(rowid, title, description) VALUES (new.pk, new.title, new.description);
END;

CREATE TRIGGER IF NOT EXISTS events_fts_delete AFTER DELETE ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, title, description) VALUES ('delete', old.pk, old.title, old.description);
END;

CREATE TRIGGER IF NOT EXISTS events_fts_update AFTER UPDATE OF title, description ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, title, description) VALUES ('delete', old.pk, old.title, old.description);
    INSERT INTO events_fts(rowid, title, description) VALUES (new.pk, new.title, new.description);
END;

INSERT INTO events_fts(events_fts) VALUES ('rebuild');
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
