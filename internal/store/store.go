// Package store persists sessions, conversations, summaries, embeddings
// and scheduled tasks in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is recorded in the meta table on first open.
const SchemaVersion = "2.0"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database. All methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	dim int
}

// Open opens (or creates) the database at path and applies the schema.
// dim is the embedding dimension enforced on vector writes.
func Open(path string, dim int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc serializes writers on a single connection; more would turn
	// concurrent writes into SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dim: dim}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		SchemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	start_timestamp INTEGER NOT NULL,
	end_timestamp   INTEGER,
	status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived'))
);

CREATE TABLE IF NOT EXISTS conversations (
	conversation_id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      INTEGER NOT NULL REFERENCES sessions(session_id),
	timestamp       INTEGER NOT NULL,
	role            TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	text            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      INTEGER NOT NULL,
	summary         TEXT NOT NULL,
	first_timestamp INTEGER NOT NULL,
	last_timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id);
CREATE INDEX IF NOT EXISTS idx_summaries_last_timestamp ON summaries(last_timestamp DESC);

CREATE TABLE IF NOT EXISTS vec_conversations (
	conversation_id INTEGER PRIMARY KEY,
	embedding       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS vec_summaries (
	summary_id INTEGER PRIMARY KEY,
	embedding  BLOB NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
	text,
	content=conversations,
	content_rowid=conversation_id
);
CREATE TRIGGER IF NOT EXISTS conversations_ai AFTER INSERT ON conversations BEGIN
	INSERT INTO conversations_fts(rowid, text) VALUES (new.conversation_id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS conversations_ad AFTER DELETE ON conversations BEGIN
	INSERT INTO conversations_fts(conversations_fts, rowid, text)
	VALUES ('delete', old.conversation_id, old.text);
END;
CREATE TRIGGER IF NOT EXISTS conversations_au AFTER UPDATE ON conversations BEGIN
	INSERT INTO conversations_fts(conversations_fts, rowid, text)
	VALUES ('delete', old.conversation_id, old.text);
	INSERT INTO conversations_fts(rowid, text) VALUES (new.conversation_id, new.text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS summaries_fts USING fts5(
	summary,
	content=summaries,
	content_rowid=summary_id
);
CREATE TRIGGER IF NOT EXISTS summaries_ai AFTER INSERT ON summaries BEGIN
	INSERT INTO summaries_fts(rowid, summary) VALUES (new.summary_id, new.summary);
END;
CREATE TRIGGER IF NOT EXISTS summaries_ad AFTER DELETE ON summaries BEGIN
	INSERT INTO summaries_fts(summaries_fts, rowid, summary)
	VALUES ('delete', old.summary_id, old.summary);
END;
CREATE TRIGGER IF NOT EXISTS summaries_au AFTER UPDATE ON summaries BEGIN
	INSERT INTO summaries_fts(summaries_fts, rowid, summary)
	VALUES ('delete', old.summary_id, old.summary);
	INSERT INTO summaries_fts(rowid, summary) VALUES (new.summary_id, new.summary);
END;

CREATE TABLE IF NOT EXISTS scheduled_tasks (
	task_id        TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	trigger_type   TEXT NOT NULL CHECK (trigger_type IN ('once', 'interval')),
	trigger_config TEXT NOT NULL,
	message        TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	next_run_at    INTEGER NOT NULL,
	last_run_at    INTEGER,
	status         TEXT NOT NULL DEFAULT 'active'
		CHECK (status IN ('active', 'paused', 'running', 'completed'))
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(next_run_at, status);
`

// SchemaVersionStored returns the schema version recorded in meta.
func (s *Store) SchemaVersionStored(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Stats reports row counts for the status command.
type Stats struct {
	Sessions      int64
	Conversations int64
	Summaries     int64
	Tasks         int64
}

// CollectStats counts rows across the main tables.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, q := range []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM sessions`, &st.Sessions},
		{`SELECT COUNT(*) FROM conversations`, &st.Conversations},
		{`SELECT COUNT(*) FROM summaries`, &st.Summaries},
		{`SELECT COUNT(*) FROM scheduled_tasks`, &st.Tasks},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("collect stats: %w", err)
		}
	}
	return st, nil
}
