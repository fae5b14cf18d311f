package database

import (
	"database/sql"
	"fmt"
)

// Schema for the five collaboration tables. Applied idempotently at startup;
// JSON columns (settings, permissions, metadata, reactions) keep entity
// evolution out of the schema the same way the participant and message
// payloads evolve.
const schema = `
CREATE TABLE IF NOT EXISTS collaboration_sessions (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	type            TEXT NOT NULL,
	creator_id      TEXT NOT NULL,
	creator_name    TEXT NOT NULL,
	creator_role    TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	settings        TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS collaboration_participants (
	session_id      TEXT NOT NULL REFERENCES collaboration_sessions(id),
	user_id         TEXT NOT NULL,
	user_name       TEXT NOT NULL,
	user_role       TEXT NOT NULL,
	joined_at       DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	permissions     TEXT NOT NULL,
	PRIMARY KEY (session_id, user_id)
);

CREATE TABLE IF NOT EXISTS collaboration_messages (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES collaboration_sessions(id),
	sender_id       TEXT NOT NULL,
	sender_name     TEXT NOT NULL,
	sender_role     TEXT NOT NULL,
	type            TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT,
	timestamp       DATETIME NOT NULL,
	edited_at       DATETIME,
	reply_to        TEXT,
	reactions       TEXT
);

CREATE TABLE IF NOT EXISTS document_changes (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES collaboration_sessions(id),
	user_id         TEXT NOT NULL,
	user_name       TEXT NOT NULL,
	change_type     TEXT NOT NULL,
	position        INTEGER NOT NULL,
	length          INTEGER NOT NULL,
	content         TEXT NOT NULL,
	timestamp       DATETIME NOT NULL,
	applied         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS screen_share_sessions (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES collaboration_sessions(id),
	presenter_id    TEXT NOT NULL,
	presenter_name  TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'starting',
	quality         TEXT NOT NULL DEFAULT 'auto',
	audio_enabled   INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME NOT NULL,
	ended_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON collaboration_sessions(status);
CREATE INDEX IF NOT EXISTS idx_participants_session ON collaboration_participants(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_session_time ON collaboration_messages(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_changes_session_time ON document_changes(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_shares_session_status ON screen_share_sessions(session_id, status);
`

// ApplySchema creates tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ValidateSchema verifies that all required tables exist. Run after
// ApplySchema to fail fast on a corrupt or foreign database file.
func ValidateSchema(db *sql.DB) error {
	requiredTables := []string{
		"collaboration_sessions",
		"collaboration_participants",
		"collaboration_messages",
		"document_changes",
		"screen_share_sessions",
	}

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s does not exist", table)
		}
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
	}

	return nil
}
