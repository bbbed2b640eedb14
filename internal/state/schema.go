package state

import (
	"database/sql"
)

const currentSchemaVersion = 2

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS queue_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_index INTEGER NOT NULL DEFAULT -1,
			repeat_mode INTEGER NOT NULL DEFAULT 0,
			shuffle INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS queue_tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position INTEGER NOT NULL,
			track_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT,
			album TEXT,
			cover_art TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			starred INTEGER NOT NULL DEFAULT 0,
			rating INTEGER NOT NULL DEFAULT 0,
			UNIQUE(position)
		);

		CREATE INDEX IF NOT EXISTS idx_queue_tracks_position ON queue_tracks(position);

		CREATE TABLE IF NOT EXISTS lastfm_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			session_key TEXT NOT NULL,
			linked_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	// Set initial version if not exists
	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	if err != nil {
		return err
	}

	// Migration: add rating column if missing
	_, _ = db.Exec(`ALTER TABLE queue_tracks ADD COLUMN rating INTEGER NOT NULL DEFAULT 0`)

	return nil
}
