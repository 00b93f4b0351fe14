package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is valid for both postgres and sqlite. Ids are uuids generated by
// the application and timestamps are RFC 3339 text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id         TEXT PRIMARY KEY,
		import_id  TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		category   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_import_id ON notes (import_id)`,
	`CREATE TABLE IF NOT EXISTS ingredient_lines (
		id          TEXT PRIMARY KEY,
		note_id     TEXT NOT NULL,
		block_index INTEGER NOT NULL,
		line_index  INTEGER NOT NULL,
		reference   TEXT NOT NULL,
		quantity    TEXT NOT NULL DEFAULT '',
		unit        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		pattern     TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL,
		UNIQUE (note_id, block_index, line_index)
	)`,
	`CREATE TABLE IF NOT EXISTS instruction_lines (
		id              TEXT PRIMARY KEY,
		note_id         TEXT NOT NULL,
		line_index      INTEGER NOT NULL,
		original_text   TEXT NOT NULL,
		normalized_text TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL,
		UNIQUE (note_id, line_index)
	)`,
	`CREATE TABLE IF NOT EXISTS note_images (
		id           TEXT PRIMARY KEY,
		note_id      TEXT NOT NULL,
		image_index  INTEGER NOT NULL,
		url          TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		updated_at   TEXT NOT NULL,
		UNIQUE (note_id, image_index)
	)`,
	`CREATE TABLE IF NOT EXISTS parsing_patterns (
		pattern      TEXT PRIMARY KEY,
		example      TEXT NOT NULL DEFAULT '',
		occurrences  INTEGER NOT NULL DEFAULT 0,
		last_seen_at TEXT NOT NULL
	)`,
}

// Migrate creates the recipe tables if missing
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return tx.Commit()
}
