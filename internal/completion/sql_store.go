package completion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the counter tables; valid for postgres and sqlite
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS note_completion (
		note_id         TEXT PRIMARY KEY,
		import_id       TEXT NOT NULL,
		total_units     INTEGER NOT NULL CHECK (total_units >= 0),
		completed_units INTEGER NOT NULL DEFAULT 0 CHECK (completed_units >= 0),
		completed_at    TEXT,
		created_at      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS note_completion_units (
		note_id     TEXT NOT NULL,
		unit_key    TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (note_id, unit_key)
	)`,
}

const counterColumns = "note_id, import_id, total_units, completed_units, completed_at, created_at"

const (
	insertCounterQuery = `
		INSERT INTO note_completion (note_id, import_id, total_units, completed_units, completed_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (note_id) DO NOTHING`

	selectCounterQuery = `SELECT ` + counterColumns + ` FROM note_completion WHERE note_id = ?`

	insertUnitQuery = `
		INSERT INTO note_completion_units (note_id, unit_key, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (note_id, unit_key) DO NOTHING`

	// The guard and the increment are one statement; the returned row is the
	// post-increment state seen by this caller only.
	incrementQuery = `
		UPDATE note_completion
		SET completed_units = completed_units + 1,
		    completed_at = CASE WHEN completed_units + 1 >= total_units THEN ? ELSE completed_at END
		WHERE note_id = ? AND completed_units < total_units
		RETURNING ` + counterColumns
)

type counterRow struct {
	NoteID      string         `db:"note_id"`
	ImportID    string         `db:"import_id"`
	Total       int            `db:"total_units"`
	Completed   int            `db:"completed_units"`
	CompletedAt sql.NullString `db:"completed_at"`
	CreatedAt   string         `db:"created_at"`
}

func (r counterRow) counter() Counter {
	c := Counter{NoteID: r.NoteID, ImportID: r.ImportID, Total: r.Total, Completed: r.Completed}
	if t, err := parseTime(r.CreatedAt); err == nil {
		c.CreatedAt = t
	}
	if r.CompletedAt.Valid {
		if t, err := parseTime(r.CompletedAt.String); err == nil {
			c.CompletedAt = &t
		}
	}
	return c
}

// SQLStore keeps counters in note_completion using sqlx
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore creates a store over db
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Migrate creates the counter tables if missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create completion schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, noteID, importID string, total int) (Counter, bool, error) {
	if total < 0 {
		return Counter{}, false, ErrInvalidTotal
	}

	now := formatTime(s.now())
	var completedAt any
	if total == 0 {
		completedAt = now
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(insertCounterQuery), noteID, importID, total, completedAt, now)
	if err != nil {
		return Counter{}, false, fmt.Errorf("failed to create completion counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Counter{}, false, fmt.Errorf("failed to create completion counter: %w", err)
	}

	c, err := s.Get(ctx, noteID)
	if err != nil {
		return Counter{}, false, err
	}
	return c, affected == 1, nil
}

func (s *SQLStore) Increment(ctx context.Context, noteID, unitKey string) (Counter, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Counter{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())

	if unitKey != "" {
		res, err := tx.ExecContext(ctx, tx.Rebind(insertUnitQuery), noteID, unitKey, now)
		if err != nil {
			return Counter{}, false, fmt.Errorf("failed to record unit: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return Counter{}, false, fmt.Errorf("failed to record unit: %w", err)
		}
		if affected == 0 {
			c, err := getCounter(ctx, tx, noteID)
			if err != nil {
				return Counter{}, false, err
			}
			return c, false, tx.Commit()
		}
	}

	var row counterRow
	err = tx.QueryRowxContext(ctx, tx.Rebind(incrementQuery), now, noteID).StructScan(&row)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return Counter{}, false, fmt.Errorf("failed to commit increment: %w", err)
		}
		return row.counter(), true, nil
	case errors.Is(err, sql.ErrNoRows):
		// complete already, or missing
		c, err := getCounter(ctx, tx, noteID)
		if err != nil {
			return Counter{}, false, err
		}
		return c, false, tx.Commit()
	default:
		return Counter{}, false, fmt.Errorf("failed to increment completion counter: %w", err)
	}
}

func (s *SQLStore) Get(ctx context.Context, noteID string) (Counter, error) {
	return getCounter(ctx, s.db, noteID)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getCounter(ctx context.Context, q queryer, noteID string) (Counter, error) {
	var row counterRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(selectCounterQuery), noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return Counter{}, ErrCounterNotFound
	}
	if err != nil {
		return Counter{}, fmt.Errorf("failed to get completion counter: %w", err)
	}
	return row.counter(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
