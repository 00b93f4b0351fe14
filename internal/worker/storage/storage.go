package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// ErrNoteNotFound is returned when a note cannot be found in the database
var ErrNoteNotFound = errors.New("note not found")

// Storage handles all database writes of the worker actions. Every write is
// an upsert keyed by the note and line position so a retried job repeats it
// harmlessly.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Storage) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// SaveNote inserts the note or refreshes its parsed fields
func (s *Storage) SaveNote(ctx context.Context, note *recipe.Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Status == "" {
		note.Status = recipe.NoteStatusProcessing
	}
	now := s.timestamp()

	query := `
		INSERT INTO notes (id, import_id, title, source, content, category, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET title = excluded.title,
		    source = excluded.source,
		    content = excluded.content,
		    updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		note.ID, note.ImportID, note.Title, note.Source, note.Content, note.Category, note.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	note.UpdatedAt = now

	s.logger.Debug("Note saved",
		slog.String("note_id", note.ID),
		slog.String("import_id", note.ImportID),
	)
	return nil
}

// GetNote retrieves a note by id
func (s *Storage) GetNote(ctx context.Context, noteID string) (*recipe.Note, error) {
	query := `
		SELECT id, import_id, title, source, content, category, status, updated_at
		FROM notes
		WHERE id = ?
	`

	var note recipe.Note
	if err := s.db.GetContext(ctx, &note, s.db.Rebind(query), noteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

// UpdateNoteStatus sets the lifecycle status of a note
func (s *Storage) UpdateNoteStatus(ctx context.Context, noteID, status string) error {
	query := `UPDATE notes SET status = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), status, s.timestamp(), noteID)
	if err != nil {
		return fmt.Errorf("failed to update note status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoteNotFound
	}

	s.logger.Info("Note status updated",
		slog.String("note_id", noteID),
		slog.String("status", status),
	)
	return nil
}

// UpdateNoteCategory stores the category chosen for a note
func (s *Storage) UpdateNoteCategory(ctx context.Context, noteID, category string) error {
	query := `UPDATE notes SET category = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), category, s.timestamp(), noteID)
	if err != nil {
		return fmt.Errorf("failed to update note category: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// SaveIngredientLine upserts a parsed ingredient line and returns its id
func (s *Storage) SaveIngredientLine(ctx context.Context, line recipe.IngredientLine) (string, error) {
	query := `
		INSERT INTO ingredient_lines (id, note_id, block_index, line_index, reference, quantity, unit, name, pattern, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (note_id, block_index, line_index) DO UPDATE
		SET reference = excluded.reference,
		    quantity = excluded.quantity,
		    unit = excluded.unit,
		    name = excluded.name,
		    pattern = excluded.pattern,
		    updated_at = excluded.updated_at
		RETURNING id
	`

	var id string
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		uuid.New().String(), line.NoteID, line.BlockIndex, line.LineIndex, line.Reference,
		line.Quantity, line.Unit, line.Name, line.Pattern, s.timestamp(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save ingredient line: %w", err)
	}
	return id, nil
}

// SaveInstructionLine upserts a normalized instruction line and returns its id
func (s *Storage) SaveInstructionLine(ctx context.Context, line recipe.InstructionLine) (string, error) {
	query := `
		INSERT INTO instruction_lines (id, note_id, line_index, original_text, normalized_text, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (note_id, line_index) DO UPDATE
		SET original_text = excluded.original_text,
		    normalized_text = excluded.normalized_text,
		    updated_at = excluded.updated_at
		RETURNING id
	`

	var id string
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		uuid.New().String(), line.NoteID, line.LineIndex, line.OriginalText, line.NormalizedText, s.timestamp(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save instruction line: %w", err)
	}
	return id, nil
}

// SaveImage upserts an image reference and returns its id
func (s *Storage) SaveImage(ctx context.Context, image recipe.Image) (string, error) {
	query := `
		INSERT INTO note_images (id, note_id, image_index, url, content_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (note_id, image_index) DO UPDATE
		SET url = excluded.url,
		    content_type = excluded.content_type,
		    updated_at = excluded.updated_at
		RETURNING id
	`

	var id string
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		uuid.New().String(), image.NoteID, image.ImageIndex, image.URL, image.ContentType, s.timestamp(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return id, nil
}

// IngredientNames returns the parsed ingredient names of a note in order
func (s *Storage) IngredientNames(ctx context.Context, noteID string) ([]string, error) {
	query := `
		SELECT name FROM ingredient_lines
		WHERE note_id = ? AND name <> ''
		ORDER BY block_index, line_index
	`

	var names []string
	if err := s.db.SelectContext(ctx, &names, s.db.Rebind(query), noteID); err != nil {
		return nil, fmt.Errorf("failed to list ingredient names: %w", err)
	}
	return names, nil
}

// TrackPattern counts one occurrence of a line pattern and returns the total
func (s *Storage) TrackPattern(ctx context.Context, pattern, example string) (int, error) {
	query := `
		INSERT INTO parsing_patterns (pattern, example, occurrences, last_seen_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (pattern) DO UPDATE
		SET occurrences = parsing_patterns.occurrences + 1,
		    last_seen_at = excluded.last_seen_at
		RETURNING occurrences
	`

	var occurrences int
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), pattern, example, s.timestamp()).Scan(&occurrences)
	if err != nil {
		return 0, fmt.Errorf("failed to track pattern: %w", err)
	}
	return occurrences, nil
}
