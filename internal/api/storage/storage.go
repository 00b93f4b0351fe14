package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/recipe-pipeline/internal/api/domain"
	"github.com/cuongbtq/recipe-pipeline/internal/api/model"
	"github.com/cuongbtq/recipe-pipeline/shared/database"
)

// Storage is the read side of the recipe tables the worker writes
type Storage struct {
	db *sqlx.DB
}

func NewStorage(client *database.Client) *Storage {
	return &Storage{
		db: client.GetDB(),
	}
}

func (s *Storage) GetNote(ctx context.Context, noteID string) (*model.Note, error) {
	var note model.Note
	query := `
		SELECT
			id, import_id, title, source,
			category, status, created_at, updated_at
		FROM notes
		WHERE id = ?
	`

	err := s.db.GetContext(ctx, &note, s.db.Rebind(query), noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	return &note, nil
}

func (s *Storage) ListIngredientLines(ctx context.Context, noteID string) ([]model.IngredientLine, error) {
	query := `
		SELECT block_index, line_index, reference, quantity, unit, name
		FROM ingredient_lines
		WHERE note_id = ?
		ORDER BY block_index, line_index
	`

	lines := []model.IngredientLine{}
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(query), noteID); err != nil {
		return nil, fmt.Errorf("failed to list ingredient lines: %w", err)
	}
	return lines, nil
}

func (s *Storage) ListInstructionLines(ctx context.Context, noteID string) ([]model.InstructionLine, error) {
	query := `
		SELECT line_index, original_text, normalized_text
		FROM instruction_lines
		WHERE note_id = ?
		ORDER BY line_index
	`

	lines := []model.InstructionLine{}
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(query), noteID); err != nil {
		return nil, fmt.Errorf("failed to list instruction lines: %w", err)
	}
	return lines, nil
}

type NoteFilter struct {
	ImportID string
	Status   string
	PageSize int
	Cursor   *NoteCursor
}

type NoteCursor struct {
	CreatedAt string
	NoteID    string
}

// ListNotes returns up to PageSize+1 notes, newest first, so the caller can
// tell whether another page exists
func (s *Storage) ListNotes(ctx context.Context, filter NoteFilter) ([]model.Note, error) {
	query := `
        SELECT
            id, import_id, title, source,
            category, status, created_at, updated_at
        FROM notes
        WHERE 1=1
    `
	args := []interface{}{}

	if filter.ImportID != "" {
		query += " AND import_id = ?"
		args = append(args, filter.ImportID)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.NoteID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	query += " LIMIT ?"
	args = append(args, filter.PageSize+1)

	notes := []model.Note{}
	err := s.db.SelectContext(ctx, &notes, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	return notes, nil
}

// ListPatterns returns the most frequent ingredient line patterns
func (s *Storage) ListPatterns(ctx context.Context, limit int) ([]model.Pattern, error) {
	query := `
		SELECT pattern, example, occurrences, last_seen_at
		FROM parsing_patterns
		ORDER BY occurrences DESC, pattern
		LIMIT ?
	`

	patterns := []model.Pattern{}
	if err := s.db.SelectContext(ctx, &patterns, s.db.Rebind(query), limit); err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	return patterns, nil
}
