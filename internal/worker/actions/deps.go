// Package actions registers the actions of every recipe queue and builds
// their per-job pipelines.
package actions

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// Storage is the persistence used by the actions
type Storage interface {
	SaveNote(ctx context.Context, note *recipe.Note) error
	GetNote(ctx context.Context, noteID string) (*recipe.Note, error)
	UpdateNoteStatus(ctx context.Context, noteID, status string) error
	UpdateNoteCategory(ctx context.Context, noteID, category string) error
	SaveIngredientLine(ctx context.Context, line recipe.IngredientLine) (string, error)
	SaveInstructionLine(ctx context.Context, line recipe.InstructionLine) (string, error)
	SaveImage(ctx context.Context, image recipe.Image) (string, error)
	IngredientNames(ctx context.Context, noteID string) ([]string, error)
	TrackPattern(ctx context.Context, pattern, example string) (int, error)
}

// Tracker is the completion bookkeeping used by the actions
type Tracker interface {
	CreateCounter(ctx context.Context, noteID, importID string, total int) (completion.Progress, error)
	RecordUnit(ctx context.Context, noteID, unitKey string) (completion.Progress, error)
}

// Deps is the dependency bundle handed to every action
type Deps struct {
	Logger      *slog.Logger
	Storage     Storage
	Tracker     Tracker
	Broadcaster status.Broadcaster
	Queues      queue.Enqueuer
	Parsers     recipe.Parsers
}

// broadcast sends a status event; failures are logged and never returned
func (d Deps) broadcast(ctx context.Context, event status.Event) {
	if d.Broadcaster == nil {
		return
	}
	if err := d.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		d.logger().Warn("Failed to broadcast status event",
			slog.String("import_id", event.ImportID),
			slog.String("note_id", event.NoteID),
			slog.String("context", event.Context),
			slog.String("error_kind", string(pipeline.KindBroadcast)),
			slog.Any("error", err),
		)
	}
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}
