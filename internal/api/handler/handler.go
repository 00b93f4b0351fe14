package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/api/model"
	"github.com/cuongbtq/recipe-pipeline/internal/api/storage"
	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// NoteReader is the read side of the recipe tables
type NoteReader interface {
	GetNote(ctx context.Context, noteID string) (*model.Note, error)
	ListNotes(ctx context.Context, filter storage.NoteFilter) ([]model.Note, error)
	ListIngredientLines(ctx context.Context, noteID string) ([]model.IngredientLine, error)
	ListInstructionLines(ctx context.Context, noteID string) ([]model.InstructionLine, error)
	ListPatterns(ctx context.Context, limit int) ([]model.Pattern, error)
}

// ProgressReader reports the completion counter of a note
type ProgressReader interface {
	Progress(ctx context.Context, noteID string) (completion.Progress, error)
}

// EventSubscriber streams the status events of an import
type EventSubscriber interface {
	Subscribe(ctx context.Context, importID string) (<-chan status.Event, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Storage  NoteReader
	Progress ProgressReader
	// NoteQueue receives one process_note job per imported note
	NoteQueue queue.Publisher
	// Broadcaster and Events are optional
	Broadcaster status.Broadcaster
	Events      EventSubscriber
	// Catalog lists the registered actions per queue
	Catalog func() map[string][]string
}

// ImportHandler accepts note imports and streams their status
type ImportHandler struct {
	logger      *slog.Logger
	noteQueue   queue.Publisher
	broadcaster status.Broadcaster
	events      EventSubscriber
}

// NewImportHandler creates a new ImportHandler instance
func NewImportHandler(deps *Dependencies) *ImportHandler {
	return &ImportHandler{
		logger:      deps.Logger,
		noteQueue:   deps.NoteQueue,
		broadcaster: deps.Broadcaster,
		events:      deps.Events,
	}
}

// NoteHandler serves stored notes and their progress
type NoteHandler struct {
	logger   *slog.Logger
	storage  NoteReader
	progress ProgressReader
}

// NewNoteHandler creates a new NoteHandler instance
func NewNoteHandler(deps *Dependencies) *NoteHandler {
	return &NoteHandler{
		logger:   deps.Logger,
		storage:  deps.Storage,
		progress: deps.Progress,
	}
}

// CatalogHandler serves the action catalog and parsing patterns
type CatalogHandler struct {
	logger  *slog.Logger
	storage NoteReader
	catalog func() map[string][]string
}

// NewCatalogHandler creates a new CatalogHandler instance
func NewCatalogHandler(deps *Dependencies) *CatalogHandler {
	return &CatalogHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
		catalog: deps.Catalog,
	}
}
