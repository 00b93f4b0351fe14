package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// EventContext is the status context of the note completion event
const EventContext = "note_completion"

// Progress is the state of a note after a tracker call
type Progress struct {
	NoteID        string `json:"noteId"`
	ImportID      string `json:"importId"`
	Completed     int    `json:"completedUnits"`
	Total         int    `json:"totalUnits"`
	IsComplete    bool   `json:"isComplete"`
	JustCompleted bool   `json:"justCompleted"`
}

func progressOf(c Counter, justCompleted bool) Progress {
	return Progress{
		NoteID:        c.NoteID,
		ImportID:      c.ImportID,
		Completed:     c.Completed,
		Total:         c.Total,
		IsComplete:    c.IsComplete(),
		JustCompleted: justCompleted,
	}
}

// Tracker records unit completions and fires the note completed event once
type Tracker struct {
	store       Store
	broadcaster status.Broadcaster
	logger      *slog.Logger
}

// NewTracker creates a tracker over store
func NewTracker(store Store, broadcaster status.Broadcaster, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, broadcaster: broadcaster, logger: logger}
}

// CreateCounter registers the number of units a note fans out to. It is
// idempotent; a note with zero units is complete immediately and the
// completion event is sent by the call that created the counter.
func (t *Tracker) CreateCounter(ctx context.Context, noteID, importID string, total int) (Progress, error) {
	if noteID == "" {
		return Progress{}, pipeline.Validationf("completion counter requires a note id")
	}
	if total < 0 {
		return Progress{}, pipeline.Validation(fmt.Errorf("note %s: %w", noteID, ErrInvalidTotal))
	}

	c, created, err := t.store.Create(ctx, noteID, importID, total)
	if err != nil {
		return Progress{}, err
	}

	if !created {
		t.logger.Debug("Completion counter already exists",
			slog.String("note_id", noteID),
			slog.Int("total_units", c.Total),
			slog.Int("completed_units", c.Completed),
		)
		return progressOf(c, false), nil
	}

	t.logger.Info("Completion counter created",
		slog.String("note_id", noteID),
		slog.String("import_id", importID),
		slog.Int("total_units", total),
	)

	justCompleted := c.Total == 0
	if justCompleted {
		t.broadcastCompleted(ctx, c)
	}
	return progressOf(c, justCompleted), nil
}

// RecordUnitCompletion counts one more finished unit for a note
func (t *Tracker) RecordUnitCompletion(ctx context.Context, noteID string) (Progress, error) {
	return t.RecordUnit(ctx, noteID, "")
}

// RecordUnit counts the unit identified by unitKey at most once. Calls after
// the note is complete are no-ops and return the current state.
func (t *Tracker) RecordUnit(ctx context.Context, noteID, unitKey string) (Progress, error) {
	if noteID == "" {
		return Progress{}, pipeline.Validationf("unit completion requires a note id")
	}

	c, advanced, err := t.store.Increment(ctx, noteID, unitKey)
	if err != nil {
		if errors.Is(err, ErrCounterNotFound) {
			return Progress{}, fmt.Errorf("note %s: %w", noteID, err)
		}
		return Progress{}, pipeline.Transient(err)
	}

	justCompleted := advanced && c.Completed == c.Total

	t.logger.Debug("Unit completion recorded",
		slog.String("note_id", noteID),
		slog.String("unit_key", unitKey),
		slog.Int("completed_units", c.Completed),
		slog.Int("total_units", c.Total),
		slog.Bool("advanced", advanced),
	)

	if justCompleted {
		t.logger.Info("Note processing completed",
			slog.String("note_id", noteID),
			slog.String("import_id", c.ImportID),
			slog.Int("total_units", c.Total),
		)
		t.broadcastCompleted(ctx, c)
	}

	return progressOf(c, justCompleted), nil
}

// Progress returns a read-only snapshot for a note
func (t *Tracker) Progress(ctx context.Context, noteID string) (Progress, error) {
	c, err := t.store.Get(ctx, noteID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(c, false), nil
}

// broadcastCompleted is best effort; counting has already been committed
func (t *Tracker) broadcastCompleted(ctx context.Context, c Counter) {
	if t.broadcaster == nil {
		return
	}

	event := status.Completed(c.ImportID, c.NoteID, EventContext, "Note processing completed").
		WithCounts(c.Completed, c.Total)

	if err := t.broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		err = pipeline.Broadcast(err)
		t.logger.Error("Failed to broadcast note completion",
			slog.String("note_id", c.NoteID),
			slog.String("import_id", c.ImportID),
			slog.String("error_kind", string(pipeline.Classify(err))),
			slog.Any("error", err),
		)
	}
}
