package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// Note pipeline actions
const (
	ActionBroadcastNoteStart  = "broadcast_note_start"
	ActionCleanHTML           = "clean_html"
	ActionParseHTML           = "parse_html"
	ActionSaveNote            = "save_note"
	ActionInitCompletion      = "init_completion"
	ActionScheduleUnits       = "schedule_units"
	ActionBroadcastNoteParsed = "broadcast_note_parsed"
)

// Status contexts of the note pipeline
const (
	ContextNoteParsing = "note_parsing"
)

// categorizationDelay lets ingredient lines land before the note is categorized
const categorizationDelay = 2 * time.Second

var noteSteps = []string{
	ActionBroadcastNoteStart,
	ActionCleanHTML,
	ActionParseHTML,
	ActionSaveNote,
	ActionInitCompletion,
	ActionScheduleUnits,
	ActionBroadcastNoteParsed,
}

// noteNamespace derives stable note ids from job ids
var noteNamespace = uuid.MustParse("8f5a3c2e-4b1d-5e6f-9a7b-0c1d2e3f4a5b")

// Note returns the definition of the note queue
func Note() Definition[recipe.NoteJob] {
	f := pipeline.NewFactory[recipe.NoteJob, Deps]()

	f.MustRegister(ActionBroadcastNoteStart, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionBroadcastNoteStart, broadcastNoteStart, pipeline.NonRetryable())
	})
	f.MustRegister(ActionCleanHTML, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionCleanHTML, cleanHTML, pipeline.NonRetryable(), pipeline.WithPriority(10))
	})
	f.MustRegister(ActionParseHTML, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionParseHTML, parseHTML, pipeline.NonRetryable(), pipeline.WithPriority(9))
	})
	f.MustRegister(ActionSaveNote, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionSaveNote, saveNote, pipeline.WithPriority(8))
	})
	f.MustRegister(ActionInitCompletion, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionInitCompletion, initCompletion, pipeline.WithPriority(7))
	})
	f.MustRegister(ActionScheduleUnits, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionScheduleUnits, scheduleUnits, pipeline.WithPriority(6))
	})
	f.MustRegister(ActionBroadcastNoteParsed, func(Deps) pipeline.Action[recipe.NoteJob, Deps] {
		return pipeline.NewAction(ActionBroadcastNoteParsed, broadcastNoteParsed, pipeline.NonRetryable())
	})

	return Definition[recipe.NoteJob]{
		Queue:   recipe.QueueNote,
		Factory: f,
		Builder: func(data recipe.NoteJob, _ *pipeline.ActionContext, deps Deps) (pipeline.Pipeline[recipe.NoteJob, Deps], error) {
			if err := data.Validate(); err != nil {
				return pipeline.Pipeline[recipe.NoteJob, Deps]{}, err
			}
			return pipeline.Assemble(f, deps, pipeline.Plan{Steps: noteSteps}, data.Tracking())
		},
		Tracking: recipe.NoteJob.Tracking,
	}
}

func broadcastNoteStart(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	deps.broadcast(ctx, status.Processing(data.ImportID, data.NoteID, ContextNoteParsing, "Parsing note"))
	return data, nil
}

func cleanHTML(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	cleaned, err := deps.Parsers.HTML.Clean(ctx, data.Content)
	if err != nil {
		return data, err
	}
	data.Cleaned = cleaned
	return data, nil
}

func parseHTML(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	source := data.Cleaned
	if source == "" {
		source = data.Content
	}

	parsed, err := deps.Parsers.HTML.Parse(ctx, source)
	if err != nil {
		return data, err
	}
	data.Parsed = &parsed

	deps.logger().Debug("Note parsed",
		slog.String("import_id", data.ImportID),
		slog.String("title", parsed.Title),
		slog.Int("ingredients", len(parsed.Ingredients)),
		slog.Int("instructions", len(parsed.Instructions)),
		slog.Int("images", len(parsed.Images)),
	)
	return data, nil
}

func saveNote(ctx context.Context, data recipe.NoteJob, deps Deps, actx *pipeline.ActionContext) (recipe.NoteJob, error) {
	if data.Parsed == nil {
		return data, pipeline.Validationf("note must be parsed before it is saved")
	}

	// retries of the same job resolve to the same note
	if data.NoteID == "" && actx != nil && actx.JobID != "" {
		data.NoteID = uuid.NewSHA1(noteNamespace, []byte(actx.JobID)).String()
	}

	note := &recipe.Note{
		ID:       data.NoteID,
		ImportID: data.ImportID,
		Title:    data.Parsed.Title,
		Source:   data.Source,
		Content:  data.Cleaned,
		Status:   recipe.NoteStatusProcessing,
	}
	if err := deps.Storage.SaveNote(ctx, note); err != nil {
		return data, err
	}

	data.NoteID = note.ID
	return data, nil
}

func initCompletion(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	if data.NoteID == "" {
		return data, pipeline.Validationf("note must be saved before its completion is tracked")
	}

	progress, err := deps.Tracker.CreateCounter(ctx, data.NoteID, data.ImportID, data.TotalUnits())
	if err != nil {
		return data, err
	}

	if progress.IsComplete {
		if err := deps.Storage.UpdateNoteStatus(ctx, data.NoteID, recipe.NoteStatusCompleted); err != nil {
			return data, fmt.Errorf("failed to mark note completed: %w", err)
		}
	}
	return data, nil
}

// scheduleUnits enqueues one job per unit of the note. A retried note job
// enqueues them again; the unit keys keep the count right.
func scheduleUnits(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	if data.Parsed == nil || data.NoteID == "" {
		return data, pipeline.Validationf("note must be parsed and saved before units are scheduled")
	}

	meta := recipe.JobMeta{NoteID: data.NoteID, ImportID: data.ImportID}
	enqueue := func(queueName, jobName string, job any, opts queue.Options) error {
		if _, err := deps.Queues.Enqueue(ctx, queueName, jobName, job, opts); err != nil {
			return pipeline.Transient(fmt.Errorf("failed to schedule %s: %w", jobName, err))
		}
		data.Scheduled++
		return nil
	}

	data.Scheduled = 0
	parsed := data.Parsed

	for i, line := range parsed.Ingredients {
		job := recipe.IngredientJob{
			JobMeta:      meta,
			Reference:    line.Reference,
			BlockIndex:   line.BlockIndex,
			LineIndex:    line.LineIndex,
			CurrentIndex: intPtr(i + 1),
			TotalCount:   intPtr(len(parsed.Ingredients)),
		}
		if err := enqueue(recipe.QueueIngredient, recipe.JobParseIngredient, job, queue.Options{}); err != nil {
			return data, err
		}
	}

	for i, line := range parsed.Instructions {
		job := recipe.InstructionJob{
			JobMeta:      meta,
			OriginalText: line.Reference,
			LineIndex:    line.LineIndex,
			CurrentIndex: intPtr(i + 1),
			TotalCount:   intPtr(len(parsed.Instructions)),
		}
		if err := enqueue(recipe.QueueInstruction, recipe.JobParseInstruction, job, queue.Options{}); err != nil {
			return data, err
		}
	}

	for i, url := range parsed.Images {
		job := recipe.ImageJob{
			JobMeta:      meta,
			ImageURL:     url,
			Index:        i,
			CurrentIndex: intPtr(i + 1),
			TotalCount:   intPtr(len(parsed.Images)),
		}
		if err := enqueue(recipe.QueueImage, recipe.JobProcessImage, job, queue.Options{}); err != nil {
			return data, err
		}
	}

	if err := enqueue(recipe.QueueCategorization, recipe.JobCategorizeNote,
		recipe.CategorizationJob{JobMeta: meta}, queue.Options{Delay: categorizationDelay}); err != nil {
		return data, err
	}

	deps.logger().Info("Note units scheduled",
		slog.String("note_id", data.NoteID),
		slog.String("import_id", data.ImportID),
		slog.Int("scheduled", data.Scheduled),
	)
	return data, nil
}

func broadcastNoteParsed(ctx context.Context, data recipe.NoteJob, deps Deps, _ *pipeline.ActionContext) (recipe.NoteJob, error) {
	event := status.Completed(data.ImportID, data.NoteID, ContextNoteParsing, "Note parsed").
		WithCounts(data.Scheduled, data.TotalUnits())
	if data.Parsed != nil {
		event = event.WithMetadata("title", data.Parsed.Title)
	}
	deps.broadcast(ctx, event)
	return data, nil
}

func intPtr(v int) *int {
	return &v
}
