package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// unitJob is a job that counts as one unit of a note's work
type unitJob interface {
	Validate() error
	Tracking() pipeline.Tracking
	UnitKey() string
}

// unitIndent nests unit events under their note
const unitIndent = 1

// broadcastStart announces that a unit of the note is being processed
func broadcastStart[D unitJob](name, statusContext, message string) pipeline.Constructor[D, Deps] {
	return func(Deps) pipeline.Action[D, Deps] {
		return pipeline.NewAction(name, func(ctx context.Context, data D, deps Deps, _ *pipeline.ActionContext) (D, error) {
			t := data.Tracking()
			deps.broadcast(ctx, status.Processing(t.ImportID, t.NoteID, statusContext, message).WithIndent(unitIndent))
			return data, nil
		}, pipeline.NonRetryable())
	}
}

// updateCount publishes the running "current of total" count of the import
func updateCount[D unitJob](name, statusContext string) pipeline.Constructor[D, Deps] {
	return func(Deps) pipeline.Action[D, Deps] {
		return pipeline.NewAction(name, func(ctx context.Context, data D, deps Deps, _ *pipeline.ActionContext) (D, error) {
			t := data.Tracking()
			if !t.Counted() {
				return data, nil
			}
			deps.broadcast(ctx, status.Progress(t.ImportID, t.NoteID, statusContext, *t.CurrentIndex, *t.TotalCount).WithIndent(unitIndent))
			return data, nil
		}, pipeline.NonRetryable())
	}
}

// checkCompletion records the unit against its note's counter and marks the
// note completed once every unit is in
func checkCompletion[D unitJob](name string) pipeline.Constructor[D, Deps] {
	return func(Deps) pipeline.Action[D, Deps] {
		return pipeline.NewAction(name, func(ctx context.Context, data D, deps Deps, _ *pipeline.ActionContext) (D, error) {
			t := data.Tracking()
			if !t.HasNote() {
				return data, nil
			}

			progress, err := deps.Tracker.RecordUnit(ctx, t.NoteID, data.UnitKey())
			if err != nil {
				if errors.Is(err, completion.ErrCounterNotFound) {
					// the note job may not have created the counter yet
					return data, pipeline.Transient(err)
				}
				return data, err
			}

			deps.logger().Debug("Unit completion checked",
				slog.String("note_id", t.NoteID),
				slog.String("unit_key", data.UnitKey()),
				slog.Int("completed_units", progress.Completed),
				slog.Int("total_units", progress.Total),
			)

			if progress.IsComplete {
				// repeated on duplicates so a lost status write is healed
				if err := deps.Storage.UpdateNoteStatus(ctx, t.NoteID, recipe.NoteStatusCompleted); err != nil {
					return data, fmt.Errorf("failed to mark note completed: %w", err)
				}
			}
			return data, nil
		})
	}
}

// unitBuilder validates the job and assembles its plan. An invalid job that
// still names its note gets a pipeline holding only the completion check, so
// the note's counter is not left one unit short.
func unitBuilder[D unitJob](factory *pipeline.Factory[D, Deps], plan pipeline.Plan) pipeline.Builder[D, Deps] {
	return func(data D, _ *pipeline.ActionContext, deps Deps) (pipeline.Pipeline[D, Deps], error) {
		if err := data.Validate(); err != nil {
			if plan.Final == "" || !data.Tracking().HasNote() {
				return pipeline.Pipeline[D, Deps]{}, err
			}
			final, ferr := factory.Create(plan.Final, deps)
			if ferr != nil {
				return pipeline.Pipeline[D, Deps]{}, errors.Join(err, ferr)
			}
			return pipeline.Pipeline[D, Deps]{Final: final}, err
		}
		return pipeline.Assemble(factory, deps, plan, data.Tracking())
	}
}
