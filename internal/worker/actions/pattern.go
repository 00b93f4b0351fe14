package actions

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// ActionTrackPattern counts an ingredient line shape
const ActionTrackPattern = "track_pattern"

// Pattern returns the definition of the pattern tracking queue. Its jobs are
// not units of a note and have no completion check.
func Pattern() Definition[recipe.PatternJob] {
	f := pipeline.NewFactory[recipe.PatternJob, Deps]()

	f.MustRegister(ActionTrackPattern, func(Deps) pipeline.Action[recipe.PatternJob, Deps] {
		return pipeline.NewAction(ActionTrackPattern, trackPattern)
	})

	return Definition[recipe.PatternJob]{
		Queue:   recipe.QueuePatternTracking,
		Factory: f,
		Builder: func(data recipe.PatternJob, _ *pipeline.ActionContext, deps Deps) (pipeline.Pipeline[recipe.PatternJob, Deps], error) {
			if err := data.Validate(); err != nil {
				return pipeline.Pipeline[recipe.PatternJob, Deps]{}, err
			}
			return pipeline.Assemble(f, deps, pipeline.Plan{Steps: []string{ActionTrackPattern}}, data.Tracking())
		},
		Tracking: recipe.PatternJob.Tracking,
	}
}

func trackPattern(ctx context.Context, data recipe.PatternJob, deps Deps, _ *pipeline.ActionContext) (recipe.PatternJob, error) {
	occurrences, err := deps.Storage.TrackPattern(ctx, data.Pattern, data.Reference)
	if err != nil {
		return data, err
	}
	data.Occurrences = occurrences

	deps.logger().Debug("Pattern tracked",
		slog.String("pattern", data.Pattern),
		slog.Int("occurrences", occurrences),
	)
	return data, nil
}
