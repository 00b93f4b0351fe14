package actions

import (
	"context"
	"fmt"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// Ingredient pipeline actions
const (
	ActionBroadcastIngredientStart  = "broadcast_ingredient_start"
	ActionUpdateIngredientCount     = "update_ingredient_count"
	ActionParseIngredientLine       = "parse_ingredient_line"
	ActionSaveIngredientLine        = "save_ingredient_line"
	ActionSchedulePatternTracking   = "schedule_pattern_tracking"
	ActionCheckIngredientCompletion = "check_ingredient_completion"
)

// ContextIngredientProcessing is the status context of ingredient lines
const ContextIngredientProcessing = "ingredient_processing"

var ingredientPlan = pipeline.Plan{
	Status: []string{ActionBroadcastIngredientStart},
	Count:  ActionUpdateIngredientCount,
	Steps:  []string{ActionParseIngredientLine, ActionSaveIngredientLine, ActionSchedulePatternTracking},
	Final:  ActionCheckIngredientCompletion,
}

// Ingredient returns the definition of the ingredient queue
func Ingredient() Definition[recipe.IngredientJob] {
	f := pipeline.NewFactory[recipe.IngredientJob, Deps]()

	f.MustRegister(ActionBroadcastIngredientStart,
		broadcastStart[recipe.IngredientJob](ActionBroadcastIngredientStart, ContextIngredientProcessing, "Parsing ingredient line"))
	f.MustRegister(ActionUpdateIngredientCount,
		updateCount[recipe.IngredientJob](ActionUpdateIngredientCount, ContextIngredientProcessing))
	f.MustRegister(ActionParseIngredientLine, func(Deps) pipeline.Action[recipe.IngredientJob, Deps] {
		return pipeline.NewAction(ActionParseIngredientLine, parseIngredientLine, pipeline.NonRetryable())
	})
	f.MustRegister(ActionSaveIngredientLine, func(Deps) pipeline.Action[recipe.IngredientJob, Deps] {
		return pipeline.NewAction(ActionSaveIngredientLine, saveIngredientLine)
	})
	f.MustRegister(ActionSchedulePatternTracking, func(Deps) pipeline.Action[recipe.IngredientJob, Deps] {
		return pipeline.NewAction(ActionSchedulePatternTracking, schedulePatternTracking)
	})
	f.MustRegister(ActionCheckIngredientCompletion,
		checkCompletion[recipe.IngredientJob](ActionCheckIngredientCompletion))

	return Definition[recipe.IngredientJob]{
		Queue:    recipe.QueueIngredient,
		Factory:  f,
		Builder:  unitBuilder(f, ingredientPlan),
		Tracking: recipe.IngredientJob.Tracking,
	}
}

func parseIngredientLine(ctx context.Context, data recipe.IngredientJob, deps Deps, _ *pipeline.ActionContext) (recipe.IngredientJob, error) {
	parsed, err := deps.Parsers.Ingredient.ParseIngredient(ctx, data.Reference)
	if err != nil {
		return data, err
	}
	data.Parsed = &parsed
	return data, nil
}

func saveIngredientLine(ctx context.Context, data recipe.IngredientJob, deps Deps, _ *pipeline.ActionContext) (recipe.IngredientJob, error) {
	if data.Parsed == nil {
		return data, pipeline.Validationf("ingredient line %d must be parsed before it is saved", data.LineIndex)
	}

	id, err := deps.Storage.SaveIngredientLine(ctx, recipe.IngredientLine{
		NoteID:     data.NoteID,
		BlockIndex: data.BlockIndex,
		LineIndex:  data.LineIndex,
		Reference:  data.Reference,
		Quantity:   data.Parsed.Quantity,
		Unit:       data.Parsed.Unit,
		Name:       data.Parsed.Name,
		Pattern:    data.Parsed.Pattern,
	})
	if err != nil {
		return data, err
	}
	data.IngredientLineID = id
	return data, nil
}

func schedulePatternTracking(ctx context.Context, data recipe.IngredientJob, deps Deps, _ *pipeline.ActionContext) (recipe.IngredientJob, error) {
	if data.Parsed == nil || data.Parsed.Pattern == "" {
		return data, nil
	}

	job := recipe.PatternJob{
		JobMeta:   recipe.JobMeta{NoteID: data.NoteID, ImportID: data.ImportID},
		Reference: data.Reference,
		Pattern:   data.Parsed.Pattern,
	}
	opts := queue.Options{RemoveOnComplete: true, Attempts: 1}
	if _, err := deps.Queues.Enqueue(ctx, recipe.QueuePatternTracking, recipe.JobTrackPattern, job, opts); err != nil {
		return data, pipeline.Transient(fmt.Errorf("failed to schedule pattern tracking: %w", err))
	}
	return data, nil
}
