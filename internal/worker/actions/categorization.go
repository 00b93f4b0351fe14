package actions

import (
	"context"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// Categorization pipeline actions
const (
	ActionBroadcastCategorizationStart  = "broadcast_categorization_start"
	ActionCategorizeNote                = "categorize_note"
	ActionSaveCategory                  = "save_category"
	ActionCheckCategorizationCompletion = "check_categorization_completion"
)

// ContextCategorization is the status context of note categorization
const ContextCategorization = "categorization"

var categorizationPlan = pipeline.Plan{
	Status: []string{ActionBroadcastCategorizationStart},
	Steps:  []string{ActionCategorizeNote, ActionSaveCategory},
	Final:  ActionCheckCategorizationCompletion,
}

// Categorization returns the definition of the categorization queue
func Categorization() Definition[recipe.CategorizationJob] {
	f := pipeline.NewFactory[recipe.CategorizationJob, Deps]()

	f.MustRegister(ActionBroadcastCategorizationStart,
		broadcastStart[recipe.CategorizationJob](ActionBroadcastCategorizationStart, ContextCategorization, "Categorizing note"))
	f.MustRegister(ActionCategorizeNote, func(Deps) pipeline.Action[recipe.CategorizationJob, Deps] {
		return pipeline.NewAction(ActionCategorizeNote, categorizeNote)
	})
	f.MustRegister(ActionSaveCategory, func(Deps) pipeline.Action[recipe.CategorizationJob, Deps] {
		return pipeline.NewAction(ActionSaveCategory, saveCategory)
	})
	f.MustRegister(ActionCheckCategorizationCompletion,
		checkCompletion[recipe.CategorizationJob](ActionCheckCategorizationCompletion))

	return Definition[recipe.CategorizationJob]{
		Queue:    recipe.QueueCategorization,
		Factory:  f,
		Builder:  unitBuilder(f, categorizationPlan),
		Tracking: recipe.CategorizationJob.Tracking,
	}
}

func categorizeNote(ctx context.Context, data recipe.CategorizationJob, deps Deps, _ *pipeline.ActionContext) (recipe.CategorizationJob, error) {
	note, err := deps.Storage.GetNote(ctx, data.NoteID)
	if err != nil {
		return data, err
	}

	names, err := deps.Storage.IngredientNames(ctx, data.NoteID)
	if err != nil {
		return data, err
	}

	category, err := deps.Parsers.Categorizer.Categorize(ctx, note.Title, names)
	if err != nil {
		return data, err
	}
	data.Category = category
	return data, nil
}

func saveCategory(ctx context.Context, data recipe.CategorizationJob, deps Deps, _ *pipeline.ActionContext) (recipe.CategorizationJob, error) {
	if data.Category == "" {
		return data, nil
	}
	if err := deps.Storage.UpdateNoteCategory(ctx, data.NoteID, data.Category); err != nil {
		return data, err
	}
	return data, nil
}
