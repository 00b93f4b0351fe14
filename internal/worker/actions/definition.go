package actions

import (
	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// Definition is everything a worker needs to serve one queue
type Definition[D any] struct {
	Queue    string
	Factory  *pipeline.Factory[D, Deps]
	Builder  pipeline.Builder[D, Deps]
	Tracking func(D) pipeline.Tracking
}

// Actions lists the registered action names
func (d Definition[D]) Actions() []string {
	return d.Factory.List()
}

// Catalog returns the registered actions of every queue
func Catalog() map[string][]string {
	return map[string][]string{
		recipe.QueueNote:            Note().Actions(),
		recipe.QueueIngredient:      Ingredient().Actions(),
		recipe.QueueInstruction:     Instruction().Actions(),
		recipe.QueueImage:           Image().Actions(),
		recipe.QueueCategorization:  Categorization().Actions(),
		recipe.QueuePatternTracking: Pattern().Actions(),
	}
}

// Plans returns the unit plans keyed by queue, used to validate wiring
func Plans() map[string]pipeline.Plan {
	return map[string]pipeline.Plan{
		recipe.QueueIngredient:     ingredientPlan,
		recipe.QueueInstruction:    instructionPlan,
		recipe.QueueImage:          imagePlan,
		recipe.QueueCategorization: categorizationPlan,
	}
}
