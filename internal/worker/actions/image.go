package actions

import (
	"context"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// Image pipeline actions
const (
	ActionBroadcastImageStart  = "broadcast_image_start"
	ActionUpdateImageCount     = "update_image_count"
	ActionInspectImage         = "inspect_image"
	ActionSaveImage            = "save_image"
	ActionCheckImageCompletion = "check_image_completion"
)

// ContextImageProcessing is the status context of images
const ContextImageProcessing = "image_processing"

var imagePlan = pipeline.Plan{
	Status: []string{ActionBroadcastImageStart},
	Count:  ActionUpdateImageCount,
	Steps:  []string{ActionInspectImage, ActionSaveImage},
	Final:  ActionCheckImageCompletion,
}

// Image returns the definition of the image queue
func Image() Definition[recipe.ImageJob] {
	f := pipeline.NewFactory[recipe.ImageJob, Deps]()

	f.MustRegister(ActionBroadcastImageStart,
		broadcastStart[recipe.ImageJob](ActionBroadcastImageStart, ContextImageProcessing, "Processing image"))
	f.MustRegister(ActionUpdateImageCount,
		updateCount[recipe.ImageJob](ActionUpdateImageCount, ContextImageProcessing))
	f.MustRegister(ActionInspectImage, func(Deps) pipeline.Action[recipe.ImageJob, Deps] {
		return pipeline.NewAction(ActionInspectImage, inspectImage, pipeline.NonRetryable())
	})
	f.MustRegister(ActionSaveImage, func(Deps) pipeline.Action[recipe.ImageJob, Deps] {
		return pipeline.NewAction(ActionSaveImage, saveImage)
	})
	f.MustRegister(ActionCheckImageCompletion,
		checkCompletion[recipe.ImageJob](ActionCheckImageCompletion))

	return Definition[recipe.ImageJob]{
		Queue:    recipe.QueueImage,
		Factory:  f,
		Builder:  unitBuilder(f, imagePlan),
		Tracking: recipe.ImageJob.Tracking,
	}
}

func inspectImage(ctx context.Context, data recipe.ImageJob, deps Deps, _ *pipeline.ActionContext) (recipe.ImageJob, error) {
	contentType, err := deps.Parsers.Images.Inspect(ctx, data.ImageURL)
	if err != nil {
		return data, err
	}
	data.ContentType = contentType
	return data, nil
}

func saveImage(ctx context.Context, data recipe.ImageJob, deps Deps, _ *pipeline.ActionContext) (recipe.ImageJob, error) {
	id, err := deps.Storage.SaveImage(ctx, recipe.Image{
		NoteID:      data.NoteID,
		ImageIndex:  data.Index,
		URL:         data.ImageURL,
		ContentType: data.ContentType,
	})
	if err != nil {
		return data, err
	}
	data.ImageID = id
	return data, nil
}
