package actions

import (
	"context"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
)

// Instruction pipeline actions
const (
	ActionBroadcastInstructionStart  = "broadcast_instruction_start"
	ActionUpdateInstructionCount     = "update_instruction_count"
	ActionParseInstructionLine       = "parse_instruction_line"
	ActionSaveInstructionLine        = "save_instruction_line"
	ActionCheckInstructionCompletion = "check_instruction_completion"
)

// ContextInstructionProcessing is the status context of instruction lines
const ContextInstructionProcessing = "instruction_processing"

var instructionPlan = pipeline.Plan{
	Status: []string{ActionBroadcastInstructionStart},
	Count:  ActionUpdateInstructionCount,
	Steps:  []string{ActionParseInstructionLine, ActionSaveInstructionLine},
	Final:  ActionCheckInstructionCompletion,
}

// Instruction returns the definition of the instruction queue
func Instruction() Definition[recipe.InstructionJob] {
	f := pipeline.NewFactory[recipe.InstructionJob, Deps]()

	f.MustRegister(ActionBroadcastInstructionStart,
		broadcastStart[recipe.InstructionJob](ActionBroadcastInstructionStart, ContextInstructionProcessing, "Parsing instruction line"))
	f.MustRegister(ActionUpdateInstructionCount,
		updateCount[recipe.InstructionJob](ActionUpdateInstructionCount, ContextInstructionProcessing))
	f.MustRegister(ActionParseInstructionLine, func(Deps) pipeline.Action[recipe.InstructionJob, Deps] {
		return pipeline.NewAction(ActionParseInstructionLine, parseInstructionLine, pipeline.NonRetryable())
	})
	f.MustRegister(ActionSaveInstructionLine, func(Deps) pipeline.Action[recipe.InstructionJob, Deps] {
		return pipeline.NewAction(ActionSaveInstructionLine, saveInstructionLine)
	})
	f.MustRegister(ActionCheckInstructionCompletion,
		checkCompletion[recipe.InstructionJob](ActionCheckInstructionCompletion))

	return Definition[recipe.InstructionJob]{
		Queue:    recipe.QueueInstruction,
		Factory:  f,
		Builder:  unitBuilder(f, instructionPlan),
		Tracking: recipe.InstructionJob.Tracking,
	}
}

func parseInstructionLine(ctx context.Context, data recipe.InstructionJob, deps Deps, _ *pipeline.ActionContext) (recipe.InstructionJob, error) {
	normalized, err := deps.Parsers.Instruction.ParseInstruction(ctx, data.OriginalText)
	if err != nil {
		return data, err
	}
	data.NormalizedText = normalized
	return data, nil
}

func saveInstructionLine(ctx context.Context, data recipe.InstructionJob, deps Deps, _ *pipeline.ActionContext) (recipe.InstructionJob, error) {
	normalized := data.NormalizedText
	if normalized == "" {
		normalized = data.OriginalText
	}

	id, err := deps.Storage.SaveInstructionLine(ctx, recipe.InstructionLine{
		NoteID:         data.NoteID,
		LineIndex:      data.LineIndex,
		OriginalText:   data.OriginalText,
		NormalizedText: normalized,
	})
	if err != nil {
		return data, err
	}
	data.InstructionLineID = id
	return data, nil
}
