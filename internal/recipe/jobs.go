// Package recipe holds the job payloads, models and parsers of the recipe
// note ingestion pipeline.
package recipe

import (
	"fmt"
	"strconv"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
)

// Queue names
const (
	QueueNote            = "note"
	QueueIngredient      = "ingredient"
	QueueInstruction     = "instruction"
	QueueImage           = "image"
	QueueCategorization  = "categorization"
	QueuePatternTracking = "pattern_tracking"
)

// Queues lists every queue a worker process serves
var Queues = []string{
	QueueNote,
	QueueIngredient,
	QueueInstruction,
	QueueImage,
	QueueCategorization,
	QueuePatternTracking,
}

// Job names
const (
	JobProcessNote      = "process_note"
	JobParseIngredient  = "parse_ingredient_line"
	JobParseInstruction = "parse_instruction_line"
	JobProcessImage     = "process_image"
	JobCategorizeNote   = "categorize_note"
	JobTrackPattern     = "track_pattern"
)

// JobMeta is carried by every job
type JobMeta struct {
	JobID    string         `json:"jobId,omitempty"`
	NoteID   string         `json:"noteId,omitempty"`
	ImportID string         `json:"importId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (m JobMeta) tracking(current, total *int) pipeline.Tracking {
	return pipeline.Tracking{NoteID: m.NoteID, ImportID: m.ImportID, CurrentIndex: current, TotalCount: total}
}

func (m JobMeta) requireNote() error {
	if m.NoteID == "" {
		return pipeline.Validationf("noteId is required")
	}
	return nil
}

// NoteJob carries a raw HTML note; the note pipeline fills the rest
type NoteJob struct {
	JobMeta
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`

	Cleaned   string      `json:"cleaned,omitempty"`
	Parsed    *ParsedNote `json:"parsed,omitempty"`
	Scheduled int         `json:"scheduled,omitempty"`
}

// Validate checks the fields a producer must set
func (j NoteJob) Validate() error {
	if j.ImportID == "" {
		return pipeline.Validationf("importId is required")
	}
	if j.Content == "" {
		return pipeline.Validationf("content is required")
	}
	return nil
}

// Tracking has no running count; the note job is not a unit of itself
func (j NoteJob) Tracking() pipeline.Tracking {
	return j.tracking(nil, nil)
}

// TotalUnits is the number of unit jobs a parsed note fans out to
func (j NoteJob) TotalUnits() int {
	if j.Parsed == nil {
		return 0
	}
	// one categorization pass per note
	return len(j.Parsed.Ingredients) + len(j.Parsed.Instructions) + len(j.Parsed.Images) + 1
}

// IngredientJob parses and stores one ingredient line
type IngredientJob struct {
	JobMeta
	Reference    string `json:"reference"`
	BlockIndex   int    `json:"blockIndex"`
	LineIndex    int    `json:"lineIndex"`
	CurrentIndex *int   `json:"currentIndex,omitempty"`
	TotalCount   *int   `json:"totalCount,omitempty"`

	IngredientLineID string            `json:"ingredientLineId,omitempty"`
	Parsed           *ParsedIngredient `json:"parsed,omitempty"`
}

func (j IngredientJob) Validate() error {
	if err := j.requireNote(); err != nil {
		return err
	}
	if j.LineIndex < 0 || j.BlockIndex < 0 {
		return pipeline.Validationf("ingredient line index must not be negative")
	}
	return nil
}

func (j IngredientJob) Tracking() pipeline.Tracking {
	return j.tracking(j.CurrentIndex, j.TotalCount)
}

// UnitKey identifies the line for completion deduplication
func (j IngredientJob) UnitKey() string {
	return fmt.Sprintf("%s:%d:%d", QueueIngredient, j.BlockIndex, j.LineIndex)
}

// InstructionJob normalizes and stores one instruction line
type InstructionJob struct {
	JobMeta
	OriginalText string `json:"originalText"`
	LineIndex    int    `json:"lineIndex"`
	CurrentIndex *int   `json:"currentIndex,omitempty"`
	TotalCount   *int   `json:"totalCount,omitempty"`

	InstructionLineID string `json:"instructionLineId,omitempty"`
	NormalizedText    string `json:"normalizedText,omitempty"`
}

func (j InstructionJob) Validate() error {
	if err := j.requireNote(); err != nil {
		return err
	}
	if j.LineIndex < 0 {
		return pipeline.Validationf("instruction line index must not be negative")
	}
	return nil
}

func (j InstructionJob) Tracking() pipeline.Tracking {
	return j.tracking(j.CurrentIndex, j.TotalCount)
}

func (j InstructionJob) UnitKey() string {
	return QueueInstruction + ":" + strconv.Itoa(j.LineIndex)
}

// ImageJob records one image referenced by a note
type ImageJob struct {
	JobMeta
	ImageURL     string `json:"imageUrl"`
	Index        int    `json:"index"`
	CurrentIndex *int   `json:"currentIndex,omitempty"`
	TotalCount   *int   `json:"totalCount,omitempty"`

	ImageID     string `json:"imageId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

func (j ImageJob) Validate() error {
	if err := j.requireNote(); err != nil {
		return err
	}
	if j.ImageURL == "" {
		return pipeline.Validationf("imageUrl is required")
	}
	return nil
}

func (j ImageJob) Tracking() pipeline.Tracking {
	return j.tracking(j.CurrentIndex, j.TotalCount)
}

func (j ImageJob) UnitKey() string {
	return QueueImage + ":" + strconv.Itoa(j.Index)
}

// CategorizationJob assigns a category to a stored note
type CategorizationJob struct {
	JobMeta
	Category string `json:"category,omitempty"`
}

func (j CategorizationJob) Validate() error {
	return j.requireNote()
}

// Tracking has no running count; categorization is a single pass
func (j CategorizationJob) Tracking() pipeline.Tracking {
	return j.tracking(nil, nil)
}

func (j CategorizationJob) UnitKey() string {
	return QueueCategorization
}

// PatternJob counts one occurrence of an ingredient line shape
type PatternJob struct {
	JobMeta
	Reference string `json:"reference"`
	Pattern   string `json:"pattern"`

	Occurrences int `json:"occurrences,omitempty"`
}

func (j PatternJob) Validate() error {
	if j.Pattern == "" {
		return pipeline.Validationf("pattern is required")
	}
	return nil
}

func (j PatternJob) Tracking() pipeline.Tracking {
	return j.tracking(nil, nil)
}
