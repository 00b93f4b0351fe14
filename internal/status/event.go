// Package status defines the progress and terminal events published for a
// note and the broadcasters that deliver them.
//
// Events are built with one constructor per status kind. Optional fields are
// pointers or empty strings that are omitted from the JSON payload, so a zero
// count or indent level is sent as 0 instead of being dropped or replaced.
package status

import (
	"fmt"
	"maps"
)

// Status is the kind of a status event
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Event is the wire-level status message consumed by the transport
type Event struct {
	ImportID     string         `json:"importId"`
	NoteID       string         `json:"noteId,omitempty"`
	Status       Status         `json:"status"`
	Message      string         `json:"message,omitempty"`
	Context      string         `json:"context,omitempty"`
	CurrentCount *int           `json:"currentCount,omitempty"`
	TotalCount   *int           `json:"totalCount,omitempty"`
	IndentLevel  *int           `json:"indentLevel,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Pending announces work that has been accepted but not started
func Pending(importID, noteID, context, message string) Event {
	return Event{ImportID: importID, NoteID: noteID, Status: StatusPending, Context: context, Message: message}
}

// Processing announces that a step started for a note
func Processing(importID, noteID, context, message string) Event {
	return Event{ImportID: importID, NoteID: noteID, Status: StatusProcessing, Context: context, Message: message}
}

// Progress reports current/total for a counted step
func Progress(importID, noteID, context string, current, total int) Event {
	return Event{
		ImportID:     importID,
		NoteID:       noteID,
		Status:       StatusProcessing,
		Context:      context,
		Message:      fmt.Sprintf("%d/%d", current, total),
		CurrentCount: &current,
		TotalCount:   &total,
	}
}

// Completed announces that a note or step reached its terminal state
func Completed(importID, noteID, context, message string) Event {
	return Event{ImportID: importID, NoteID: noteID, Status: StatusCompleted, Context: context, Message: message}
}

// Failed announces a failure; err may be nil
func Failed(importID, noteID, context string, err error) Event {
	e := Event{ImportID: importID, NoteID: noteID, Status: StatusFailed, Context: context}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// WithIndent returns a copy of e at the given indent level
func (e Event) WithIndent(level int) Event {
	e.IndentLevel = &level
	return e
}

// WithCounts returns a copy of e carrying current/total
func (e Event) WithCounts(current, total int) Event {
	e.CurrentCount = &current
	e.TotalCount = &total
	return e
}

// WithMetadata returns a copy of e with key set in its metadata
func (e Event) WithMetadata(key string, value any) Event {
	md := make(map[string]any, len(e.Metadata)+1)
	maps.Copy(md, e.Metadata)
	md[key] = value
	e.Metadata = md
	return e
}

// IsTerminal reports whether the event ends the note's lifecycle
func (e Event) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
