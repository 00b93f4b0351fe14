// Package completion tracks how many units of a note's fan-out work have
// finished and fires the single "note completed" transition.
//
// All coordination goes through a Store whose increment is one atomic
// operation returning the post-increment state. Whether a call completed the
// note is decided from that return value only, never from a second read.
package completion

import (
	"context"
	"errors"
	"time"
)

// ErrCounterNotFound is returned when no counter exists for a note
var ErrCounterNotFound = errors.New("completion counter not found")

// ErrInvalidTotal is returned for a negative unit total
var ErrInvalidTotal = errors.New("total units must not be negative")

// Counter is the persisted per-note fan-in state
type Counter struct {
	NoteID      string
	ImportID    string
	Total       int
	Completed   int
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// IsComplete reports whether all expected units have been recorded
func (c Counter) IsComplete() bool {
	return c.Completed >= c.Total
}

// Store persists counters. Implementations must make Increment atomic with
// respect to concurrent callers in any process.
type Store interface {
	// Create inserts a counter unless one exists; created reports whether
	// this call inserted it. A zero total is stored already complete.
	Create(ctx context.Context, noteID, importID string, total int) (c Counter, created bool, err error)

	// Increment adds one completed unit unless the counter is complete or
	// unitKey was already recorded. advanced reports whether this call
	// changed the count. An empty unitKey disables deduplication.
	Increment(ctx context.Context, noteID, unitKey string) (c Counter, advanced bool, err error)

	// Get returns the current counter
	Get(ctx context.Context, noteID string) (Counter, error)
}
