// Package statustest provides an in-memory broadcaster for tests.
package statustest

import (
	"context"
	"sync"

	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// Recorder stores every broadcast event and optionally fails
type Recorder struct {
	mu     sync.Mutex
	events []status.Event
	Err    error
}

// AddStatusEventAndBroadcast records the event and returns r.Err
func (r *Recorder) AddStatusEventAndBroadcast(_ context.Context, event status.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Event(nil), r.events...)
}

// Count returns how many recorded events match s and ctx; empty ctx matches any
func (r *Recorder) Count(s status.Status, ctx string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Status == s && (ctx == "" || e.Context == ctx) {
			n++
		}
	}
	return n
}
