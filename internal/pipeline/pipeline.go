package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline is the ordered list of actions built for one job. Final, when
// set, is the completion check and always runs last.
type Pipeline[D, X any] struct {
	Steps []Action[D, X]
	Final Action[D, X]
}

// Names returns the full action sequence, Final included
func (p Pipeline[D, X]) Names() []string {
	names := make([]string, 0, p.Len())
	for _, step := range p.Steps {
		names = append(names, step.Name())
	}
	if p.Final != nil {
		names = append(names, p.Final.Name())
	}
	return names
}

// Len is the number of actions, Final included
func (p Pipeline[D, X]) Len() int {
	n := len(p.Steps)
	if p.Final != nil {
		n++
	}
	return n
}

// Builder turns one job's data into its pipeline. It must be deterministic:
// the same data and context always produce the same action sequence.
type Builder[D, X any] func(data D, actx *ActionContext, deps X) (Pipeline[D, X], error)

// Plan is the standard layout of a note unit pipeline
type Plan struct {
	// Status actions run first, only when the job belongs to a note
	Status []string
	// Count updates the running import count, only when fully tracked
	Count string
	// Steps are the domain actions
	Steps []string
	// Final is the completion check
	Final string
}

// Tracking is what a job carries that decides the optional parts of a Plan
type Tracking struct {
	NoteID       string
	ImportID     string
	CurrentIndex *int
	TotalCount   *int
}

// HasNote reports whether the job belongs to a note
func (t Tracking) HasNote() bool {
	return t.NoteID != ""
}

// Counted reports whether the running count can be updated
func (t Tracking) Counted() bool {
	return t.ImportID != "" && t.CurrentIndex != nil && t.TotalCount != nil
}

// Names resolves the action sequence the plan yields for the given tracking
func (p Plan) Names(t Tracking) []string {
	var names []string
	if t.HasNote() {
		names = append(names, p.Status...)
	}
	if p.Count != "" && t.Counted() {
		names = append(names, p.Count)
	}
	names = append(names, p.Steps...)
	if p.Final != "" {
		names = append(names, p.Final)
	}
	return names
}

// Assemble creates every action the plan yields for the given tracking
func Assemble[D, X any](factory *Factory[D, X], deps X, plan Plan, t Tracking) (Pipeline[D, X], error) {
	var p Pipeline[D, X]

	var steps []string
	if t.HasNote() {
		steps = append(steps, plan.Status...)
	}
	if plan.Count != "" && t.Counted() {
		steps = append(steps, plan.Count)
	}
	steps = append(steps, plan.Steps...)

	var errs []error
	for _, name := range steps {
		action, err := factory.Create(name, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Steps = append(p.Steps, action)
	}

	if plan.Final != "" {
		final, err := factory.Create(plan.Final, deps)
		if err != nil {
			errs = append(errs, err)
		}
		p.Final = final
	}

	if len(errs) > 0 {
		return Pipeline[D, X]{}, fmt.Errorf("assemble pipeline: %w", errors.Join(errs...))
	}
	return p, nil
}

// Validate checks that every name in the plan is registered
func Validate[D, X any](factory *Factory[D, X], plan Plan) error {
	all := append([]string{}, plan.Status...)
	if plan.Count != "" {
		all = append(all, plan.Count)
	}
	all = append(all, plan.Steps...)
	if plan.Final != "" {
		all = append(all, plan.Final)
	}

	var errs []error
	for _, name := range all {
		if !factory.IsRegistered(name) {
			errs = append(errs, &UnknownActionError{Name: name})
		}
	}
	return errors.Join(errs...)
}
