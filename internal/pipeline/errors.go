package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting decisions
type Kind string

const (
	KindValidation    Kind = "validation"
	KindTransient     Kind = "transient"
	KindUnknownAction Kind = "unknown_action"
	KindBroadcast     Kind = "broadcast"
	KindUnknown       Kind = "unknown"
)

var (
	// ErrValidation marks bad job data; never retried
	ErrValidation = errors.New("validation error")

	// ErrTransient marks I/O style failures that are worth retrying
	ErrTransient = errors.New("transient error")

	// ErrBroadcast marks a failed status broadcast; logged, never fails a job
	ErrBroadcast = errors.New("broadcast error")

	// ErrDuplicateAction is returned when an action name is registered twice
	ErrDuplicateAction = errors.New("action already registered")
)

// UnknownActionError is returned when a pipeline asks for an unregistered action
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// ActionError is a classified action failure produced by WithErrorHandling
type ActionError struct {
	Action   string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed (%s, %d attempt(s)): %v", e.Action, e.Kind, e.Attempts, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Validation tags err as a validation failure
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// Validationf builds a validation failure from a message
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transient tags err as a retryable failure
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Broadcast tags err as a broadcast failure
func Broadcast(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBroadcast, err)
}

// Classifier maps an error to a Kind
type Classifier func(error) Kind

// Classify is the default Classifier.
//
// An explicit ActionError kind wins, then markers, then context errors. Timeouts
// and cancellations count as transient so they go through the retry budget.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var actionErr *ActionError
	if errors.As(err, &actionErr) && actionErr.Kind != "" {
		return actionErr.Kind
	}

	var unknownErr *UnknownActionError
	switch {
	case errors.As(err, &unknownErr):
		return KindUnknownAction
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrBroadcast):
		return KindBroadcast
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Retryable reports whether a failure of the given kind may be attempted again.
// Unclassified errors are retried: most of them come from drivers and networks.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}
