package grading

import (
	"errors"
	"fmt"
)

var (
	// ErrDispatchExhausted indicates every model call for a question failed.
	ErrDispatchExhausted = errors.New("all model calls failed")
	// ErrInvalidStateTransition indicates a teacher action against the wrong state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation indicates a submission was rejected before any mutation.
	ErrValidation = errors.New("validation failed")
)

// ModelCallError describes why a single model call produced no vote.
type ModelCallError struct {
	ModelID string
	Reason  string
	Err     error
}

func (e *ModelCallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s: %s", e.ModelID, e.Reason)
	}
	return fmt.Sprintf("model %s: %s: %v", e.ModelID, e.Reason, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when a submission is not legal from the current status.
type TransitionError struct {
	Kind SubmissionKind
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to a question in %s", e.Kind, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// ValidationError reports the offending field of a rejected submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
