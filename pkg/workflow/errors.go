package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures. The kind decides routing: timeout
// and infrastructure errors fail the task immediately without consuming the
// quality gate retry budget; execution and review errors do the same but mark
// a different cause in the audit trail.
type ErrorKind string

const (
	ErrKindSafety    ErrorKind = "safety"
	ErrKindInfra     ErrorKind = "infrastructure"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindExecution ErrorKind = "execution"
	ErrKindReview    ErrorKind = "review"
	ErrKindFinalize  ErrorKind = "finalize"
)

// TaskError wraps a failure with its classification and owning task.
type TaskError struct {
	Kind   ErrorKind
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %s error: %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func newTaskError(kind ErrorKind, taskID string, err error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, Err: err}
}

// KindOf extracts the error classification, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var terr *TaskError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}
