package graph

import (
	"fmt"

	"github.com/queryloom/queryloom/workflow/state"
)

// ExecutionError captures execution context when a graph run fails.
//
//   - Step: which step failed
//   - State: state snapshot at failure
//   - Path: execution path leading to the failure
//   - Err: underlying error
type ExecutionError struct {
	Step  StepID
	State state.State
	Path  []StepID
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at step %s: %v", e.Step, e.Err)
}

// Unwrap enables errors.Is and errors.As.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
