package stagerunner

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, missing tools, file not found, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// StageFailureError represents a failed pipeline stage or gate (exit code 1)
type StageFailureError struct {
	Message string
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("stage failure: %s", e.Message)
}

// NewStageFailureError creates a new StageFailureError
func NewStageFailureError(message string) *StageFailureError {
	return &StageFailureError{Message: message}
}

// IsStageFailureError checks if the error is or wraps a StageFailureError
func IsStageFailureError(err error) bool {
	var stageErr *StageFailureError
	return err != nil && errors.As(err, &stageErr)
}
