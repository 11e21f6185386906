// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionInProgress indicates the workflow already has an unfinished execution.
	ErrExecutionInProgress = errors.New("workflow has an execution in progress")

	// ErrExecutionAlreadyFinalized indicates a terminal execution was written again.
	ErrExecutionAlreadyFinalized = errors.New("execution already finalized")

	// ErrInvalidExecutionTransition indicates a status change the state machine does not allow.
	ErrInvalidExecutionTransition = errors.New("invalid execution status transition")

	// ErrOutboxMessageNotFound indicates an outbox message was not found.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// ErrDuplicateWorkflowTitle indicates the store's own title uniqueness constraint fired.
	ErrDuplicateWorkflowTitle = errors.New("workflow title already exists in shop")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	WorkflowID  string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s of workflow %s: %v", e.Op, e.ExecutionID, e.WorkflowID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID, workflowID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Err:         err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsDuplicateWorkflowTitle checks if an error indicates a title collision inside a shop.
func IsDuplicateWorkflowTitle(err error) bool {
	return errors.Is(err, ErrDuplicateWorkflowTitle)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionInProgress checks if an error indicates the concurrency guard refused a run.
func IsExecutionInProgress(err error) bool {
	return errors.Is(err, ErrExecutionInProgress)
}

// IsExecutionAlreadyFinalized checks if an error indicates a second finalization attempt.
func IsExecutionAlreadyFinalized(err error) bool {
	return errors.Is(err, ErrExecutionAlreadyFinalized)
}
