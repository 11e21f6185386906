// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidTrigger       = errors.New("invalid trigger")
	ErrInvalidAction        = errors.New("invalid action")
	ErrScheduleNeverFires   = errors.New("schedule has no future occurrence")
	ErrCallerRequired       = errors.New("shop and staff are required")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrInvalidExecutionsCap = errors.New("limit must be between 1 and 100")

	// Business Logic Conflicts (409 Conflict).
	ErrDuplicateTitle = errors.New("a workflow with this title already exists in the shop")

	// Authorization (403 Forbidden).
	ErrNotWorkflowOwner = errors.New("workflow is owned by another staff member")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrScheduleNeverFires) ||
		errors.Is(err, ErrCallerRequired) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidExecutionsCap)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateTitle)
}

// IsForbiddenError checks if an error should return HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotWorkflowOwner)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
