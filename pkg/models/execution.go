package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending         ExecutionStatus = "PENDING"
	ExecutionStatusRunning         ExecutionStatus = "RUNNING"
	ExecutionStatusSucceeded       ExecutionStatus = "SUCCEEDED"
	ExecutionStatusPartiallyFailed ExecutionStatus = "PARTIALLY_FAILED"
	ExecutionStatusFailed          ExecutionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusPartiallyFailed, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// ExecutionSource records which entry point started an execution.
type ExecutionSource string

const (
	ExecutionSourceEvent    ExecutionSource = "event"
	ExecutionSourceSchedule ExecutionSource = "schedule"
	ExecutionSourcePeriodic ExecutionSource = "periodic"
	ExecutionSourceManual   ExecutionSource = "manual"
)

// WorkflowExecution is one auditable attempt to run a workflow.
type WorkflowExecution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	ShopID     string          `json:"shop_id"`
	Source     ExecutionSource `json:"source"`
	Status     ExecutionStatus `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// HeartbeatAt is refreshed by the process running the execution.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`

	TargetCount  int    `json:"target_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	ErrorSummary string `json:"error_summary,omitempty"`
}

// NewExecution builds a PENDING execution bound to the workflow.
func NewExecution(id string, workflow *Workflow, source ExecutionSource, now time.Time) *WorkflowExecution {
	return &WorkflowExecution{
		ID:         id,
		WorkflowID: workflow.ID,
		ShopID:     workflow.ShopID,
		Source:     source,
		Status:     ExecutionStatusPending,
		CreatedAt:  now,
	}
}

// Start moves the execution from PENDING to RUNNING.
func (e *WorkflowExecution) Start(now time.Time) error {
	if e.Status != ExecutionStatusPending {
		return fmt.Errorf("cannot start execution %s in status %s", e.ID, e.Status)
	}

	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
	e.HeartbeatAt = &now

	return nil
}

// LastSeen is the latest moment the execution is known to have been alive.
func (e *WorkflowExecution) LastSeen() time.Time {
	switch {
	case e.HeartbeatAt != nil:
		return *e.HeartbeatAt
	case e.StartedAt != nil:
		return *e.StartedAt
	default:
		return e.CreatedAt
	}
}

// Finish moves a non-terminal execution to the terminal status derived from its counts.
// A non-empty errorSummary never yields SUCCEEDED.
func (e *WorkflowExecution) Finish(now time.Time, targets, success, failure int, errorSummary string) error {
	if e.Status.IsTerminal() {
		return fmt.Errorf("execution %s already finalized as %s", e.ID, e.Status)
	}

	e.TargetCount = targets
	e.SuccessCount = success
	e.FailureCount = failure
	e.ErrorSummary = errorSummary
	e.FinishedAt = &now

	if e.StartedAt == nil {
		e.StartedAt = &now
	}

	e.Status = DeriveStatus(success, failure, errorSummary != "")

	return nil
}

// DeriveStatus maps outcome counts to a terminal status.
func DeriveStatus(success, failure int, failed bool) ExecutionStatus {
	switch {
	case success == 0 && (failed || failure > 0):
		return ExecutionStatusFailed
	case failure == 0 && !failed:
		return ExecutionStatusSucceeded
	default:
		return ExecutionStatusPartiallyFailed
	}
}

// Duration returns the wall time between start and finish, zero if unfinished.
func (e *WorkflowExecution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}

	return e.FinishedAt.Sub(*e.StartedAt)
}

// ExecutionSummary aggregates executions of a shop over a time window.
type ExecutionSummary struct {
	Total           int `json:"total"`
	Succeeded       int `json:"succeeded"`
	PartiallyFailed int `json:"partially_failed"`
	Failed          int `json:"failed"`
}
