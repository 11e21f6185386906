// Package models defines the core domain models for marketing workflow automation
package models

import "time"

// TriggerCategory is the coarse grouping used to look workflows up.
type TriggerCategory string

const (
	TriggerCategoryEvent    TriggerCategory = "EVENT"    // Fired by customer lifecycle events
	TriggerCategorySchedule TriggerCategory = "SCHEDULE" // Fired when next_scheduled_at is due
	TriggerCategoryPeriodic TriggerCategory = "PERIODIC" // Daily cohort checks
)

// Default lookback periods applied when an exclusion flag is set without a period.
const (
	DefaultDormantPeriodMonths     = 3
	DefaultRecentMessagePeriodDays = 7
)

// Workflow is a shop-scoped automation rule combining targeting, a trigger and an action.
type Workflow struct {
	ID          string `json:"id"`
	ShopID      string `json:"shop_id"     validate:"required"`
	StaffID     string `json:"staff_id"    validate:"required"`
	Title       string `json:"title"       validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=1000"`

	Targeting Targeting `json:"targeting"`
	Trigger   Trigger   `json:"trigger"`
	Action    Action    `json:"action"`

	Active          bool          `json:"active"`
	Stats           WorkflowStats `json:"stats"`
	NextScheduledAt *time.Time    `json:"next_scheduled_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Targeting holds the inclusion and exclusion predicates. They combine with logical AND.
type Targeting struct {
	Grades []string `json:"grades"`
	Tags   []string `json:"tags"`

	ExcludeDormantCustomers bool `json:"exclude_dormant_customers"`
	DormantPeriodMonths     int  `json:"dormant_period_months"      validate:"min=0,max=120"`

	ExcludeRecentMessageReceivers bool `json:"exclude_recent_message_receivers"`
	RecentMessagePeriodDays       int  `json:"recent_message_period_days" validate:"min=0,max=365"`
}

// ApplyDefaults fills lookback periods for exclusions that are enabled without one.
func (t *Targeting) ApplyDefaults() {
	if t.ExcludeDormantCustomers && t.DormantPeriodMonths == 0 {
		t.DormantPeriodMonths = DefaultDormantPeriodMonths
	}

	if t.ExcludeRecentMessageReceivers && t.RecentMessagePeriodDays == 0 {
		t.RecentMessagePeriodDays = DefaultRecentMessagePeriodDays
	}

	if t.Grades == nil {
		t.Grades = []string{}
	}

	if t.Tags == nil {
		t.Tags = []string{}
	}
}

// Trigger is a tagged union: Type selects the config parser in the registry.
type Trigger struct {
	Type     string          `json:"type"     validate:"required"`
	Category TriggerCategory `json:"category" validate:"required,oneof=EVENT SCHEDULE PERIODIC"`
	Config   map[string]any  `json:"config"`
}

// Action is a tagged union: Type selects the action factory in the registry.
type Action struct {
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config"`
}

// WorkflowStats are rolling counters maintained by execution finalization.
type WorkflowStats struct {
	ExecutionCount int64      `json:"execution_count"`
	SuccessCount   int64      `json:"success_count"`
	FailureCount   int64      `json:"failure_count"`
	SuccessRate    float64    `json:"success_rate"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// Record folds a finalized execution into the statistics.
func (s *WorkflowStats) Record(execution *WorkflowExecution) {
	s.ExecutionCount++
	s.SuccessCount += int64(execution.SuccessCount)
	s.FailureCount += int64(execution.FailureCount)
	s.SuccessRate = SuccessRate(s.SuccessCount, s.FailureCount)

	if execution.FinishedAt != nil {
		finished := *execution.FinishedAt
		s.LastExecutedAt = &finished
	}
}

// SuccessRate returns the percentage of successful actions, 0 when nothing ran.
func SuccessRate(success, failure int64) float64 {
	total := success + failure
	if total == 0 {
		return 0
	}

	return float64(success) * 100 / float64(total)
}

// IsDeleted reports whether the workflow was soft-deleted.
func (w *Workflow) IsDeleted() bool {
	return w.DeletedAt != nil
}

// IsRunnable reports whether the workflow may start new executions.
func (w *Workflow) IsRunnable() bool {
	return w.Active && !w.IsDeleted()
}

// ShopWorkflowStats is the per-shop dashboard summary.
type ShopWorkflowStats struct {
	Total             int     `json:"total"`
	Active            int     `json:"active"`
	Inactive          int     `json:"inactive"`
	MonthlyExecutions int     `json:"monthly_executions"`
	MonthlySuccess    int     `json:"monthly_success"`
	MonthlyFailure    int     `json:"monthly_failure"`
	AvgSuccessRate    float64 `json:"avg_success_rate"`
}
