package mocks

import (
	"context"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) ExistsByTitleAndShopID(ctx context.Context, shopID, title, excludeID string) (bool, error) {
	args := m.Called(ctx, shopID, title, excludeID)

	return args.Bool(0), args.Error(1)
}

func (m *MockWorkflowRepository) ListByShop(ctx context.Context, shopID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, shopID)

	return workflows(args)
}

func (m *MockWorkflowRepository) ListActiveByTrigger(ctx context.Context, shopID string, category models.TriggerCategory, triggerType string) ([]*models.Workflow, error) {
	args := m.Called(ctx, shopID, category, triggerType)

	return workflows(args)
}

func (m *MockWorkflowRepository) ListActiveByCategory(ctx context.Context, category models.TriggerCategory) ([]*models.Workflow, error) {
	args := m.Called(ctx, category)

	return workflows(args)
}

func (m *MockWorkflowRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	args := m.Called(ctx, now)

	return workflows(args)
}

func (m *MockWorkflowRepository) UpdateNextScheduledAt(ctx context.Context, id string, next *time.Time) error {
	args := m.Called(ctx, id, next)

	return args.Error(0)
}

func workflows(args mock.Arguments) ([]*models.Workflow, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution, opts persistence.CreateExecutionOptions) error {
	args := m.Called(ctx, execution, opts)

	return args.Error(0)
}

func (m *MockExecutionRepository) MarkRunning(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)

	return args.Error(0)
}

func (m *MockExecutionRepository) Finalize(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID, limit)

	return executions(args)
}

func (m *MockExecutionRepository) ListStale(ctx context.Context, lastSeenBefore time.Time) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, lastSeenBefore)

	return executions(args)
}

func (m *MockExecutionRepository) HasUnfinished(ctx context.Context, workflowID string) (bool, error) {
	args := m.Called(ctx, workflowID)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) Summarize(ctx context.Context, shopID string, since time.Time) (models.ExecutionSummary, error) {
	args := m.Called(ctx, shopID, since)

	return args.Get(0).(models.ExecutionSummary), args.Error(1)
}

func executions(args mock.Arguments) ([]*models.WorkflowExecution, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}
