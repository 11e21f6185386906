package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/mocks"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRegistry(dispatcher dispatch.Dispatcher) *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(dispatcher)

	return reg
}

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf-1",
		ShopID: "shop-1",
		Action: models.Action{
			Type:   models.ActionTypeSendMessage,
			Config: map[string]any{"template_id": "tpl-welcome"},
		},
	}
}

func testExecution() *models.WorkflowExecution {
	return &models.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ShopID: "shop-1"}
}

func forCustomer(customerID string) any {
	return mock.MatchedBy(func(r models.DispatchRequest) bool { return r.CustomerID == customerID })
}

func TestExecuteAction_PartialFailure(t *testing.T) {
	dispatcher := &mocks.MockDispatcher{}
	for _, id := range []string{"c1", "c3", "c5"} {
		dispatcher.On("Send", mock.Anything, forCustomer(id)).Return(nil).Once()
	}

	for _, id := range []string{"c2", "c4"} {
		dispatcher.On("Send", mock.Anything, forCustomer(id)).Return(dispatch.ErrDispatchUnavailable).Once()
	}

	executor := NewExecutor(newRegistry(dispatcher), slog.Default())

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), []string{"c1", "c2", "c3", "c4", "c5"}, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 3, FailureCount: 2}, result)
	dispatcher.AssertExpectations(t)
}

func TestExecuteAction_DispatchRequest(t *testing.T) {
	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Send", mock.Anything, models.DispatchRequest{
		IdempotencyKey: "dispatch:exec-1:c1",
		ExecutionID:    "exec-1",
		WorkflowID:     "wf-1",
		ShopID:         "shop-1",
		CustomerID:     "c1",
		TemplateID:     "tpl-welcome",
		Channel:        "sms",
	}).Return(nil).Once()

	executor := NewExecutor(newRegistry(dispatcher), slog.Default())

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), []string{"c1"}, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 1}, result)
	dispatcher.AssertExpectations(t)
}

func TestExecuteAction_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		action models.Action
	}{
		{
			name:   "unknown action type",
			action: models.Action{Type: "send-coupon", Config: map[string]any{}},
		},
		{
			name:   "missing template",
			action: models.Action{Type: models.ActionTypeSendMessage, Config: map[string]any{"channel": "sms"}},
		},
		{
			name:   "unsupported channel",
			action: models.Action{Type: models.ActionTypeSendMessage, Config: map[string]any{"template_id": "t", "channel": "fax"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &mocks.MockDispatcher{}
			executor := NewExecutor(newRegistry(dispatcher), slog.Default())

			workflow := testWorkflow()
			workflow.Action = tt.action

			result, err := executor.ExecuteAction(t.Context(), workflow, []string{"c1", "c2", "c3"}, testExecution())

			var configErr *ConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.action.Type, configErr.ActionType)
			assert.True(t, registry.IsConfigurationError(err))
			assert.Equal(t, Result{SuccessCount: 0, FailureCount: 3}, result)
			dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestExecuteAction_EmptyTargets(t *testing.T) {
	dispatcher := &mocks.MockDispatcher{}
	executor := NewExecutor(newRegistry(dispatcher), slog.Default())

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), nil, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestExecuteAction_ClaimedDispatchIsNotResent(t *testing.T) {
	store := claims.NewMemoryStore()
	ok, err := store.Claim(t.Context(), IdempotencyKey("exec-1", "c1"), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Send", mock.Anything, forCustomer("c2")).Return(nil).Once()

	executor := NewExecutor(newRegistry(dispatcher), slog.Default(), WithClaims(store))

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), []string{"c1", "c2"}, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 2}, result)
	dispatcher.AssertExpectations(t)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, forCustomer("c1"))
}

func TestExecuteAction_FailedDispatchReleasesClaim(t *testing.T) {
	store := claims.NewMemoryStore()

	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Send", mock.Anything, forCustomer("c1")).Return(nil).Once()
	dispatcher.On("Send", mock.Anything, forCustomer("c2")).Return(dispatch.ErrDispatchRejected).Once()

	executor := NewExecutor(newRegistry(dispatcher), slog.Default(), WithClaims(store))

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), []string{"c1", "c2"}, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 1, FailureCount: 1}, result)

	ok, err := store.Claim(t.Context(), IdempotencyKey("exec-1", "c1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "sent dispatch keeps its claim")

	ok, err = store.Claim(t.Context(), IdempotencyKey("exec-1", "c2"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "failed dispatch released its claim")
}

// gaugeDispatcher records the peak number of concurrent sends.
type gaugeDispatcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	fail     map[string]bool
}

func (d *gaugeDispatcher) Send(_ context.Context, request models.DispatchRequest) error {
	current := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	for {
		peak := d.peak.Load()
		if current <= peak || d.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	time.Sleep(5 * time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail[request.CustomerID] {
		return errors.New("rejected")
	}

	return nil
}

func TestExecuteAction_BoundedConcurrencyAndCounts(t *testing.T) {
	targets := make([]string, 0, 40)
	fail := map[string]bool{}

	for i := range 40 {
		id := fmt.Sprintf("c%02d", i)
		targets = append(targets, id)

		if i%3 == 0 {
			fail[id] = true
		}
	}

	dispatcher := &gaugeDispatcher{fail: fail}
	executor := NewExecutor(newRegistry(dispatcher), slog.Default(), WithConcurrency(3))

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), targets, testExecution())
	require.NoError(t, err)
	assert.Equal(t, len(targets), result.SuccessCount+result.FailureCount)
	assert.Equal(t, len(fail), result.FailureCount)
	assert.LessOrEqual(t, dispatcher.peak.Load(), int32(3))
}

// blockingDispatcher waits for its context to end.
type blockingDispatcher struct{}

func (blockingDispatcher) Send(ctx context.Context, _ models.DispatchRequest) error {
	<-ctx.Done()

	return ctx.Err()
}

func TestExecuteAction_DispatchTimeout(t *testing.T) {
	executor := NewExecutor(newRegistry(blockingDispatcher{}), slog.Default(), WithDispatchTimeout(10*time.Millisecond))

	result, err := executor.ExecuteAction(t.Context(), testWorkflow(), []string{"c1", "c2"}, testExecution())
	require.NoError(t, err)
	assert.Equal(t, Result{FailureCount: 2}, result)
}

func TestExecuteAction_CancelledContextCountsRemainingAsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	dispatcher := &mocks.MockDispatcher{}
	executor := NewExecutor(newRegistry(dispatcher), slog.Default())

	result, err := executor.ExecuteAction(ctx, testWorkflow(), []string{"c1", "c2", "c3"}, testExecution())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{FailureCount: 3}, result)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
