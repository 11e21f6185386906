package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/mocks"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/notify"
	"github.com/salonkit/workflowd/pkg/persistence/file"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/salonkit/workflowd/pkg/services"
	"github.com/salonkit/workflowd/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app *fiber.App
	bus *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(&mocks.MockDispatcher{})

	bus := &mocks.MockEventBus{}
	workflowService := services.NewWorkflow(store, reg, slog.Default())
	ingestion := services.NewIngestion(workflowService, bus)

	handlers := web.NewAPIHandlers(
		workflowService,
		ingestion,
		notify.NewHub(slog.Default()),
		reg,
		validator.New(validator.WithRequiredStructEnabled()),
		slog.Default(),
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testApp{app: app, bus: bus}
}

type caller struct {
	shop  string
	staff string
}

var owner = caller{shop: "shop-1", staff: "staff-1"}

func (a *testApp) do(t *testing.T, method, path string, who caller, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if who.shop != "" {
		req.Header.Set(web.HeaderShopID, who.shop)
	}

	if who.staff != "" {
		req.Header.Set(web.HeaderStaffID, who.staff)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func createRequest(title string) web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		Title:       title,
		Description: "Welcome message",
		Targeting:   models.Targeting{Grades: []string{"VIP"}},
		Trigger: web.TriggerRequest{
			Type:   models.TriggerTypeCustomerRegistration,
			Config: map[string]any{},
		},
		Action: web.ActionRequest{
			Type:   models.ActionTypeSendMessage,
			Config: map[string]any{"template_id": "tpl-welcome", "channel": "sms"},
		},
	}
}

func (a *testApp) create(t *testing.T, title string) *models.Workflow {
	t.Helper()

	resp, body := a.do(t, http.MethodPost, "/workflows", owner, createRequest(title))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	return &workflow
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	unknownTrigger := createRequest("Unknown trigger")
	unknownTrigger.Trigger.Type = "birthday"

	missingTemplate := createRequest("Missing template")
	missingTemplate.Action.Config = map[string]any{"channel": "sms"}

	tests := []struct {
		name           string
		who            caller
		body           any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "successful creation",
			who:            owner,
			body:           createRequest("Welcome"),
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing staff header",
			who:            caller{shop: "shop-1"},
			body:           createRequest("Welcome"),
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "title too short",
			who:            owner,
			body:           createRequest("W"),
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown trigger type",
			who:            owner,
			body:           unknownTrigger,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "action config rejected",
			who:            owner,
			body:           missingTemplate,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid json",
			who:            owner,
			body:           "not an object",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			resp, body := a.do(t, http.MethodPost, "/workflows", tt.who, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var workflow models.Workflow
			require.NoError(t, json.Unmarshal(body, &workflow))
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, "shop-1", workflow.ShopID)
			assert.Equal(t, "staff-1", workflow.StaffID)
			assert.True(t, workflow.Active)
			assert.Equal(t, models.TriggerCategoryEvent, workflow.Trigger.Category)
			assert.Equal(t, []string{"VIP"}, workflow.Targeting.Grades)
		})
	}
}

func TestAPIHandlers_DuplicateTitleConflicts(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.create(t, "Welcome")

	resp, body := a.do(t, http.MethodPost, "/workflows", owner, createRequest("Welcome"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", problemType(t, body))

	resp, _ = a.do(t, http.MethodPost, "/workflows", caller{shop: "shop-2", staff: "staff-9"}, createRequest("Welcome"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	tests := []struct {
		name           string
		who            caller
		id             string
		expectedStatus int
	}{
		{name: "same shop other staff", who: caller{shop: "shop-1", staff: "staff-2"}, id: created.ID, expectedStatus: http.StatusOK},
		{name: "other shop", who: caller{shop: "shop-2"}, id: created.ID, expectedStatus: http.StatusNotFound},
		{name: "unknown id", who: owner, id: "missing", expectedStatus: http.StatusNotFound},
		{name: "no shop header", who: caller{}, id: created.ID, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := a.do(t, http.MethodGet, "/workflows/"+tt.id, tt.who, nil)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
		})
	}
}

func TestAPIHandlers_ListWorkflows(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.create(t, "Welcome")
	a.create(t, "Second visit")

	resp, body := a.do(t, http.MethodGet, "/workflows", caller{shop: "shop-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, result.Workflows, 2)

	resp, body = a.do(t, http.MethodGet, "/workflows", caller{shop: "shop-2"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 0, result.TotalCount)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	title := "Welcome back"

	resp, body := a.do(t, http.MethodPatch, "/workflows/"+created.ID, caller{shop: "shop-1", staff: "staff-2"},
		web.UpdateWorkflowRequest{Title: &title})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", problemType(t, body))

	resp, body = a.do(t, http.MethodPatch, "/workflows/"+created.ID, owner, web.UpdateWorkflowRequest{Title: &title})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Welcome back", updated.Title)
	assert.Equal(t, created.Trigger.Type, updated.Trigger.Type)
	assert.Equal(t, created.Action.Config["template_id"], updated.Action.Config["template_id"])
	assert.Equal(t, "staff-1", updated.StaffID)

	resp, _ = a.do(t, http.MethodPatch, "/workflows/"+created.ID, owner, web.UpdateWorkflowRequest{
		Trigger: &web.TriggerRequest{Type: models.TriggerTypeScheduled, Config: map[string]any{"cron": "not a cron"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_SetActivation(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	off := false

	resp, body := a.do(t, http.MethodPatch, "/workflows/"+created.ID+"/activation", owner, web.SetActivationRequest{Active: &off})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.False(t, workflow.Active)

	resp, _ = a.do(t, http.MethodPatch, "/workflows/"+created.ID+"/activation", owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	resp, _ := a.do(t, http.MethodDelete, "/workflows/"+created.ID, caller{shop: "shop-1", staff: "staff-2"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, "/workflows/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/workflows/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	a.create(t, "Welcome")
}

func TestAPIHandlers_GetExecutions(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	tests := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{name: "default limit", query: "", expectedStatus: http.StatusOK},
		{name: "explicit limit", query: "?limit=5", expectedStatus: http.StatusOK},
		{name: "not a number", query: "?limit=abc", expectedStatus: http.StatusBadRequest},
		{name: "above cap", query: "?limit=500", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := a.do(t, http.MethodGet, "/workflows/"+created.ID+"/executions"+tt.query, owner, nil)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
		})
	}
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.create(t, "Welcome")

	a.bus.On("Publish", mock.Anything, created.ID, mock.AnythingOfType("*events.WorkflowRunRequested")).Return(nil).Once()

	resp, body := a.do(t, http.MethodPost, "/workflows/"+created.ID+"/run", caller{shop: "shop-1", staff: "staff-2"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted web.RunAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.Equal(t, created.ID, accepted.WorkflowID)
	assert.NotEmpty(t, accepted.RequestID)

	published := a.bus.Published()
	require.Len(t, published, 1)

	requested, ok := published[0].(*events.WorkflowRunRequested)
	require.True(t, ok)
	assert.Equal(t, "shop-1", requested.ShopID)
	assert.Equal(t, "staff-2", requested.RequestedBy)
	assert.Equal(t, accepted.RequestID, requested.ID)

	off := false
	resp, _ = a.do(t, http.MethodPatch, "/workflows/"+created.ID+"/activation", owner, web.SetActivationRequest{Active: &off})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/workflows/"+created.ID+"/run", owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	a.bus.AssertExpectations(t)
}

func TestAPIHandlers_IngestLifecycleEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		body           map[string]any
		expectedStatus int
		expectedEvent  string
	}{
		{
			name: "customer visit",
			path: "/events/customer-visits",
			body: map[string]any{
				"visit_id": "v-1", "shop_id": "shop-1", "customer_id": "c1",
				"visit_count": 3, "visited_at": "2025-06-15T10:00:00Z",
			},
			expectedStatus: http.StatusAccepted,
			expectedEvent:  "events.CustomerVisited",
		},
		{
			name: "customer registration",
			path: "/events/customer-registrations",
			body: map[string]any{
				"shop_id": "shop-1", "customer_id": "c1", "channel": "walk-in",
				"registered_at": "2025-06-15T10:00:00Z",
			},
			expectedStatus: http.StatusAccepted,
			expectedEvent:  "events.CustomerRegistered",
		},
		{
			name: "payment",
			path: "/events/payments",
			body: map[string]any{
				"payment_id": "p-1", "shop_id": "shop-1", "customer_id": "c1",
				"amount": 55000, "completed_at": "2025-06-15T10:00:00Z",
			},
			expectedStatus: http.StatusAccepted,
			expectedEvent:  "events.PaymentCompleted",
		},
		{
			name:           "visit without customer",
			path:           "/events/customer-visits",
			body:           map[string]any{"visit_id": "v-1", "shop_id": "shop-1", "visited_at": "2025-06-15T10:00:00Z"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "payment without time",
			path:           "/events/payments",
			body:           map[string]any{"payment_id": "p-1", "shop_id": "shop-1", "customer_id": "c1"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			if tt.expectedEvent != "" {
				a.bus.On("Publish", mock.Anything, events.CustomerKey("shop-1", "c1"), mock.AnythingOfType(tt.expectedEvent)).
					Return(nil).Once()
			}

			resp, body := a.do(t, http.MethodPost, tt.path, caller{}, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			a.bus.AssertExpectations(t)
		})
	}
}

func TestAPIHandlers_GetWorkflowStats(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.create(t, "Welcome")
	second := a.create(t, "Second visit")

	off := false
	resp, _ := a.do(t, http.MethodPatch, "/workflows/"+second.ID+"/activation", owner, web.SetActivationRequest{Active: &off})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.do(t, http.MethodGet, "/shops/shop-1/workflow-stats", caller{shop: "shop-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var stats models.ShopWorkflowStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, 0, stats.MonthlyExecutions)

	resp, _ = a.do(t, http.MethodGet, "/shops/shop-1/workflow-stats", caller{shop: "shop-2"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPIHandlers_NotificationsRejectOtherShop(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodGet, "/shops/shop-1/notifications", caller{shop: "shop-2"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", problemType(t, body))
}

func TestAPIHandlers_Registry(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodGet, "/registry/triggers", caller{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var triggers []web.ComponentResponse
	require.NoError(t, json.Unmarshal(body, &triggers))

	categories := map[string]string{}
	for _, trigger := range triggers {
		categories[trigger.ID] = trigger.Category
	}

	assert.Equal(t, "EVENT", categories[models.TriggerTypeCustomerVisit])
	assert.Equal(t, "SCHEDULE", categories[models.TriggerTypeScheduled])
	assert.Equal(t, "PERIODIC", categories[models.TriggerTypeInactiveCustomers])

	resp, body = a.do(t, http.MethodGet, "/registry/actions", caller{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var actions []web.ComponentResponse
	require.NoError(t, json.Unmarshal(body, &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionTypeSendMessage, actions[0].ID)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodGet, "/health", caller{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
