package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/salonkit/workflowd/pkg/channels/gochannel"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence/file"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestAPI(t *testing.T) (*API, eventbus.EventBus) {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())
	t.Cleanup(func() { _ = bus.Close() })

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(dispatch.NewLogDispatcher(slog.Default()))

	return NewAPI(slog.Default(), file.NewPersistence(t.TempDir()), reg, bus, metrics.New()), bus
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, http.NoBody))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	api, _ := setupTestAPI(t)

	status, body := get(t, api.App(), "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "workflowd API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	api, _ := setupTestAPI(t)

	status, body := get(t, api.App(), "/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestAPI_Metrics(t *testing.T) {
	api, _ := setupTestAPI(t)

	_, cancel := api.hub.Subscribe("shop-1")
	defer cancel()

	status, body := get(t, api.App(), "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "workflowd_notification_subscribers 1")
}

func TestAPI_GetWorkflows_RequiresShop(t *testing.T) {
	api, _ := setupTestAPI(t)

	status, _ := get(t, api.App(), "/workflows")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_ForwardsFinishedExecutionsToHub(t *testing.T) {
	api, bus := setupTestAPI(t)

	notifications, cancel := api.hub.Subscribe("shop-1")
	defer cancel()

	require.NoError(t, api.hub.Register(bus))
	require.NoError(t, bus.Subscribe(t.Context()))

	finishedAt := time.Date(2025, 6, 15, 10, 1, 0, 0, time.UTC)

	err := bus.Publish(t.Context(), "wf-1", events.ExecutionFinished{
		BaseEvent:     events.NewBaseEvent(events.ExecutionFinishedEvent),
		WorkflowTitle: "Welcome",
		Execution: models.WorkflowExecution{
			ID:           "exec-1",
			WorkflowID:   "wf-1",
			ShopID:       "shop-1",
			Status:       models.ExecutionStatusPartiallyFailed,
			TargetCount:  5,
			SuccessCount: 3,
			FailureCount: 2,
			FinishedAt:   &finishedAt,
		},
	})
	require.NoError(t, err)

	select {
	case n := <-notifications:
		assert.Equal(t, "exec-1", n.ExecutionID)
		assert.Equal(t, "Welcome", n.WorkflowTitle)
		assert.Equal(t, models.ExecutionStatusPartiallyFailed, n.Status)
		assert.Equal(t, 3, n.SuccessCount)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not forwarded")
	}
}
