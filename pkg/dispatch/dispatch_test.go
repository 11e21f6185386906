package dispatch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDispatcher_Send(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		expectError error
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "duplicate", status: http.StatusConflict},
		{name: "rejected", status: http.StatusUnprocessableEntity, expectError: ErrDispatchRejected},
		{name: "server error", status: http.StatusBadGateway, expectError: ErrDispatchUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received models.DispatchRequest

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "dispatch:exec-1:cust-1", r.Header.Get("Idempotency-Key"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			dispatcher := NewHTTPDispatcher(server.URL, time.Second, slog.Default())

			err := dispatcher.Send(t.Context(), models.DispatchRequest{
				IdempotencyKey: "dispatch:exec-1:cust-1",
				ExecutionID:    "exec-1",
				CustomerID:     "cust-1",
				TemplateID:     "tpl-1",
				Channel:        "sms",
			})

			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, "tpl-1", received.TemplateID)
		})
	}
}

func TestHTTPDispatcher_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewHTTPDispatcher(url, time.Second, slog.Default()).Send(t.Context(), models.DispatchRequest{})
	require.ErrorIs(t, err, ErrDispatchUnavailable)
}

func TestLogDispatcher_Send(t *testing.T) {
	err := NewLogDispatcher(slog.Default()).Send(t.Context(), models.DispatchRequest{CustomerID: "c-1"})
	assert.NoError(t, err)
}
