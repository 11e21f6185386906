package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
)

const defaultTimeout = 10 * time.Second

// HTTPDispatcher posts dispatch requests as JSON. The idempotency key travels in the
// Idempotency-Key header so the service can drop duplicates.
type HTTPDispatcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPDispatcher(url string, timeout time.Duration, logger *slog.Logger) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPDispatcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("module", "http_dispatcher"),
	}
}

func (d *HTTPDispatcher) Send(ctx context.Context, request models.DispatchRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", request.IdempotencyKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchUnavailable, err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)

		err := resp.Body.Close()
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// already delivered under this idempotency key
		d.logger.DebugContext(ctx, "Duplicate dispatch acknowledged", "idempotency_key", request.IdempotencyKey)

		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrDispatchUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrDispatchRejected, resp.StatusCode)
	}
}
