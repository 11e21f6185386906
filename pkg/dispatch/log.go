package dispatch

import (
	"context"
	"log/slog"

	"github.com/salonkit/workflowd/pkg/models"
)

// LogDispatcher only logs messages. Used when no dispatch service is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "log_dispatcher")}
}

func (d *LogDispatcher) Send(ctx context.Context, request models.DispatchRequest) error {
	d.logger.InfoContext(ctx, "Dispatching message",
		"workflow_id", request.WorkflowID,
		"execution_id", request.ExecutionID,
		"shop_id", request.ShopID,
		"customer_id", request.CustomerID,
		"template_id", request.TemplateID,
		"channel", request.Channel,
	)

	return nil
}
