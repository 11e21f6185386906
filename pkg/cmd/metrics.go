package cmd

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/salonkit/workflowd/pkg/metrics"
)

// MetricsApp serves the Prometheus registry and a liveness probe for processes without
// a public API.
func MetricsApp(m *metrics.Metrics) *fiber.App {
	app := fiber.New()

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())

	return app
}

// ServeMetrics runs MetricsApp on port until ctx ends. Port 0 disables it.
func ServeMetrics(ctx context.Context, port int, m *metrics.Metrics, logger *slog.Logger) {
	if port == 0 {
		return
	}

	app := MetricsApp(m)

	go func() {
		err := app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
			DisableStartupMessage: true,
			GracefulContext:       ctx,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Serving metrics", "port", port)
}
