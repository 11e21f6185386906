// Package main provides the workflowd API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/notify"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/salonkit/workflowd/pkg/services"
	"github.com/salonkit/workflowd/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	hub         *notify.Hub
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	metrics *metrics.Metrics,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		hub:         notify.NewHub(logger, notify.WithMetrics(metrics)),
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.logger)
	ingestion := services.NewIngestion(workflowService, a.eventBus)

	handlers := web.NewAPIHandlers(workflowService, ingestion, a.hub, a.registry, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("workflowd API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	handlers.Mount(app)

	return app
}

// Start forwards finished executions to connected staff and serves HTTP until ctx ends.
func (a *API) Start(ctx context.Context, port int) error {
	err := a.hub.Register(a.eventBus)
	if err != nil {
		return err
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	return a.App().Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		GracefulContext: ctx,
	})
}
