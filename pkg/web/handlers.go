// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/notify"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/salonkit/workflowd/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	ingestion       *services.Ingestion
	hub             *notify.Hub
	registry        *registry.Registry
	validator       *validator.Validate
	logger          *slog.Logger
	keepAlive       time.Duration
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	ingestion *services.Ingestion,
	hub *notify.Hub,
	registry *registry.Registry,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		ingestion:       ingestion,
		hub:             hub,
		registry:        registry,
		validator:       validator,
		logger:          logger.With("module", "web"),
		keepAlive:       DefaultKeepAlive,
	}
}

func callerFrom(c fiber.Ctx) services.Caller {
	return services.Caller{
		ShopID:  c.Get(HeaderShopID),
		StaffID: c.Get(HeaderStaffID),
	}
}

// shopFrom returns the caller's shop. Reads only need the shop header.
func shopFrom(c fiber.Ctx) (string, bool) {
	shopID := c.Get(HeaderShopID)

	return shopID, shopID != ""
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	registryCheck := "Registry has no trigger types"
	regOk := len(h.registry.GetAvailableTriggers()) > 0 && len(h.registry.GetAvailableActions()) > 0

	if regOk {
		registryCheck = "Registry is ready"
	}

	status := "unhealthy"
	message := "workflowd API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "workflowd API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	shopID, ok := shopFrom(c)
	if !ok {
		return badRequest(c, HeaderShopID+" header is required")
	}

	workflows, err := h.workflowService.ListByShop(c.Context(), shopID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	shopID, ok := shopFrom(c)
	if !ok {
		return badRequest(c, HeaderShopID+" header is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), shopID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), callerFrom(c), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	caller := callerFrom(c)

	existing, err := h.workflowService.FetchByID(c.Context(), caller.ShopID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.workflowService.Update(c.Context(), caller, existing.ID, req.apply(existing))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), callerFrom(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetActivation(c fiber.Ctx) error {
	var req SetActivationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.SetActive(c.Context(), callerFrom(c), c.Params("id"), *req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	shopID, ok := shopFrom(c)
	if !ok {
		return badRequest(c, HeaderShopID+" header is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		limit = parsed
	}

	executions, err := h.workflowService.ListExecutions(c.Context(), shopID, c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	request, err := h.ingestion.RequestRun(c.Context(), callerFrom(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunAcceptedResponse{
		RequestID:  request.ID,
		WorkflowID: request.WorkflowID,
	})
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	shopID := c.Params("shopId")
	if c.Get(HeaderShopID) != shopID {
		return forbidden(c, "shop does not match caller")
	}

	stats, err := h.workflowService.GetWorkflowStats(c.Context(), shopID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) CustomerVisited(c fiber.Ctx) error {
	return ingest[models.CustomerVisit](h, c)
}

func (h *APIHandlers) CustomerRegistered(c fiber.Ctx) error {
	return ingest[models.CustomerRegistration](h, c)
}

func (h *APIHandlers) PaymentCompleted(c fiber.Ctx) error {
	return ingest[models.PaymentCompleted](h, c)
}

// ingest accepts a committed lifecycle event and hands it to the bus.
func ingest[E models.LifecycleEvent](h *APIHandlers, c fiber.Ctx) error {
	var event E
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.ingestion.PublishLifecycleEvent(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	factories := h.registry.GetAvailableTriggers()
	response := make([]ComponentResponse, 0, len(factories))

	for _, factory := range factories {
		response = append(response, ComponentResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Category:    string(factory.Category()),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	factories := h.registry.GetAvailableActions()
	response := make([]ComponentResponse, 0, len(factories))

	for _, factory := range factories {
		response = append(response, ComponentResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(response)
}
