package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/salonkit/workflowd/pkg/services"
)

const problemContentType = "application/problem+json"

// sendProblem writes an RFC 7807 body. problemType is a short slug such as "conflict".
func sendProblem(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem, problemContentType)
}

func badRequest(c fiber.Ctx, detail string) error {
	return sendProblem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func forbidden(c fiber.Ctx, detail string) error {
	return sendProblem(c, fiber.StatusForbidden, "forbidden", detail)
}

// handleServiceError maps service and store errors to problems. Unclassified errors are
// logged and answered with a generic 500.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), registry.IsConfigurationError(err):
		return badRequest(c, err.Error())
	case services.IsForbiddenError(err):
		return forbidden(c, err.Error())
	case services.IsConflictError(err):
		return sendProblem(c, fiber.StatusConflict, "conflict", err.Error())
	case persistence.IsWorkflowNotFound(err):
		return sendProblem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")
	default:
		slog.ErrorContext(c.Context(), "Request failed", "module", "web", "path", c.Path(), "error", err)

		return sendProblem(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
	}
}
