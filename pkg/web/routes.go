package web

import "github.com/gofiber/fiber/v3"

// Mount registers the API routes on router.
func (h *APIHandlers) Mount(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Patch("/:id/activation", h.SetActivation)
	w.Get("/:id/executions", h.GetExecutions)
	w.Post("/:id/run", h.RunWorkflow)

	s := router.Group("/shops/:shopId")
	s.Get("/workflow-stats", h.GetWorkflowStats)
	s.Get("/notifications", h.StreamNotifications)

	e := router.Group("/events")
	e.Post("/customer-visits", h.CustomerVisited)
	e.Post("/customer-registrations", h.CustomerRegistered)
	e.Post("/payments", h.PaymentCompleted)

	r := router.Group("/registry")
	r.Get("/triggers", h.GetTriggers)
	r.Get("/actions", h.GetActions)
}
