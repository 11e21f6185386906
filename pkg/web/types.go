// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/salonkit/workflowd/pkg/models"
)

// Caller identity headers. An upstream gateway authenticates staff and sets them.
const (
	HeaderShopID  = "X-Shop-ID"
	HeaderStaffID = "X-Staff-ID"
)

// TriggerRequest selects a trigger type. The category is derived from the type.
type TriggerRequest struct {
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config"`
}

// ActionRequest selects an action type and its config.
type ActionRequest struct {
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Title       string           `json:"title"       validate:"required,min=2,max=100"`
	Description string           `json:"description" validate:"max=1000"`
	Targeting   models.Targeting `json:"targeting"`
	Trigger     TriggerRequest   `json:"trigger"`
	Action      ActionRequest    `json:"action"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Title       *string           `json:"title,omitempty"       validate:"omitempty,min=2,max=100"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=1000"`
	Targeting   *models.Targeting `json:"targeting,omitempty"`
	Trigger     *TriggerRequest   `json:"trigger,omitempty"`
	Action      *ActionRequest    `json:"action,omitempty"`
}

// SetActivationRequest toggles a workflow on or off.
type SetActivationRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// RunAcceptedResponse is returned when a manual run was queued.
type RunAcceptedResponse struct {
	RequestID  string `json:"request_id"`
	WorkflowID string `json:"workflow_id"`
}

// ComponentResponse describes a registered trigger or action type.
type ComponentResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// toModel builds the workflow the service validates and stores.
func (r *CreateWorkflowRequest) toModel() *models.Workflow {
	return &models.Workflow{
		Title:       r.Title,
		Description: r.Description,
		Targeting:   r.Targeting,
		Trigger:     models.Trigger{Type: r.Trigger.Type, Config: r.Trigger.Config},
		Action:      models.Action{Type: r.Action.Type, Config: r.Action.Config},
	}
}

// apply merges the present fields into a copy of existing.
func (r *UpdateWorkflowRequest) apply(existing *models.Workflow) *models.Workflow {
	changes := *existing

	if r.Title != nil {
		changes.Title = *r.Title
	}

	if r.Description != nil {
		changes.Description = *r.Description
	}

	if r.Targeting != nil {
		changes.Targeting = *r.Targeting
	}

	if r.Trigger != nil {
		changes.Trigger = models.Trigger{Type: r.Trigger.Type, Config: r.Trigger.Config}
	}

	if r.Action != nil {
		changes.Action = models.Action{Type: r.Action.Type, Config: r.Action.Config}
	}

	return &changes
}
