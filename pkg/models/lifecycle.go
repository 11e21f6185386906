package models

import "time"

// Trigger types. Event trigger types double as the lifecycle event names.
const (
	TriggerTypeCustomerVisit        = "customer-visit"
	TriggerTypeCustomerRegistration = "customer-registration"
	TriggerTypePaymentCompleted     = "payment-completed"
	TriggerTypeScheduled            = "scheduled"
	TriggerTypeInactiveCustomers    = "inactive-customers"
)

// ActionTypeSendMessage dispatches a marketing message to each target.
const ActionTypeSendMessage = "send-message"

// LifecycleEvent is a committed customer lifecycle fact that may fire EVENT workflows.
type LifecycleEvent interface {
	EventTriggerType() string
	EventShopID() string
	EventCustomerID() string
	EventTime() time.Time
}

// CustomerVisit is emitted when a visit is recorded for a customer.
type CustomerVisit struct {
	VisitID    string    `json:"visit_id"    validate:"required"`
	ShopID     string    `json:"shop_id"     validate:"required"`
	CustomerID string    `json:"customer_id" validate:"required"`
	VisitCount int       `json:"visit_count" validate:"min=0"`
	VisitedAt  time.Time `json:"visited_at"  validate:"required"`
}

func (v CustomerVisit) EventTriggerType() string { return TriggerTypeCustomerVisit }
func (v CustomerVisit) EventShopID() string      { return v.ShopID }
func (v CustomerVisit) EventCustomerID() string  { return v.CustomerID }
func (v CustomerVisit) EventTime() time.Time     { return v.VisitedAt }

// CustomerRegistration is emitted when a customer joins a shop.
type CustomerRegistration struct {
	ShopID       string    `json:"shop_id"       validate:"required"`
	CustomerID   string    `json:"customer_id"   validate:"required"`
	Channel      string    `json:"channel"`
	RegisteredAt time.Time `json:"registered_at" validate:"required"`
}

func (r CustomerRegistration) EventTriggerType() string { return TriggerTypeCustomerRegistration }
func (r CustomerRegistration) EventShopID() string      { return r.ShopID }
func (r CustomerRegistration) EventCustomerID() string  { return r.CustomerID }
func (r CustomerRegistration) EventTime() time.Time     { return r.RegisteredAt }

// PaymentCompleted is emitted after a sale is paid. Amount is in minor currency units.
type PaymentCompleted struct {
	PaymentID   string    `json:"payment_id"   validate:"required"`
	ShopID      string    `json:"shop_id"      validate:"required"`
	CustomerID  string    `json:"customer_id"  validate:"required"`
	Amount      int64     `json:"amount"       validate:"min=0"`
	Method      string    `json:"method"`
	CompletedAt time.Time `json:"completed_at" validate:"required"`
}

func (p PaymentCompleted) EventTriggerType() string { return TriggerTypePaymentCompleted }
func (p PaymentCompleted) EventShopID() string      { return p.ShopID }
func (p PaymentCompleted) EventCustomerID() string  { return p.CustomerID }
func (p PaymentCompleted) EventTime() time.Time     { return p.CompletedAt }

// DispatchRequest asks the message dispatch service to deliver one message.
type DispatchRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ExecutionID    string `json:"execution_id"`
	WorkflowID     string `json:"workflow_id"`
	ShopID         string `json:"shop_id"`
	CustomerID     string `json:"customer_id"`
	TemplateID     string `json:"template_id"`
	Channel        string `json:"channel"`
}
