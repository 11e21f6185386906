package registry

import (
	"github.com/salonkit/workflowd/pkg/actions/sendmessage"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/triggers/inactive"
	"github.com/salonkit/workflowd/pkg/triggers/lifecycle"
	"github.com/salonkit/workflowd/pkg/triggers/schedule"
)

// RegisterDefaults registers all built-in trigger and action types.
func (r *Registry) RegisterDefaults(dispatcher dispatch.Dispatcher) {
	r.RegisterTrigger(lifecycle.NewVisitTriggerFactory())
	r.RegisterTrigger(lifecycle.NewRegistrationTriggerFactory())
	r.RegisterTrigger(lifecycle.NewPaymentTriggerFactory())
	r.RegisterTrigger(schedule.NewScheduleTriggerFactory())
	r.RegisterTrigger(inactive.NewInactiveTriggerFactory())

	r.RegisterAction(sendmessage.NewActionFactory(dispatcher))
}
