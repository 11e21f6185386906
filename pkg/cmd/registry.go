// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/registry"
)

// NewRegistry registers the built-in trigger and action types. The send-message action
// delivers through dispatcher.
func NewRegistry(logger *slog.Logger, dispatcher dispatch.Dispatcher) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaults(dispatcher)

	return reg
}
