// Package dispatch is the client side of the external message dispatch service.
package dispatch

import (
	"context"
	"errors"

	"github.com/salonkit/workflowd/pkg/models"
)

var (
	// ErrDispatchRejected is returned when the dispatch service refuses a message permanently.
	ErrDispatchRejected = errors.New("message rejected by dispatch service")
	// ErrDispatchUnavailable is returned for transport failures and 5xx responses.
	ErrDispatchUnavailable = errors.New("dispatch service unavailable")
)

// Dispatcher delivers a single marketing message.
type Dispatcher interface {
	Send(ctx context.Context, request models.DispatchRequest) error
}
