// Package notify fans execution outcomes out to the staff sessions of a shop.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/models"
)

const DefaultBufferSize = 16

// Notification is what a connected staff session receives when an execution finishes.
type Notification struct {
	Type          string                 `json:"type"`
	ShopID        string                 `json:"shop_id"`
	WorkflowID    string                 `json:"workflow_id"`
	WorkflowTitle string                 `json:"workflow_title,omitempty"`
	ExecutionID   string                 `json:"execution_id"`
	Source        models.ExecutionSource `json:"source"`
	Status        models.ExecutionStatus `json:"status"`
	TargetCount   int                    `json:"target_count"`
	SuccessCount  int                    `json:"success_count"`
	FailureCount  int                    `json:"failure_count"`
	ErrorSummary  string                 `json:"error_summary,omitempty"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
}

const TypeExecutionFinished = "execution.finished"

// FromExecution builds the notification for a finalized execution.
func FromExecution(title string, execution models.WorkflowExecution) Notification {
	return Notification{
		Type:          TypeExecutionFinished,
		ShopID:        execution.ShopID,
		WorkflowID:    execution.WorkflowID,
		WorkflowTitle: title,
		ExecutionID:   execution.ID,
		Source:        execution.Source,
		Status:        execution.Status,
		TargetCount:   execution.TargetCount,
		SuccessCount:  execution.SuccessCount,
		FailureCount:  execution.FailureCount,
		ErrorSummary:  execution.ErrorSummary,
		FinishedAt:    execution.FinishedAt,
	}
}

type subscriber chan Notification

// Hub is an in-memory registry of subscribers keyed by shop. Slow subscribers never block
// publishers: when a subscriber's buffer is full the notification is dropped for it.
type Hub struct {
	mu         sync.RWMutex
	shops      map[string]map[subscriber]struct{}
	bufferSize int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Hub)

func WithBufferSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	hub := &Hub{
		shops:      make(map[string]map[subscriber]struct{}),
		bufferSize: DefaultBufferSize,
		logger:     logger.With("module", "notify"),
	}

	for _, opt := range opts {
		opt(hub)
	}

	return hub
}

// Subscribe registers a subscriber for the shop. The returned cancel deregisters it and
// closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(shopID string) (<-chan Notification, func()) {
	ch := make(subscriber, h.bufferSize)

	h.mu.Lock()
	subs, ok := h.shops[shopID]
	if !ok {
		subs = make(map[subscriber]struct{})
		h.shops[shopID] = subs
	}

	subs[ch] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	h.logger.Debug("Subscriber registered", "shop_id", shopID)

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.shops[shopID], ch)

			if len(h.shops[shopID]) == 0 {
				delete(h.shops, shopID)
			}

			close(ch)
			h.metrics.SubscriberRemoved()
		})
	}

	return ch, cancel
}

// Publish delivers n to every subscriber of the shop and returns how many received it.
func (h *Hub) Publish(shopID string, n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0

	for ch := range h.shops[shopID] {
		select {
		case ch <- n:
			delivered++
		default:
			h.metrics.NotificationDropped()
			h.logger.Warn("Subscriber buffer full, notification dropped", "shop_id", shopID, "execution_id", n.ExecutionID)
		}
	}

	return delivered
}

// Subscribers returns the number of live subscribers of the shop.
func (h *Hub) Subscribers(shopID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.shops[shopID])
}
