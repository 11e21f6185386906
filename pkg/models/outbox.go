package models

import (
	"encoding/json"
	"time"
)

// OutboxMessage is a lifecycle event written by a producer inside its own transaction,
// relayed to the event bus once committed.
type OutboxMessage struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
}
