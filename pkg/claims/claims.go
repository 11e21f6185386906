// Package claims provides short-lived exclusive keys used to deduplicate dispatches
// and to elect a single scheduler instance per scan.
package claims

import (
	"context"
	"sync"
	"time"
)

// Store grants a key to at most one holder until it is released or its TTL lapses.
type Store interface {
	// Claim reports whether the caller now holds key.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store for single instance deployments and tests.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.keys[key]; ok && now.Before(expires) {
		return false, nil
	}

	s.keys[key] = now.Add(ttl)

	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)

	return nil
}
