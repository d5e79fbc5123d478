// Package store provides storage backends for conversation state.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends selected by DSN.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/ivx-health/aia/internal/models"
)

// Store persists per-phone-number conversation state.
//
// GetConversationState returns nil (not an error) when no state exists for a
// phone number; callers initialize a default state in that case.
type Store interface {
	GetConversationState(phone string) (*models.ConversationState, error)
	SaveConversationState(state models.ConversationState) error
	DeleteConversationState(phone string) error
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// IsPostgresDSN reports whether the DSN targets PostgreSQL rather than a
// SQLite file path.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// InMemoryStore is a mutex-guarded in-memory conversation state store.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]models.ConversationState)}
}

// GetConversationState returns a copy of the stored state, or nil if unseen.
func (s *InMemoryStore) GetConversationState(phone string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	// Copy mutable members so callers cannot alias the stored maps.
	copied := state
	copied.CollectedData = make(map[string]string, len(state.CollectedData))
	for k, v := range state.CollectedData {
		copied.CollectedData[k] = v
	}
	copied.MissingFields = append([]string(nil), state.MissingFields...)
	copied.History = append([]models.Turn(nil), state.History...)
	return &copied, nil
}

// SaveConversationState stores the state, replacing any prior record wholesale.
func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now()
	s.states[state.PhoneNumber] = state
	return nil
}

// DeleteConversationState removes the state for a phone number if present.
func (s *InMemoryStore) DeleteConversationState(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, phone)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
