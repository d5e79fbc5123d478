// Package flow provides concrete implementations of conversation state management.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ivx-health/aia/internal/models"
	"github.com/ivx-health/aia/internal/store"
)

// StateManager loads and persists per-phone conversation state.
type StateManager interface {
	// GetState returns the stored state for a phone number, or a freshly
	// initialized default. It never fails for unseen phone numbers.
	GetState(ctx context.Context, phone string) (models.ConversationState, error)

	// SaveState persists the state wholesale, replacing any prior record.
	SaveState(ctx context.Context, state models.ConversationState) error

	// UpdateState shallow-merges a partial mapping into the stored collected
	// data, overwriting previously-set keys, and returns the merged state.
	UpdateState(ctx context.Context, phone string, updates map[string]string) (models.ConversationState, error)

	// ClearState removes all stored state for a phone number.
	ClearState(ctx context.Context, phone string) error
}

// StoreBasedStateManager implements StateManager using a store.Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetState retrieves the current state for a phone number, initializing a
// default state when none exists.
func (sm *StoreBasedStateManager) GetState(ctx context.Context, phone string) (models.ConversationState, error) {
	state, err := sm.store.GetConversationState(phone)
	if err != nil {
		slog.Error("StateManager GetState error", "error", err, "phone", phone)
		return models.ConversationState{}, err
	}
	if state == nil {
		slog.Debug("StateManager GetState initializing default", "phone", phone)
		return models.NewConversationState(phone), nil
	}
	if state.CollectedData == nil {
		state.CollectedData = make(map[string]string)
	}
	return *state, nil
}

// SaveState persists the state wholesale.
func (sm *StoreBasedStateManager) SaveState(ctx context.Context, state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	if err := sm.store.SaveConversationState(state); err != nil {
		slog.Error("StateManager SaveState error", "error", err, "phone", state.PhoneNumber)
		return err
	}
	slog.Debug("StateManager SaveState succeeded", "phone", state.PhoneNumber, "status", state.Status)
	return nil
}

// UpdateState shallow-merges updates into the collected data for a phone
// number. Repeated identical updates are idempotent.
func (sm *StoreBasedStateManager) UpdateState(ctx context.Context, phone string, updates map[string]string) (models.ConversationState, error) {
	state, err := sm.GetState(ctx, phone)
	if err != nil {
		return models.ConversationState{}, err
	}
	for key, value := range updates {
		state.CollectedData[key] = value
	}
	if err := sm.SaveState(ctx, state); err != nil {
		return models.ConversationState{}, err
	}
	return state, nil
}

// ClearState removes the stored state for a phone number.
func (sm *StoreBasedStateManager) ClearState(ctx context.Context, phone string) error {
	if err := sm.store.DeleteConversationState(phone); err != nil {
		slog.Error("StateManager ClearState error", "error", err, "phone", phone)
		return err
	}
	slog.Debug("StateManager ClearState succeeded", "phone", phone)
	return nil
}
