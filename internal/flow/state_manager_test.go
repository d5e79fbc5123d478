package flow

import (
	"context"
	"testing"

	"github.com/ivx-health/aia/internal/models"
	"github.com/ivx-health/aia/internal/store"
)

func TestGetStateInitializesDefault(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())

	state, err := sm.GetState(context.Background(), "15551230001")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.PhoneNumber != "15551230001" {
		t.Errorf("PhoneNumber = %q", state.PhoneNumber)
	}
	if state.Status != models.StatusCollecting {
		t.Errorf("Status = %v, want %v", state.Status, models.StatusCollecting)
	}
	if state.CurrentIntent != models.IntentUnknown {
		t.Errorf("CurrentIntent = %v, want %v", state.CurrentIntent, models.IntentUnknown)
	}
	if state.CollectedData == nil {
		t.Error("CollectedData not initialized")
	}
}

func TestSaveAndGetStateRoundTrip(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	state := models.NewConversationState("15551230001")
	state.CurrentIntent = models.IntentCreateAppointment
	state.Status = models.StatusPendingConfirmation
	state.CollectedData["patient_name"] = "Maria Lopez"

	if err := sm.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := sm.GetState(ctx, "15551230001")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if got.Status != models.StatusPendingConfirmation {
		t.Errorf("Status = %v", got.Status)
	}
	if got.CollectedData["patient_name"] != "Maria Lopez" {
		t.Errorf("CollectedData = %v", got.CollectedData)
	}
}

func TestUpdateStateIsIdempotent(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	updates := map[string]string{"date": "24/12/2026", "time": "14:30"}
	if _, err := sm.UpdateState(ctx, "15551230001", updates); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	state, err := sm.UpdateState(ctx, "15551230001", updates)
	if err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	if len(state.CollectedData) != 2 {
		t.Errorf("CollectedData = %v, want exactly the two updated keys", state.CollectedData)
	}
	if state.CollectedData["date"] != "24/12/2026" || state.CollectedData["time"] != "14:30" {
		t.Errorf("CollectedData = %v", state.CollectedData)
	}
}

func TestUpdateStateOverwrites(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	if _, err := sm.UpdateState(ctx, "15551230001", map[string]string{"time": "14:30"}); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	state, err := sm.UpdateState(ctx, "15551230001", map[string]string{"time": "15:00"})
	if err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if state.CollectedData["time"] != "15:00" {
		t.Errorf("time = %q, want overwrite to 15:00", state.CollectedData["time"])
	}
}

func TestClearStateResets(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	if _, err := sm.UpdateState(ctx, "15551230001", map[string]string{"date": "24/12/2026"}); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if err := sm.ClearState(ctx, "15551230001"); err != nil {
		t.Fatalf("ClearState() error = %v", err)
	}

	state, err := sm.GetState(ctx, "15551230001")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if len(state.CollectedData) != 0 {
		t.Errorf("CollectedData = %v, want empty after clear", state.CollectedData)
	}
}
