package store

import (
	"path/filepath"
	"testing"

	"github.com/ivx-health/aia/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "aia.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	loaded, err := s.GetConversationState("15551234567")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for unseen phone, got %+v", loaded)
	}

	state := models.NewConversationState("15551234567")
	state.CurrentIntent = models.IntentCheckStatus
	state.Status = models.StatusPendingConfirmation
	state.CollectedData["booking_code"] = "IVX7F3K9Q"
	state.AppendTurn("user", "what is the status of my appointment?")

	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err = s.GetConversationState("15551234567")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored state, got nil")
	}
	if loaded.Status != models.StatusPendingConfirmation {
		t.Errorf("expected status %q, got %q", models.StatusPendingConfirmation, loaded.Status)
	}
	if loaded.CollectedData["booking_code"] != "IVX7F3K9Q" {
		t.Errorf("expected booking code in collected data, got %+v", loaded.CollectedData)
	}
	if len(loaded.History) != 1 {
		t.Errorf("expected 1 history turn, got %d", len(loaded.History))
	}
}

func TestSQLiteStoreUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)

	state := models.NewConversationState("15551234567")
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	state.CurrentIntent = models.IntentCancelAppointment
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := s.GetConversationState("15551234567")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.CurrentIntent != models.IntentCancelAppointment {
		t.Errorf("expected updated intent, got %q", loaded.CurrentIntent)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := newTestSQLiteStore(t)

	state := models.NewConversationState("15551234567")
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.DeleteConversationState("15551234567"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	loaded, err := s.GetConversationState("15551234567")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil after delete, got %+v", loaded)
	}
}
