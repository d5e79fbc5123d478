package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ivx-health/aia/internal/models"
)

func newTestClassifier(gen Generator) *IntentClassifier {
	c := NewIntentClassifier(gen)
	c.baseDelay = time.Millisecond
	return c
}

func TestClassifyKnownIntent(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{{text: "create_appointment"}}}
	c := newTestClassifier(gen)

	got := c.Classify(context.Background(), "I want to book a consultation")
	if got != models.IntentCreateAppointment {
		t.Errorf("Classify() = %v, want %v", got, models.IntentCreateAppointment)
	}
	if !strings.Contains(gen.lastUser, "I want to book a consultation") {
		t.Errorf("classification prompt missing user message: %q", gen.lastUser)
	}
}

func TestClassifyTrimsDecoration(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{{text: "\"Check_Status\".\n"}}}
	c := newTestClassifier(gen)

	if got := c.Classify(context.Background(), "where is my appointment"); got != models.IntentCheckStatus {
		t.Errorf("Classify() = %v, want %v", got, models.IntentCheckStatus)
	}
}

func TestClassifyUnrecognizedLabelIsUnknown(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{{text: "order_pizza"}}}
	c := newTestClassifier(gen)

	if got := c.Classify(context.Background(), "hmm"); got != models.IntentUnknown {
		t.Errorf("Classify() = %v, want %v", got, models.IntentUnknown)
	}
}

func TestClassifyRetriesThenDegrades(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{err: errors.New("rate limited")},
		{err: errors.New("rate limited")},
		{err: errors.New("rate limited")},
	}}
	c := newTestClassifier(gen)

	if got := c.Classify(context.Background(), "hello"); got != models.IntentUnknown {
		t.Errorf("Classify() = %v, want %v", got, models.IntentUnknown)
	}
	if gen.callCount() != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, gen.callCount())
	}
}

func TestClassifyRecoversMidRetry(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{err: errors.New("rate limited")},
		{text: "cancel_appointment"},
	}}
	c := newTestClassifier(gen)

	if got := c.Classify(context.Background(), "please cancel it"); got != models.IntentCancelAppointment {
		t.Errorf("Classify() = %v, want %v", got, models.IntentCancelAppointment)
	}
	if gen.callCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", gen.callCount())
	}
}
