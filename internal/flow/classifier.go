package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ivx-health/aia/internal/models"
)

const classifierSystemPrompt = "You are an intent classification agent for a clinic appointment assistant. Respond with just the intent label, nothing else."

// IntentClassifier labels user messages with one of the known intents via an
// external model call.
type IntentClassifier struct {
	client    Generator
	attempts  int
	baseDelay time.Duration
}

// NewIntentClassifier creates a classifier with the default retry policy.
func NewIntentClassifier(client Generator) *IntentClassifier {
	return &IntentClassifier{
		client:    client,
		attempts:  DefaultMaxAttempts,
		baseDelay: DefaultRetryBaseDelay,
	}
}

// Classify determines the intent of a user message. Classification failures
// degrade to IntentUnknown after the retry budget is exhausted; the user is
// re-prompted rather than shown an error.
func (c *IntentClassifier) Classify(ctx context.Context, text string) models.Intent {
	labels := make([]string, 0, len(models.KnownIntents))
	for _, intent := range models.KnownIntents {
		labels = append(labels, string(intent))
	}
	prompt := fmt.Sprintf("Classify the following message into one of these intents: %s.\n\nMessage: %s",
		strings.Join(labels, ", "), text)

	var raw string
	err := withRetries(ctx, c.attempts, c.baseDelay, func() error {
		var genErr error
		raw, genErr = c.client.GeneratePrompt(ctx, classifierSystemPrompt, prompt)
		return genErr
	})
	if err != nil {
		slog.Warn("IntentClassifier Classify degraded to unknown", "error", err)
		return models.IntentUnknown
	}

	intent := models.ParseIntent(strings.Trim(raw, " \t\n\"'.`"))
	slog.Debug("IntentClassifier Classify result", "raw", raw, "intent", intent)
	return intent
}
