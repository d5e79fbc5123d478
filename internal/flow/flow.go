// Package flow implements the per-phone-number conversation state machine:
// intent classification, field extraction, dialog step dispatch, and response
// composition for the appointment assistant.
package flow

import (
	"context"
	"log/slog"
	"time"
)

// Generator produces free text from a system and a user prompt. The genai
// client implements it; tests substitute mocks. Output is always untrusted.
type Generator interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Retry policy for external model calls. Failures degrade to empty results
// rather than surfacing errors to the user.
const (
	// DefaultMaxAttempts is the number of tries for one external call.
	DefaultMaxAttempts = 3
	// DefaultRetryBaseDelay is the first backoff delay; it doubles per attempt.
	DefaultRetryBaseDelay = 2 * time.Second
)

// withRetries runs fn up to attempts times, sleeping baseDelay, 2*baseDelay,
// ... between tries. It returns nil as soon as fn succeeds, or the last error
// after the budget is exhausted. Context cancellation stops the loop early.
func withRetries(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		slog.Debug("flow.withRetries: attempt failed, backing off", "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	slog.Warn("flow.withRetries: all attempts failed", "attempts", attempts, "error", lastErr)
	return lastErr
}

// MissingFields returns the required fields not yet present with a non-empty
// value in collected, preserving the required-field order.
func MissingFields(required []string, collected map[string]string) []string {
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if value, ok := collected[field]; !ok || value == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
