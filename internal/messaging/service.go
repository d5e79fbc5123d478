// Package messaging abstracts outbound message delivery so the dispatcher and
// API layer do not care which WhatsApp provider is configured.
package messaging

import (
	"context"
	"strings"

	"github.com/ivx-health/aia/internal/models"
)

// Service sends messages to canonicalized phone numbers.
type Service interface {
	// ValidateAndCanonicalizeRecipient normalizes a recipient to bare digits.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage delivers a plain text message.
	SendMessage(ctx context.Context, to, body string) error

	// SendMenu delivers the action menu, using the provider's richest
	// supported format.
	SendMenu(ctx context.Context, to, body string) error
}

// CanonicalizeRecipient strips formatting from a phone number and validates
// the digit count. Accepted inputs include "+1 555 123-0001" and
// "whatsapp:+15551230001"; the canonical form is bare digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	trimmed = strings.TrimPrefix(trimmed, "whatsapp:")
	if trimmed == "" {
		return "", models.ErrEmptyPhoneNumber
	}

	var digits strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// Formatting characters are dropped.
		default:
			return "", models.ErrInvalidPhoneNumber
		}
	}

	canonical := digits.String()
	if len(canonical) < 7 || len(canonical) > 15 {
		return "", models.ErrInvalidPhoneNumber
	}
	return canonical, nil
}

// Menu option ids. Interactive list replies carry these ids back in the
// webhook and map directly to intents.
const (
	MenuCreateAppointment = "CREATE_APPOINTMENT"
	MenuCheckStatus       = "CHECK_APPOINTMENT_STATUS"
	MenuUpdateAppointment = "UPDATE_APPOINTMENT"
	MenuCancelAppointment = "CANCEL_APPOINTMENT"
)

// menuOption is one action offered by the menu, in display order.
type menuOption struct {
	id    string
	title string
	desc  string
}

var menuOptions = []menuOption{
	{MenuCreateAppointment, "Book appointment", "Schedule a new appointment"},
	{MenuCheckStatus, "Check status", "Look up an appointment by booking code"},
	{MenuUpdateAppointment, "Update appointment", "Change date, time, or details"},
	{MenuCancelAppointment, "Cancel appointment", "Cancel an existing appointment"},
}
