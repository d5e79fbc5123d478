package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ivx-health/aia/internal/models"
)

const composerSystemPrompt = "You are a friendly medical scheduling assistant for IVX. Keep replies short, warm, and professional. Never invent appointment details."

// ApologyMessage is the generic degradation reply for internal failures.
const ApologyMessage = "I apologize, but I'm having trouble processing your request. Please try again or contact our support team."

// MenuMessage is the greeting sent together with the action menu.
const MenuMessage = "Welcome to IVX! 🎉 I'm your AI assistant (AIA), here to help with doctor appointment scheduling. How can I assist you today?"

// fieldQuestions are the deterministic prompts for each required field, used
// verbatim when the model is unavailable and as grounding otherwise.
var fieldQuestions = map[string]string{
	"patient_name":   "Could you share the patient's full name?",
	"patient_gender": "What is the patient's gender?",
	"procedure_type": "What type of procedure or consultation is this appointment for?",
	"location":       "Which location or clinic should the appointment be at?",
	"date":           "What date works best for the appointment? (DD/MM/YYYY)",
	"time":           "What time works best for the appointment?",
	"booking_code":   "Could you share your booking code? It starts with IVX.",
}

// ResponseComposer produces outbound message text, preferring model-generated
// phrasing with deterministic template fallbacks.
type ResponseComposer struct {
	client Generator
}

// NewResponseComposer creates a composer backed by the given generator.
func NewResponseComposer(client Generator) *ResponseComposer {
	return &ResponseComposer{client: client}
}

// PromptForMissingFields asks for the next missing required field. The first
// missing field in required-field order determines the question; the model may
// rephrase it but a template is always available as fallback.
func (rc *ResponseComposer) PromptForMissingFields(ctx context.Context, state *models.ConversationState) string {
	if len(state.MissingFields) == 0 {
		return ApologyMessage
	}

	next := state.MissingFields[0]
	template, ok := fieldQuestions[next]
	if !ok {
		template = fmt.Sprintf("Could you kindly provide the %s for the appointment?", strings.ReplaceAll(next, "_", " "))
	}

	if rc.client == nil {
		return template
	}
	prompt := fmt.Sprintf("Rephrase this question in one short friendly sentence, keeping its meaning exactly: %q", template)
	rephrased, err := rc.client.GeneratePrompt(ctx, composerSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(rephrased) == "" {
		slog.Debug("ResponseComposer falling back to field question template", "field", next, "error", err)
		return template
	}
	return strings.TrimSpace(rephrased)
}

// ConfirmationSummary renders the collected data for user confirmation. It is
// deterministic: every collected field's value appears in the summary.
func (rc *ResponseComposer) ConfirmationSummary(state *models.ConversationState) string {
	var items []string
	for _, field := range RequiredFields {
		if value, ok := state.CollectedData[field]; ok && value != "" {
			items = append(items, fmt.Sprintf("- %s: %s", humanizeField(field), value))
		}
	}
	for field, value := range state.CollectedData {
		if !isRequiredField(field) && value != "" && field != "booking_code" {
			items = append(items, fmt.Sprintf("- %s: %s", humanizeField(field), value))
		}
	}

	return fmt.Sprintf("Please confirm your details:\n%s\n\nReply with:\n1. Confirm\n2. Deny", strings.Join(items, "\n"))
}

// AppointmentSummary renders an existing appointment for status replies.
func (rc *ResponseComposer) AppointmentSummary(appt *models.Appointment) string {
	lines := []string{
		fmt.Sprintf("Booking code: %s", appt.BookingCode),
		fmt.Sprintf("Patient: %s", appt.PatientName),
		fmt.Sprintf("Procedure: %s", appt.ProcedureType),
		fmt.Sprintf("Date: %s at %s", appt.Date, appt.Time),
		fmt.Sprintf("Location: %s", appt.Location),
		fmt.Sprintf("Status: %s", appt.Status),
	}
	return strings.Join(lines, "\n")
}

// GenericReply answers off-flow questions with model-generated text, degrading
// to the apology message on failure.
func (rc *ResponseComposer) GenericReply(ctx context.Context, userText string) string {
	if rc.client == nil {
		return ApologyMessage
	}
	reply, err := rc.client.GeneratePrompt(ctx, composerSystemPrompt, userText)
	if err != nil || strings.TrimSpace(reply) == "" {
		slog.Warn("ResponseComposer GenericReply degraded to apology", "error", err)
		return ApologyMessage
	}
	return strings.TrimSpace(reply)
}

func humanizeField(field string) string {
	words := strings.Split(strings.ReplaceAll(field, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func isRequiredField(field string) bool {
	for _, f := range RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}
