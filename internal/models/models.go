// Package models defines the core data structures for the IVX appointment assistant.
//
// It includes intents, conversation state, appointment records, and the shared
// API response envelope used across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Intent is a classified label for what a user's message is trying to accomplish.
type Intent string

const (
	// IntentCreateAppointment starts or continues the appointment booking flow.
	IntentCreateAppointment Intent = "create_appointment"
	// IntentCheckStatus looks up an existing appointment by booking code.
	IntentCheckStatus Intent = "check_status"
	// IntentEditAppointment modifies fields of an existing appointment.
	IntentEditAppointment Intent = "edit_appointment"
	// IntentCancelAppointment cancels an existing appointment.
	IntentCancelAppointment Intent = "cancel_appointment"
	// IntentGreeting covers salutations and menu requests.
	IntentGreeting Intent = "greeting"
	// IntentGetInfo covers general questions about the clinic or procedures.
	IntentGetInfo Intent = "get_info"
	// IntentUnknown is the fallback when classification fails or degrades.
	IntentUnknown Intent = "unknown"
)

// KnownIntents lists every intent label offered to the classifier, in the order
// they are presented in the classification prompt.
var KnownIntents = []Intent{
	IntentCreateAppointment,
	IntentCheckStatus,
	IntentEditAppointment,
	IntentCancelAppointment,
	IntentGreeting,
	IntentGetInfo,
	IntentUnknown,
}

// ParseIntent performs a case-insensitive lookup of an intent label.
// Unrecognized labels map to IntentUnknown rather than an error, because
// classifier output is untrusted and failures degrade to re-prompting.
func ParseIntent(label string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, intent := range KnownIntents {
		if string(intent) == normalized {
			return intent
		}
	}
	return IntentUnknown
}

// ConversationStatus is the dialog state machine position for one phone number.
type ConversationStatus string

const (
	// StatusCollecting means required fields are still being gathered.
	StatusCollecting ConversationStatus = "COLLECTING"
	// StatusPendingConfirmation means a summary was sent and we await yes/no.
	StatusPendingConfirmation ConversationStatus = "PENDING_CONFIRMATION"
	// StatusConfirmed means the collected data was accepted and persisted.
	StatusConfirmed ConversationStatus = "CONFIRMED"
	// StatusCanceled means the user abandoned the flow.
	StatusCanceled ConversationStatus = "CANCELED"
)

// Language is the participant's preferred reply language.
type Language string

const (
	LanguageEnglish Language = "english"
	LanguageSpanish Language = "spanish"
)

// MaxHistoryTurns bounds the per-conversation turn log.
const MaxHistoryTurns = 20

// Turn is one prior exchange in a conversation, kept for composer context.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ConversationState is the mutable per-phone-number dialog record.
type ConversationState struct {
	PhoneNumber        string             `json:"phone_number"`
	CurrentIntent      Intent             `json:"current_intent"`
	Status             ConversationStatus `json:"status"`
	CollectedData      map[string]string  `json:"collected_data"`
	MissingFields      []string           `json:"missing_fields"`
	NeedsClarification bool               `json:"needs_clarification"`
	Language           Language           `json:"language"`
	History            []Turn             `json:"history,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewConversationState returns the default state for a first-time phone number.
func NewConversationState(phone string) ConversationState {
	now := time.Now()
	return ConversationState{
		PhoneNumber:   phone,
		CurrentIntent: IntentUnknown,
		Status:        StatusCollecting,
		CollectedData: make(map[string]string),
		MissingFields: []string{},
		Language:      LanguageEnglish,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AppendTurn records a conversation turn, evicting the oldest entries beyond
// MaxHistoryTurns.
func (s *ConversationState) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if len(s.History) > MaxHistoryTurns {
		s.History = s.History[len(s.History)-MaxHistoryTurns:]
	}
}

// AppointmentStatus tracks the lifecycle of a persisted appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending        AppointmentStatus = "pending"
	AppointmentStatusConfirmed      AppointmentStatus = "confirmed"
	AppointmentStatusCanceled       AppointmentStatus = "canceled"
	AppointmentStatusRescheduled    AppointmentStatus = "rescheduled"
	AppointmentStatusDoctorAssigned AppointmentStatus = "doctor_assigned"
)

// Appointment is the record persisted to the external appointment store.
// ID is the store-assigned unique id, empty until the record is created.
type Appointment struct {
	ID             string            `json:"_id,omitempty"`
	PatientName    string            `json:"patient_name"`
	PatientGender  string            `json:"patient_gender"`
	ProcedureType  string            `json:"procedure_type"`
	Location       string            `json:"location"`
	Date           string            `json:"date"`
	Time           string            `json:"time"`
	ClinicPhone    string            `json:"phone_number"`
	BookingCode    string            `json:"code"`
	Status         AppointmentStatus `json:"status"`
	AdditionalNote string            `json:"additional_note,omitempty"`
	DoctorID       string            `json:"doctor_id,omitempty"`
	ClinicName     string            `json:"clinic,omitempty"`
}

// Doctor is read-only reference data used for appointment matching.
type Doctor struct {
	ID              string   `json:"id"`
	FullName        string   `json:"full_name"`
	PhoneNumber     string   `json:"phone_number"`
	Specialties     []string `json:"specialties"`
	YearsExperience int      `json:"years_experience"`
	Available       bool     `json:"available"`
	ClinicID        string   `json:"clinic_id"`
}

// Clinic is the external clinic record attached to appointments when known.
type Clinic struct {
	Name        string `json:"clinic_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address,omitempty"`
}

// BookingCodePrefix is the literal prefix of every app-generated booking code.
const BookingCodePrefix = "IVX"

// BookingCodeSuffixLength is the number of random characters after the prefix.
const BookingCodeSuffixLength = 6

// IsValidBookingCode reports whether code looks like an app-generated booking
// code: the IVX prefix (case-insensitive) followed by six alphanumerics.
func IsValidBookingCode(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != len(BookingCodePrefix)+BookingCodeSuffixLength {
		return false
	}
	if !strings.EqualFold(code[:len(BookingCodePrefix)], BookingCodePrefix) {
		return false
	}
	for _, r := range code[len(BookingCodePrefix):] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return true
}

// Error variables for better error handling and testability
var (
	ErrEmptyPhoneNumber   = errors.New("phone number cannot be empty")
	ErrInvalidPhoneNumber = errors.New("phone number must contain 7 to 15 digits")
	ErrInvalidBookingCode = errors.New("invalid booking code")
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	// ErrNotFound signals that an external lookup matched no record. Callers
	// wrap it with context and the dispatcher converts it into a user-facing
	// reply instead of an error response.
	ErrNotFound = errors.New("not found")
)
