package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ivx-health/aia/internal/models"
	"github.com/ivx-health/aia/internal/util"
)

// RequiredFields is the canonical required-field list for appointment
// creation, in prompting order.
var RequiredFields = []string{"patient_name", "patient_gender", "procedure_type", "location", "date", "time"}

// EditableFields are the appointment fields a user may change after booking.
var EditableFields = []string{"date", "time", "procedure_type", "location"}

// menuIntents maps interactive list reply ids directly to intents, skipping
// the classifier for menu selections.
var menuIntents = map[string]models.Intent{
	"CREATE_APPOINTMENT":       models.IntentCreateAppointment,
	"CHECK_APPOINTMENT_STATUS": models.IntentCheckStatus,
	"UPDATE_APPOINTMENT":       models.IntentEditAppointment,
	"CANCEL_APPOINTMENT":       models.IntentCancelAppointment,
}

// Classifier labels user text with an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) models.Intent
}

// Extractor pulls requested fields out of user text.
type Extractor interface {
	Extract(ctx context.Context, text string, fields []string) map[string]string
}

// Persistence is the external appointment store as seen by the dispatcher.
type Persistence interface {
	CreateAppointment(ctx context.Context, appt models.Appointment) error
	UpdateAppointment(ctx context.Context, code string, changes map[string]string) error
	FindAppointmentByCode(ctx context.Context, code string) (*models.Appointment, error)
	FindLatestAppointments(ctx context.Context, clinicPhone string, limit int) ([]models.Appointment, error)
}

// DoctorAssigner finds and notifies a doctor for a confirmed appointment.
type DoctorAssigner interface {
	AssignDoctor(ctx context.Context, appt models.Appointment) (*models.Doctor, error)
}

// Reply is the outbound action produced by one dispatch step.
type Reply struct {
	Text string
	// Menu requests that the action menu be sent alongside the text.
	Menu bool
}

// Dispatcher routes each inbound message through the conversation state
// machine for its phone number. Messages from the same phone number are
// serialized by a per-phone mutex; different phone numbers dispatch
// concurrently.
type Dispatcher struct {
	states      StateManager
	classifier  Classifier
	extractor   Extractor
	composer    *ResponseComposer
	persistence Persistence
	doctors     DoctorAssigner

	mu         sync.Mutex
	phoneLocks map[string]*sync.Mutex
}

// NewDispatcher wires the dispatcher's collaborators. doctors may be nil when
// doctor assignment is disabled.
func NewDispatcher(states StateManager, classifier Classifier, extractor Extractor, composer *ResponseComposer, persistence Persistence, doctors DoctorAssigner) *Dispatcher {
	slog.Debug("Creating Dispatcher", "doctor_assignment", doctors != nil)
	return &Dispatcher{
		states:      states,
		classifier:  classifier,
		extractor:   extractor,
		composer:    composer,
		persistence: persistence,
		doctors:     doctors,
		phoneLocks:  make(map[string]*sync.Mutex),
	}
}

// lockPhone acquires the single-writer lock for a phone number and returns
// its release function.
func (d *Dispatcher) lockPhone(phone string) func() {
	d.mu.Lock()
	lock, ok := d.phoneLocks[phone]
	if !ok {
		lock = &sync.Mutex{}
		d.phoneLocks[phone] = lock
	}
	d.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Dispatch processes one inbound message and returns the outbound reply.
// State is loaded, mutated, and saved under the phone number's lock.
func (d *Dispatcher) Dispatch(ctx context.Context, phone, text string) (Reply, error) {
	if phone == "" {
		return Reply{}, models.ErrEmptyPhoneNumber
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, models.ErrEmptyMessageBody
	}

	unlock := d.lockPhone(phone)
	defer unlock()

	state, err := d.states.GetState(ctx, phone)
	if err != nil {
		slog.Error("Dispatcher Dispatch failed to load state", "error", err, "phone", phone)
		return Reply{Text: ApologyMessage}, err
	}
	state.AppendTurn("user", text)

	var reply Reply
	if state.Status == models.StatusPendingConfirmation {
		reply = d.handleConfirmation(ctx, &state, text)
	} else {
		intent := d.resolveIntent(ctx, &state, text)
		slog.Debug("Dispatcher resolved intent", "phone", phone, "intent", intent)
		switch intent {
		case models.IntentCreateAppointment:
			reply = d.handleCreate(ctx, &state, text)
		case models.IntentCheckStatus:
			reply = d.handleStatus(ctx, &state, text)
		case models.IntentEditAppointment:
			reply = d.handleEdit(ctx, &state, text)
		case models.IntentCancelAppointment:
			reply = d.handleCancel(ctx, &state, text)
		case models.IntentGreeting:
			reply = Reply{Text: MenuMessage, Menu: true}
		default:
			reply = Reply{Text: d.composer.GenericReply(ctx, text)}
		}
	}

	state.AppendTurn("assistant", reply.Text)
	if err := d.states.SaveState(ctx, state); err != nil {
		// The reply is still sent; the next message re-reads stale state.
		slog.Error("Dispatcher Dispatch failed to save state", "error", err, "phone", phone)
	}
	return reply, nil
}

// resolveIntent maps menu selections directly, classifies free text, and
// keeps the active intent sticky while a collection step awaits an answer.
func (d *Dispatcher) resolveIntent(ctx context.Context, state *models.ConversationState, text string) models.Intent {
	if intent, ok := menuIntents[strings.ToUpper(text)]; ok {
		return intent
	}

	intent := d.classifier.Classify(ctx, text)
	if intent != models.IntentUnknown {
		return intent
	}
	// Mid-flow answers ("John Smith", "tomorrow at 3") rarely classify; keep
	// collecting for the active intent instead of dropping the flow.
	if state.NeedsClarification && state.CurrentIntent != models.IntentUnknown {
		return state.CurrentIntent
	}
	return models.IntentUnknown
}

// handleCreate advances the appointment creation flow: extract whatever the
// message offers, recompute missing fields, then either prompt for the next
// field or move to confirmation.
func (d *Dispatcher) handleCreate(ctx context.Context, state *models.ConversationState, text string) Reply {
	state.CurrentIntent = models.IntentCreateAppointment
	state.Status = models.StatusCollecting

	missing := MissingFields(RequiredFields, state.CollectedData)
	if len(missing) > 0 {
		extracted := d.extractor.Extract(ctx, text, missing)
		for key, value := range extracted {
			state.CollectedData[key] = value
		}
	}
	state.MissingFields = MissingFields(RequiredFields, state.CollectedData)

	if len(state.MissingFields) > 0 {
		state.NeedsClarification = true
		return Reply{Text: d.composer.PromptForMissingFields(ctx, state)}
	}

	state.NeedsClarification = false
	state.Status = models.StatusPendingConfirmation
	return Reply{Text: d.composer.ConfirmationSummary(state)}
}

// handleConfirmation interprets a reply to a pending confirmation summary.
func (d *Dispatcher) handleConfirmation(ctx context.Context, state *models.ConversationState, text string) Reply {
	switch interpretConfirmation(text) {
	case confirmationYes:
		return d.finalizeConfirmed(ctx, state)
	case confirmationNo:
		state.Status = models.StatusCollecting
		state.NeedsClarification = true
		return Reply{Text: "I understand you don't want to proceed. What would you like to change?"}
	}

	// Neither yes nor no: treat the message as a change request and fold any
	// extracted corrections back into the collected data. Which fields a
	// correction may touch depends on the flow awaiting confirmation.
	fields := correctionFields(state.CurrentIntent)
	if len(fields) == 0 {
		return Reply{Text: confirmOrDenyMessage}
	}
	extracted := d.extractor.Extract(ctx, text, fields)
	if len(extracted) == 0 {
		return Reply{Text: confirmOrDenyMessage}
	}
	for key, value := range extracted {
		state.CollectedData[key] = value
	}
	if state.CurrentIntent == models.IntentCreateAppointment {
		state.MissingFields = MissingFields(RequiredFields, state.CollectedData)
		if len(state.MissingFields) > 0 {
			state.Status = models.StatusCollecting
			state.NeedsClarification = true
			return Reply{Text: d.composer.PromptForMissingFields(ctx, state)}
		}
	}
	return Reply{Text: d.composer.ConfirmationSummary(state)}
}

// correctionFields returns the fields a correction may change while the named
// intent awaits confirmation. Cancellations take no corrections; the user
// either confirms or denies.
func correctionFields(intent models.Intent) []string {
	switch intent {
	case models.IntentEditAppointment:
		return append([]string{"booking_code"}, EditableFields...)
	case models.IntentCancelAppointment:
		return nil
	default:
		return RequiredFields
	}
}

// finalizeConfirmed executes the confirmed action for the active intent.
func (d *Dispatcher) finalizeConfirmed(ctx context.Context, state *models.ConversationState) Reply {
	switch state.CurrentIntent {
	case models.IntentCreateAppointment:
		return d.finalizeCreate(ctx, state)
	case models.IntentEditAppointment:
		return d.finalizeEdit(ctx, state)
	case models.IntentCancelAppointment:
		return d.finalizeCancel(ctx, state)
	default:
		resetAfterTerminal(state, models.StatusConfirmed)
		return Reply{Text: "I've processed your request. Is there anything else you need help with?"}
	}
}

func (d *Dispatcher) finalizeCreate(ctx context.Context, state *models.ConversationState) Reply {
	code := util.GenerateBookingCode()
	appt := appointmentFromState(state, code)

	if err := d.persistence.CreateAppointment(ctx, appt); err != nil {
		slog.Error("Dispatcher finalizeCreate persistence failed", "error", err, "phone", state.PhoneNumber)
		// Leave the confirmation pending so a retry "yes" can succeed.
		return Reply{Text: ApologyMessage}
	}
	slog.Info("Dispatcher appointment created", "phone", state.PhoneNumber, "code", code)

	if d.doctors != nil {
		if doctor, err := d.doctors.AssignDoctor(ctx, appt); err != nil {
			slog.Warn("Dispatcher doctor assignment failed", "error", err, "code", code)
		} else if doctor != nil {
			changes := map[string]string{
				"status":    string(models.AppointmentStatusDoctorAssigned),
				"doctor_id": doctor.ID,
			}
			if err := d.persistence.UpdateAppointment(ctx, code, changes); err != nil {
				slog.Warn("Dispatcher doctor assignment update failed", "error", err, "code", code)
			}
		}
	}

	resetAfterTerminal(state, models.StatusConfirmed)
	return Reply{Text: fmt.Sprintf("Great! I've scheduled your appointment. Your booking code is %s — keep it handy to check status or make changes.", code)}
}

func (d *Dispatcher) finalizeEdit(ctx context.Context, state *models.ConversationState) Reply {
	code := state.CollectedData["booking_code"]
	changes := make(map[string]string)
	for _, field := range EditableFields {
		if value, ok := state.CollectedData[field]; ok && value != "" {
			changes[field] = value
		}
	}
	changes["status"] = string(models.AppointmentStatusRescheduled)

	if err := d.persistence.UpdateAppointment(ctx, code, changes); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			resetAfterTerminal(state, models.StatusCanceled)
			return Reply{Text: notFoundMessage}
		}
		slog.Error("Dispatcher finalizeEdit persistence failed", "error", err, "code", code)
		return Reply{Text: ApologyMessage}
	}

	resetAfterTerminal(state, models.StatusConfirmed)
	return Reply{Text: "I've updated your appointment with the new details. You'll receive a confirmation message shortly."}
}

func (d *Dispatcher) finalizeCancel(ctx context.Context, state *models.ConversationState) Reply {
	code := state.CollectedData["booking_code"]
	changes := map[string]string{"status": string(models.AppointmentStatusCanceled)}

	if err := d.persistence.UpdateAppointment(ctx, code, changes); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			resetAfterTerminal(state, models.StatusCanceled)
			return Reply{Text: notFoundMessage}
		}
		slog.Error("Dispatcher finalizeCancel persistence failed", "error", err, "code", code)
		return Reply{Text: ApologyMessage}
	}

	resetAfterTerminal(state, models.StatusCanceled)
	return Reply{Text: "Your appointment has been cancelled. Would you like to reschedule?"}
}

const notFoundMessage = "I'm sorry, I couldn't find an appointment with that booking code. Please double-check it and try again."

const confirmOrDenyMessage = "I didn't quite catch that. Could you please reply with '1' to confirm or '2' to deny?"

// handleStatus looks up an appointment by booking code, falling back to the
// latest appointments for this number when the user has no code handy.
func (d *Dispatcher) handleStatus(ctx context.Context, state *models.ConversationState, text string) Reply {
	state.CurrentIntent = models.IntentCheckStatus
	state.Status = models.StatusCollecting

	code := d.resolveBookingCode(ctx, text)
	if code == "" {
		if mentionsNoCode(text) {
			return d.replyLatestAppointments(ctx, state)
		}
		state.NeedsClarification = true
		return Reply{Text: fieldQuestions["booking_code"]}
	}

	appt, err := d.persistence.FindAppointmentByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			state.NeedsClarification = false
			return Reply{Text: notFoundMessage}
		}
		slog.Error("Dispatcher handleStatus lookup failed", "error", err, "code", code)
		return Reply{Text: ApologyMessage}
	}

	state.NeedsClarification = false
	return Reply{Text: d.composer.AppointmentSummary(appt)}
}

// handleEdit collects a booking code and the fields to change, then asks for
// confirmation before patching the external record.
func (d *Dispatcher) handleEdit(ctx context.Context, state *models.ConversationState, text string) Reply {
	state.CurrentIntent = models.IntentEditAppointment
	state.Status = models.StatusCollecting

	code := state.CollectedData["booking_code"]
	if code == "" {
		code = d.resolveBookingCode(ctx, text)
	}
	if code == "" {
		state.NeedsClarification = true
		return Reply{Text: fieldQuestions["booking_code"]}
	}
	state.CollectedData["booking_code"] = code

	if _, err := d.persistence.FindAppointmentByCode(ctx, code); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			delete(state.CollectedData, "booking_code")
			return Reply{Text: notFoundMessage}
		}
		slog.Error("Dispatcher handleEdit lookup failed", "error", err, "code", code)
		return Reply{Text: ApologyMessage}
	}

	extracted := d.extractor.Extract(ctx, text, EditableFields)
	for key, value := range extracted {
		state.CollectedData[key] = value
	}

	if len(MissingFields(EditableFields, state.CollectedData)) == len(EditableFields) {
		state.NeedsClarification = true
		return Reply{Text: "What would you like to change? You can update the date, time, procedure, or location."}
	}

	state.NeedsClarification = false
	state.Status = models.StatusPendingConfirmation
	return Reply{Text: d.composer.ConfirmationSummary(state)}
}

// handleCancel locates the appointment and asks for confirmation before
// canceling it.
func (d *Dispatcher) handleCancel(ctx context.Context, state *models.ConversationState, text string) Reply {
	state.CurrentIntent = models.IntentCancelAppointment
	state.Status = models.StatusCollecting

	code := state.CollectedData["booking_code"]
	if code == "" {
		code = d.resolveBookingCode(ctx, text)
	}
	if code == "" {
		state.NeedsClarification = true
		return Reply{Text: fieldQuestions["booking_code"]}
	}
	state.CollectedData["booking_code"] = code

	appt, err := d.persistence.FindAppointmentByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			delete(state.CollectedData, "booking_code")
			return Reply{Text: notFoundMessage}
		}
		slog.Error("Dispatcher handleCancel lookup failed", "error", err, "code", code)
		return Reply{Text: ApologyMessage}
	}

	state.NeedsClarification = false
	state.Status = models.StatusPendingConfirmation
	return Reply{Text: fmt.Sprintf("You'd like to cancel the %s appointment on %s at %s (booking code %s).\n\nReply with:\n1. Confirm\n2. Deny",
		appt.ProcedureType, appt.Date, appt.Time, appt.BookingCode)}
}

// resolveBookingCode scans the message tokens for a valid booking code, then
// falls back to an extraction call.
func (d *Dispatcher) resolveBookingCode(ctx context.Context, text string) string {
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,:;!?\"'")
		if models.IsValidBookingCode(token) {
			return strings.ToUpper(token)
		}
	}
	extracted := d.extractor.Extract(ctx, text, []string{"booking_code"})
	if code := extracted["booking_code"]; models.IsValidBookingCode(code) {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	return ""
}

func (d *Dispatcher) replyLatestAppointments(ctx context.Context, state *models.ConversationState) Reply {
	appointments, err := d.persistence.FindLatestAppointments(ctx, state.PhoneNumber, 10)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Reply{Text: "I couldn't find any recent appointments for this number."}
		}
		slog.Error("Dispatcher replyLatestAppointments failed", "error", err, "phone", state.PhoneNumber)
		return Reply{Text: ApologyMessage}
	}
	if len(appointments) == 0 {
		return Reply{Text: "I couldn't find any recent appointments for this number."}
	}

	var lines []string
	for _, appt := range appointments {
		lines = append(lines, fmt.Sprintf("- %s: %s on %s at %s (%s)",
			appt.BookingCode, appt.ProcedureType, appt.Date, appt.Time, appt.Status))
	}
	return Reply{Text: "Here are your most recent appointments:\n" + strings.Join(lines, "\n")}
}

type confirmationAnswer int

const (
	confirmationYes confirmationAnswer = iota
	confirmationNo
	confirmationOther
)

// interpretConfirmation maps a confirmation reply to yes/no/other. The menu
// offers "1. Confirm / 2. Deny", so numeric answers come first.
func interpretConfirmation(text string) confirmationAnswer {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "yes", "y", "confirm", "confirmed", "ok", "si", "sí":
		return confirmationYes
	case "2", "no", "n", "deny", "reject", "cancel":
		return confirmationNo
	default:
		return confirmationOther
	}
}

func mentionsNoCode(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"don't have", "dont have", "no code", "lost", "forgot", "can't find", "cant find"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// appointmentFromState builds the appointment record to persist on confirm.
func appointmentFromState(state *models.ConversationState, code string) models.Appointment {
	data := state.CollectedData
	return models.Appointment{
		PatientName:    data["patient_name"],
		PatientGender:  data["patient_gender"],
		ProcedureType:  data["procedure_type"],
		Location:       data["location"],
		Date:           data["date"],
		Time:           data["time"],
		ClinicPhone:    state.PhoneNumber,
		BookingCode:    code,
		Status:         models.AppointmentStatusPending,
		AdditionalNote: data["additional_note"],
	}
}

// resetAfterTerminal clears the collection state once a flow reaches a
// terminal status, keeping the bounded history.
func resetAfterTerminal(state *models.ConversationState, status models.ConversationStatus) {
	state.Status = status
	state.CurrentIntent = models.IntentUnknown
	state.CollectedData = make(map[string]string)
	state.MissingFields = nil
	state.NeedsClarification = false
}
