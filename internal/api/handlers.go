package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivx-health/aia/internal/models"
)

// dispatchTimeout bounds the full processing of one inbound message,
// including model calls and the outbound send.
const dispatchTimeout = 2 * time.Minute

// webhookHandler serves both halves of the Cloud API webhook contract: the
// GET verification handshake and POST message deliveries.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhook answers the subscription handshake: when the mode and token
// match, the challenge is echoed back as an integer.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != s.verifyToken {
		slog.Warn("Server.verifyWebhook: verification failed", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	n, err := strconv.Atoi(challenge)
	if err != nil {
		slog.Warn("Server.verifyWebhook: non-numeric challenge", "challenge", challenge)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	slog.Info("Server.verifyWebhook: webhook verified")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(strconv.Itoa(n))); err != nil {
		slog.Error("Server.verifyWebhook: failed to write challenge", "error", err)
	}
}

// receiveWebhook accepts a message delivery. The Cloud API retries non-200
// responses aggressively, so the handler always acknowledges with
// {"status":"ok"} and processes messages asynchronously.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.receiveWebhook: failed to decode payload", "error", err)
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, message := range change.Value.Messages {
				go s.processMessage(message)
			}
			for _, status := range change.Value.Statuses {
				slog.Debug("Server.receiveWebhook: delivery status", "id", status.ID, "status", status.Status)
			}
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processMessage runs one inbound message through the dispatcher and sends
// the reply. Failures are logged; the webhook response was already sent.
func (s *Server) processMessage(message models.IncomingMessage) {
	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if s.readMarker != nil {
		if err := s.readMarker.MarkRead(ctx, message.ID); err != nil {
			slog.Warn("Server.processMessage: mark-read failed", "error", err, "request_id", requestID)
		}
	}

	text, ok := message.ReplyText()
	if !ok {
		slog.Info("Server.processMessage: unhandled message type", "type", message.Type, "request_id", requestID)
		return
	}

	phone, err := s.msgService.ValidateAndCanonicalizeRecipient(message.From)
	if err != nil {
		slog.Warn("Server.processMessage: invalid sender", "error", err, "from", message.From, "request_id", requestID)
		return
	}

	slog.Debug("Server.processMessage: dispatching", "phone", phone, "type", message.Type, "request_id", requestID)
	reply, err := s.dispatcher.Dispatch(ctx, phone, text)
	if err != nil {
		slog.Error("Server.processMessage: dispatch failed", "error", err, "phone", phone, "request_id", requestID)
		if reply.Text == "" {
			return
		}
	}

	if reply.Menu {
		err = s.msgService.SendMenu(ctx, phone, reply.Text)
	} else {
		err = s.msgService.SendMessage(ctx, phone, reply.Text)
	}
	if err != nil {
		slog.Error("Server.processMessage: send failed", "error", err, "phone", phone, "request_id", requestID)
		return
	}
	slog.Info("Server.processMessage: reply sent", "phone", phone, "request_id", requestID)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// appointmentLookupHandler is a read-only passthrough to the appointment
// store, keyed by booking code.
func (s *Server) appointmentLookupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.appointments == nil {
		writeJSONResponse(w, http.StatusNotImplemented, models.Error("Appointment lookup not configured"))
		return
	}

	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if !models.IsValidBookingCode(code) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidBookingCode.Error()))
		return
	}

	appt, err := s.appointments.FindAppointmentByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Appointment not found"))
			return
		}
		slog.Error("Server.appointmentLookupHandler: lookup failed", "error", err, "code", code)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up appointment"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appt))
}
