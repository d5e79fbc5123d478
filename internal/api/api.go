// Package api provides the HTTP surface of the appointment assistant: the
// WhatsApp webhook (verification handshake and inbound messages), a health
// check, and an appointment lookup passthrough.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ivx-health/aia/internal/flow"
	"github.com/ivx-health/aia/internal/messaging"
	"github.com/ivx-health/aia/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds the configurable options for the API server.
type Opts struct {
	// Addr is the listen address.
	Addr string
	// VerifyToken is the expected hub.verify_token for the webhook handshake.
	VerifyToken string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// MessageDispatcher routes one inbound message to a reply.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, phone, text string) (flow.Reply, error)
}

// ReadMarker flags inbound messages as read. May be nil when the provider
// does not support receipts.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// AppointmentFinder looks up appointments for the passthrough endpoint.
type AppointmentFinder interface {
	FindAppointmentByCode(ctx context.Context, code string) (*models.Appointment, error)
}

// Server wires the webhook handlers to the dispatcher and messaging service.
type Server struct {
	dispatcher   MessageDispatcher
	msgService   messaging.Service
	readMarker   ReadMarker
	appointments AppointmentFinder
	verifyToken  string
	addr         string
	httpServer   *http.Server
}

// NewServer creates the API server. readMarker and appointments may be nil;
// the corresponding features are disabled.
func NewServer(dispatcher MessageDispatcher, msgService messaging.Service, readMarker ReadMarker, appointments AppointmentFinder, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		dispatcher:   dispatcher,
		msgService:   msgService,
		readMarker:   readMarker,
		appointments: appointments,
		verifyToken:  cfg.VerifyToken,
		addr:         cfg.Addr,
	}
	slog.Debug("Creating api Server", "addr", cfg.Addr, "mark_read", readMarker != nil)
	return s
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/appointments", s.appointmentLookupHandler)
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
