package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio-backed service.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	// FromWhats is the sending number in "whatsapp:+1234567890" format.
	FromWhats string
}

// TwilioOption configures the Twilio-backed service.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// messageCreator is the slice of the Twilio REST client the service calls.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService delivers messages over Twilio's WhatsApp channel. Twilio's Go
// SDK has no interactive list support, so the menu degrades to a numbered
// text message.
type TwilioService struct {
	api       messageCreator
	fromWhats string
}

// NewTwilioService creates a Twilio-backed messaging service. Credentials
// fall back to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	slog.Debug("Creating TwilioService", "from", cfg.FromWhats)
	return &TwilioService{
		api:       client.Api,
		fromWhats: cfg.FromWhats,
	}, nil
}

// ValidateAndCanonicalizeRecipient normalizes a recipient to bare digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

// SendMessage delivers a plain text message over the Twilio WhatsApp channel.
func (s *TwilioService) SendMessage(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioService message sent", "to", canonical)
	return nil
}

// SendMenu sends the action menu as a numbered text list.
func (s *TwilioService) SendMenu(ctx context.Context, to, body string) error {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, opt := range menuOptions {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt.title))
	}
	return s.SendMessage(ctx, to, b.String())
}
