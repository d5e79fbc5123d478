package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivx-health/aia/internal/whatsapp"
)

// CloudSender is the subset of the Cloud API client the service uses.
type CloudSender interface {
	SendText(ctx context.Context, to, body string) error
	SendInteractiveList(ctx context.Context, to string, list whatsapp.InteractiveList) error
}

// CloudAPIService delivers messages through the WhatsApp Cloud API. The menu
// is sent as an interactive list.
type CloudAPIService struct {
	client CloudSender
}

// NewCloudAPIService wraps a Cloud API client as a messaging Service.
func NewCloudAPIService(client CloudSender) *CloudAPIService {
	slog.Debug("Creating CloudAPIService")
	return &CloudAPIService{client: client}
}

// ValidateAndCanonicalizeRecipient normalizes a recipient to bare digits.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

// SendMessage delivers a plain text message.
func (s *CloudAPIService) SendMessage(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	return s.client.SendText(ctx, canonical, body)
}

// SendMenu delivers the action menu as an interactive list.
func (s *CloudAPIService) SendMenu(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	rows := make([]whatsapp.ListRow, 0, len(menuOptions))
	for _, opt := range menuOptions {
		rows = append(rows, whatsapp.ListRow{ID: opt.id, Title: opt.title, Description: opt.desc})
	}
	list := whatsapp.InteractiveList{
		Header:      "IVX Scheduling",
		Body:        body,
		ButtonLabel: "Options",
		Sections:    []whatsapp.ListSection{{Title: "Appointments", Rows: rows}},
	}
	return s.client.SendInteractiveList(ctx, canonical, list)
}
