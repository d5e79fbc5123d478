// Package whatsapp is a minimal WhatsApp Cloud API (Graph) client: outbound
// text messages, interactive lists, and read receipts.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL is the Graph API root used when none is configured.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// DefaultTimeout bounds every Graph API call.
const DefaultTimeout = 30 * time.Second

// Opts holds the configurable options for the Cloud API client.
type Opts struct {
	// AccessToken is the Graph bearer token. Defaults to WHATSAPP_ACCESS_TOKEN.
	AccessToken string
	// PhoneNumberID identifies the sending number. Defaults to
	// WHATSAPP_PHONE_NUMBER_ID.
	PhoneNumberID string
	// BaseURL overrides the Graph API root, mainly for tests.
	BaseURL string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Option configures the Cloud API client.
type Option func(*Opts)

// WithAccessToken sets the Graph bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithBaseURL overrides the Graph API root.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

// NewClient creates a Cloud API client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token is required (set WHATSAPP_ACCESS_TOKEN)")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id is required (set WHATSAPP_PHONE_NUMBER_ID)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	slog.Debug("Creating whatsapp Client", "phone_number_id", cfg.PhoneNumberID)
	return &Client{
		httpClient:    cfg.HTTPClient,
		baseURL:       cfg.BaseURL,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
	}, nil
}

// ListRow is one selectable row of an interactive list.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// InteractiveList describes one list message.
type InteractiveList struct {
	Header      string
	Body        string
	Footer      string
	ButtonLabel string
	Sections    []ListSection
}

// SendText delivers a plain text message to a phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        body,
		},
	}
	if err := c.post(ctx, payload); err != nil {
		return fmt.Errorf("failed to send text to %s: %w", to, err)
	}
	slog.Debug("whatsapp.SendText: message sent", "to", to, "length", len(body))
	return nil
}

// SendInteractiveList delivers an interactive list message.
func (c *Client) SendInteractiveList(ctx context.Context, to string, list InteractiveList) error {
	interactive := map[string]interface{}{
		"type": "list",
		"body": map[string]string{"text": list.Body},
		"action": map[string]interface{}{
			"button":   list.ButtonLabel,
			"sections": list.Sections,
		},
	}
	if list.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": list.Header}
	}
	if list.Footer != "" {
		interactive["footer"] = map[string]string{"text": list.Footer}
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	if err := c.post(ctx, payload); err != nil {
		return fmt.Errorf("failed to send interactive list to %s: %w", to, err)
	}
	slog.Debug("whatsapp.SendInteractiveList: list sent", "to", to, "sections", len(list.Sections))
	return nil
}

// MarkRead flags an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if err := c.post(ctx, payload); err != nil {
		return fmt.Errorf("failed to mark message %s read: %w", messageID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
