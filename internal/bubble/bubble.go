// Package bubble is the persistence adapter for the external Bubble data API
// that stores appointments and clinic reference data.
package bubble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ivx-health/aia/internal/models"
)

// DefaultTimeout bounds every data API call.
const DefaultTimeout = 30 * time.Second

const (
	appointmentType = "appointment"
	clinicType      = "clinic"
)

// Opts holds the configurable options for the Bubble client.
type Opts struct {
	// BaseURL is the data API root, e.g. https://ivx.bubbleapps.io/api/1.1/obj.
	BaseURL string
	// APIToken is the bearer token. Defaults to the BUBBLE_API_TOKEN env var.
	APIToken string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Option configures the Bubble client.
type Option func(*Opts)

// WithBaseURL sets the data API root URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIToken sets the bearer token, overriding the environment variable.
func WithAPIToken(token string) Option {
	return func(o *Opts) { o.APIToken = token }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Bubble data API. It implements the dispatcher's
// Persistence interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
}

// NewClient creates a Bubble data API client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIToken == "" {
		cfg.APIToken = os.Getenv("BUBBLE_API_TOKEN")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bubble base URL is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("bubble API token is required (set BUBBLE_API_TOKEN)")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	slog.Debug("Creating bubble Client", "base_url", cfg.BaseURL)
	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
	}, nil
}

// constraint is one Bubble search constraint.
type constraint struct {
	Key            string `json:"key"`
	ConstraintType string `json:"constraint_type"`
	Value          string `json:"value"`
}

// queryEnvelope is the data API search response wrapper.
type queryEnvelope struct {
	Response struct {
		Results []json.RawMessage `json:"results"`
		Count   int               `json:"count"`
	} `json:"response"`
}

type createEnvelope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateAppointment persists a new appointment record. When a clinic record
// matches the appointment's phone number its name is attached first.
func (c *Client) CreateAppointment(ctx context.Context, appt models.Appointment) error {
	if clinic, err := c.FindClinicByPhone(ctx, appt.ClinicPhone); err == nil {
		appt.ClinicName = clinic.Name
	}

	body, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("failed to encode appointment: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+appointmentType, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	var created createEnvelope
	if err := json.Unmarshal(respBody, &created); err != nil {
		return fmt.Errorf("failed to decode create response: %w", err)
	}
	slog.Info("bubble.CreateAppointment: appointment persisted", "code", appt.BookingCode, "id", created.ID)
	return nil
}

// UpdateAppointment patches the appointment with the given booking code.
// Returns models.ErrNotFound (wrapped) when no record matches the code.
func (c *Client) UpdateAppointment(ctx context.Context, code string, changes map[string]string) error {
	appt, err := c.FindAppointmentByCode(ctx, code)
	if err != nil {
		return err
	}

	body, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPatch, c.baseURL+"/"+appointmentType+"/"+appt.ID, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("failed to update appointment %s: %w", code, err)
	}
	slog.Info("bubble.UpdateAppointment: appointment patched", "code", code, "fields", len(changes))
	return nil
}

// FindAppointmentByCode returns the appointment with the given booking code,
// or a wrapped models.ErrNotFound.
func (c *Client) FindAppointmentByCode(ctx context.Context, code string) (*models.Appointment, error) {
	results, err := c.search(ctx, appointmentType, []constraint{
		{Key: "code", ConstraintType: "equals", Value: code},
	}, 1, false)
	if err != nil {
		return nil, fmt.Errorf("failed to search appointment %s: %w", code, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("appointment %s: %w", code, models.ErrNotFound)
	}

	var appt models.Appointment
	if err := json.Unmarshal(results[0], &appt); err != nil {
		return nil, fmt.Errorf("failed to decode appointment %s: %w", code, err)
	}
	return &appt, nil
}

// FindLatestAppointments returns the most recent appointments for a phone
// number, newest first.
func (c *Client) FindLatestAppointments(ctx context.Context, clinicPhone string, limit int) ([]models.Appointment, error) {
	results, err := c.search(ctx, appointmentType, []constraint{
		{Key: "phone_number", ConstraintType: "equals", Value: clinicPhone},
	}, limit, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search appointments for %s: %w", clinicPhone, err)
	}

	appointments := make([]models.Appointment, 0, len(results))
	for _, raw := range results {
		var appt models.Appointment
		if err := json.Unmarshal(raw, &appt); err != nil {
			return nil, fmt.Errorf("failed to decode appointment result: %w", err)
		}
		appointments = append(appointments, appt)
	}
	return appointments, nil
}

// FindClinicByPhone returns the clinic record registered for a phone number,
// or a wrapped models.ErrNotFound.
func (c *Client) FindClinicByPhone(ctx context.Context, phone string) (*models.Clinic, error) {
	results, err := c.search(ctx, clinicType, []constraint{
		{Key: "phone_number", ConstraintType: "equals", Value: phone},
	}, 1, false)
	if err != nil {
		return nil, fmt.Errorf("failed to search clinic for %s: %w", phone, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("clinic for %s: %w", phone, models.ErrNotFound)
	}

	var clinic models.Clinic
	if err := json.Unmarshal(results[0], &clinic); err != nil {
		return nil, fmt.Errorf("failed to decode clinic result: %w", err)
	}
	return &clinic, nil
}

// search runs a constraints query against one data type and returns the raw
// result objects.
func (c *Client) search(ctx context.Context, dataType string, constraints []constraint, limit int, newestFirst bool) ([]json.RawMessage, error) {
	encoded, err := json.Marshal(constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constraints: %w", err)
	}

	params := url.Values{}
	params.Set("constraints", string(encoded))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if newestFirst {
		params.Set("sort_field", "Created Date")
		params.Set("descending", "true")
	}

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+dataType+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var envelope queryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return envelope.Response.Results, nil
}

// do sends one authenticated request and returns the response body. Non-2xx
// statuses are errors.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("data API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
