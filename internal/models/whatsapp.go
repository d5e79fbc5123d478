// Package models defines WhatsApp Cloud API webhook payload structures.
//
// Only the fields this service reads are declared; the Graph API sends more.
package models

// WebhookPayload is the top-level WhatsApp Cloud API webhook body.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level entry in a webhook delivery.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange carries a single field change, usually "messages".
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds the messages and metadata of a change.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []IncomingMessage `json:"messages,omitempty"`
	Statuses         []MessageStatus   `json:"statuses,omitempty"`
}

// WebhookMetadata identifies the business phone number that received the message.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact carries the sender's profile information.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// IncomingMessage is one inbound message. Type dispatches which member is set.
type IncomingMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"` // text, interactive, button, location, audio
	Text        *TextContent        `json:"text,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
	Button      *ButtonContent      `json:"button,omitempty"`
	Location    *LocationContent    `json:"location,omitempty"`
	Audio       *MediaContent       `json:"audio,omitempty"`
}

// TextContent is the body of a plain text message.
type TextContent struct {
	Body string `json:"body"`
}

// InteractiveContent is a reply to an interactive list or button message.
type InteractiveContent struct {
	Type        string       `json:"type"` // list_reply or button_reply
	ListReply   *OptionReply `json:"list_reply,omitempty"`
	ButtonReply *OptionReply `json:"button_reply,omitempty"`
}

// OptionReply identifies which option the user selected.
type OptionReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ButtonContent is a reply to a template button.
type ButtonContent struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// LocationContent is a shared location.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// MediaContent references uploaded media by id.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
}

// MessageStatus is a delivery status update for an outbound message.
type MessageStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent, delivered, read, failed
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// ReplyText extracts the effective user input from an incoming message:
// the text body for text messages, or the selected option id for interactive
// and button replies. Returns false for message types with no text equivalent.
func (m *IncomingMessage) ReplyText() (string, bool) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body, true
		}
	case "interactive":
		if m.Interactive != nil {
			if m.Interactive.ListReply != nil {
				return m.Interactive.ListReply.ID, true
			}
			if m.Interactive.ButtonReply != nil {
				return m.Interactive.ButtonReply.ID, true
			}
		}
	case "button":
		if m.Button != nil {
			return m.Button.Payload, true
		}
	}
	return "", false
}
