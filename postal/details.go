package postal

import (
	"encoding/json"
)

// Expansion names understood by the /api/v1/messages/message endpoint, in
// the order they are sent.
const (
	ExpandStatus      = "status"
	ExpandDetails     = "details"
	ExpandInspection  = "inspection"
	ExpandPlainBody   = "plain_body"
	ExpandHTMLBody    = "html_body"
	ExpandAttachments = "attachments"
	ExpandHeaders     = "headers"
	ExpandRawMessage  = "raw_message"
)

// DetailsInterest selects which optional sections a details lookup returns.
// Without any expansion Postal replies with the message id and token only.
type DetailsInterest struct {
	ID          MessageID
	Status      bool
	Details     bool
	Inspection  bool
	PlainBody   bool
	HTMLBody    bool
	Attachments bool
	Headers     bool
	RawMessage  bool
}

// NewDetailsInterest returns an interest in message id with no expansions.
func NewDetailsInterest(id MessageID) DetailsInterest {
	return DetailsInterest{ID: id}
}

// WithStatus and the other With* methods each turn on one expansion.
func (d DetailsInterest) WithStatus() DetailsInterest {
	d.Status = true
	return d
}

func (d DetailsInterest) WithDetails() DetailsInterest {
	d.Details = true
	return d
}

func (d DetailsInterest) WithInspection() DetailsInterest {
	d.Inspection = true
	return d
}

func (d DetailsInterest) WithPlainBody() DetailsInterest {
	d.PlainBody = true
	return d
}

func (d DetailsInterest) WithHTMLBody() DetailsInterest {
	d.HTMLBody = true
	return d
}

func (d DetailsInterest) WithAttachments() DetailsInterest {
	d.Attachments = true
	return d
}

func (d DetailsInterest) WithHeaders() DetailsInterest {
	d.Headers = true
	return d
}

func (d DetailsInterest) WithRawMessage() DetailsInterest {
	d.RawMessage = true
	return d
}

// WithAll turns on every expansion.
func (d DetailsInterest) WithAll() DetailsInterest {
	d.Status, d.Details, d.Inspection = true, true, true
	d.PlainBody, d.HTMLBody, d.Attachments = true, true, true
	d.Headers, d.RawMessage = true, true
	return d
}

// With turns on expansions by name. Unknown names are reported back so
// callers can surface them.
func (d DetailsInterest) With(names ...string) (DetailsInterest, []string) {
	var unknown []string
	for _, name := range names {
		switch name {
		case ExpandStatus:
			d.Status = true
		case ExpandDetails:
			d.Details = true
		case ExpandInspection:
			d.Inspection = true
		case ExpandPlainBody:
			d.PlainBody = true
		case ExpandHTMLBody:
			d.HTMLBody = true
		case ExpandAttachments:
			d.Attachments = true
		case ExpandHeaders:
			d.Headers = true
		case ExpandRawMessage:
			d.RawMessage = true
		default:
			unknown = append(unknown, name)
		}
	}
	return d, unknown
}

// Expansions lists the selected sections in a fixed order.
func (d DetailsInterest) Expansions() []string {
	var out []string
	flags := []struct {
		on   bool
		name string
	}{
		{d.Status, ExpandStatus},
		{d.Details, ExpandDetails},
		{d.Inspection, ExpandInspection},
		{d.PlainBody, ExpandPlainBody},
		{d.HTMLBody, ExpandHTMLBody},
		{d.Attachments, ExpandAttachments},
		{d.Headers, ExpandHeaders},
		{d.RawMessage, ExpandRawMessage},
	}
	for _, f := range flags {
		if f.on {
			out = append(out, f.name)
		}
	}
	return out
}

// MarshalJSON encodes the interest as {"id": ..., "_expansions": [...]}.
func (d DetailsInterest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         MessageID `json:"id"`
		Expansions []string  `json:"_expansions,omitempty"`
	}{
		ID:         d.ID,
		Expansions: d.Expansions(),
	})
}

// MessageDetails is the record returned by a details lookup. Sections that
// were not requested through DetailsInterest are left nil.
type MessageDetails struct {
	ID          MessageID           `json:"id"`
	Token       string              `json:"token"`
	Status      *MessageStatus      `json:"status,omitempty"`
	Details     *MessageInfo        `json:"details,omitempty"`
	Inspection  *Inspection         `json:"inspection,omitempty"`
	PlainBody   *string             `json:"plain_body,omitempty"`
	HTMLBody    *string             `json:"html_body,omitempty"`
	Attachments []AttachmentDetails `json:"attachments,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	// RawMessage is the base64 encoded RFC 2822 message.
	RawMessage *string `json:"raw_message,omitempty"`
}

// MessageStatus is the "status" expansion.
type MessageStatus struct {
	Status              string    `json:"status"`
	LastDeliveryAttempt Timestamp `json:"last_delivery_attempt"`
	Held                bool      `json:"held"`
	HoldExpiry          Timestamp `json:"hold_expiry"`
}

// MessageInfo is the "details" expansion.
type MessageInfo struct {
	RcptTo          string      `json:"rcpt_to"`
	MailFrom        string      `json:"mail_from"`
	Subject         string      `json:"subject"`
	MessageID       string      `json:"message_id"`
	Timestamp       Timestamp   `json:"timestamp"`
	Direction       string      `json:"direction"`
	Size            json.Number `json:"size"`
	Bounce          bool        `json:"bounce"`
	BounceForID     MessageID   `json:"bounce_for_id"`
	Tag             string      `json:"tag"`
	ReceivedWithSSL bool        `json:"received_with_ssl"`
}

// Inspection is the "inspection" expansion with spam and threat results.
type Inspection struct {
	Inspected     bool    `json:"inspected"`
	Spam          bool    `json:"spam"`
	SpamScore     float64 `json:"spam_score"`
	Threat        bool    `json:"threat"`
	ThreatDetails string  `json:"threat_details"`
}

// AttachmentDetails describes an attachment of a stored message.
type AttachmentDetails struct {
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Data        string      `json:"data"`
	Size        json.Number `json:"size"`
	Hash        string      `json:"hash"`
}

// Delivery is one delivery attempt for a message.
type Delivery struct {
	ID          int64     `json:"id"`
	Status      string    `json:"status"`
	Details     string    `json:"details"`
	Output      string    `json:"output"`
	SentWithSSL bool      `json:"sent_with_ssl"`
	LogID       string    `json:"log_id"`
	Time        *float64  `json:"time"`
	Timestamp   Timestamp `json:"timestamp"`
}
