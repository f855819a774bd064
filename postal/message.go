package postal

import (
	"encoding/base64"
)

// Message is an outbound email in the shape expected by the
// /api/v1/send/message endpoint. Build one with NewMessage or fill the
// fields directly.
type Message struct {
	// To holds the recipient addresses (Postal accepts up to 50).
	To []string `json:"to,omitempty"`
	// CC holds carbon copy addresses (max 50).
	CC []string `json:"cc,omitempty"`
	// BCC holds blind carbon copy addresses (max 50).
	BCC []string `json:"bcc,omitempty"`
	// From is the address for the From header.
	From string `json:"from,omitempty"`
	// Sender is the address for the Sender header.
	Sender string `json:"sender,omitempty"`
	// ReplyTo sets the Reply-To header.
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject,omitempty"`
	// Tag is an optional label used to group messages in Postal.
	Tag         string            `json:"tag,omitempty"`
	PlainBody   string            `json:"plain_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	// Bounce marks the message as a bounce.
	Bounce bool `json:"bounce,omitempty"`
}

// Validate reports ErrNoBody when neither body format is set. Send does not
// call it; the Postal server performs its own validation.
func (m Message) Validate() error {
	if m.PlainBody == "" && m.HTMLBody == "" {
		return ErrNoBody
	}
	return nil
}

// clone returns a deep copy of m.
func (m Message) clone() Message {
	out := m
	out.To = cloneStrings(m.To)
	out.CC = cloneStrings(m.CC)
	out.BCC = cloneStrings(m.BCC)
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	if m.Headers != nil {
		out.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Attachment is a file attached to a Message. Data is base64 encoded.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// NewAttachment base64-encodes raw and returns it as an Attachment.
func NewAttachment(name, contentType string, raw []byte) Attachment {
	return Attachment{
		Name:        name,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(raw),
	}
}

// Decode returns the raw attachment bytes.
func (a Attachment) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// RawMessage is a pre-formatted RFC 2822 message accepted by the
// /api/v1/send/raw endpoint along with its envelope.
type RawMessage struct {
	// MailFrom is the address logged as the sender of the message.
	MailFrom string `json:"mail_from"`
	// RcptTo lists the addresses the message is delivered to.
	RcptTo []string `json:"rcpt_to"`
	// Data is the base64 encoded RFC 2822 message.
	Data   string `json:"data"`
	Bounce bool   `json:"bounce,omitempty"`
}

// NewRawMessage builds a RawMessage from an unencoded RFC 2822 message.
func NewRawMessage(from string, to []string, rfc2822 []byte) RawMessage {
	return RawMessage{
		MailFrom: from,
		RcptTo:   cloneStrings(to),
		Data:     base64.StdEncoding.EncodeToString(rfc2822),
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
