package postal

// MessageBuilder assembles a Message through chained calls:
//
//	msg := postal.NewMessage().
//		To("user@example.com").
//		From("noreply@example.com").
//		Subject("Hello").
//		Text("A test message").
//		Build()
//
// The builder performs no validation; malformed addresses are rejected by
// the Postal server.
type MessageBuilder struct {
	msg Message
}

// NewMessage returns an empty MessageBuilder.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{}
}

// To replaces the recipient list.
func (b *MessageBuilder) To(addrs ...string) *MessageBuilder {
	b.msg.To = cloneStrings(addrs)
	return b
}

// CC replaces the carbon copy list.
func (b *MessageBuilder) CC(addrs ...string) *MessageBuilder {
	b.msg.CC = cloneStrings(addrs)
	return b
}

// BCC replaces the blind carbon copy list.
func (b *MessageBuilder) BCC(addrs ...string) *MessageBuilder {
	b.msg.BCC = cloneStrings(addrs)
	return b
}

func (b *MessageBuilder) From(addr string) *MessageBuilder {
	b.msg.From = addr
	return b
}

func (b *MessageBuilder) Sender(addr string) *MessageBuilder {
	b.msg.Sender = addr
	return b
}

func (b *MessageBuilder) ReplyTo(addr string) *MessageBuilder {
	b.msg.ReplyTo = addr
	return b
}

func (b *MessageBuilder) Subject(s string) *MessageBuilder {
	b.msg.Subject = s
	return b
}

// Text sets the plain-text body.
func (b *MessageBuilder) Text(body string) *MessageBuilder {
	b.msg.PlainBody = body
	return b
}

// HTML sets the HTML body.
func (b *MessageBuilder) HTML(body string) *MessageBuilder {
	b.msg.HTMLBody = body
	return b
}

// Attachment appends an attachment.
func (b *MessageBuilder) Attachment(a Attachment) *MessageBuilder {
	b.msg.Attachments = append(b.msg.Attachments, a)
	return b
}

// Header sets a custom header, replacing any previous value for key.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	if b.msg.Headers == nil {
		b.msg.Headers = make(map[string]string)
	}
	b.msg.Headers[key] = value
	return b
}

func (b *MessageBuilder) Tag(tag string) *MessageBuilder {
	b.msg.Tag = tag
	return b
}

func (b *MessageBuilder) Bounce(bounce bool) *MessageBuilder {
	b.msg.Bounce = bounce
	return b
}

// Build returns a copy of the assembled message. Further builder calls do
// not affect messages already built.
func (b *MessageBuilder) Build() Message {
	return b.msg.clone()
}
