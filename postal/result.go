package postal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Envelope statuses returned by Postal.
const (
	statusSuccess        = "success"
	statusError          = "error"
	statusParameterError = "parameter-error"
)

// envelope is the wrapper around every Postal API response.
type envelope struct {
	Status string          `json:"status"`
	Time   float64         `json:"time"`
	Flags  map[string]any  `json:"flags"`
	Data   json.RawMessage `json:"data"`
}

// ErrorDetail is the code/message pair Postal uses to describe failures.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageID identifies a single message on the Postal server. It is
// used to look up details and deliveries.
type MessageID int64

// UnmarshalJSON accepts JSON numbers and numeric strings. Integral floats
// such as 42.0 are accepted too; fractional ids are rejected.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return fmt.Errorf("invalid message id %q: %w", data, err)
		}
		n = int64(f)
	}
	*id = MessageID(n)
	return nil
}

func (id MessageID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseMessageID parses a decimal message id.
func ParseMessageID(s string) (MessageID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postal: invalid message id %q: %w", s, err)
	}
	return MessageID(n), nil
}

// Recipient is Postal's acknowledgment for one recipient of a send request.
type Recipient struct {
	ID    MessageID    `json:"id"`
	Token string       `json:"token"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// SendResult is the server's acknowledgment of a send request. It does not
// confirm delivery; use Client.Details or Client.Deliveries for that.
type SendResult struct {
	// MessageID is the Message-ID header value assigned by Postal.
	MessageID string `json:"message_id"`
	// Messages maps each recipient address to its message id and token.
	Messages map[string]Recipient `json:"messages"`
}

// Recipients returns the acknowledged recipient addresses in sorted order.
func (r *SendResult) Recipients() []string {
	out := make([]string, 0, len(r.Messages))
	for addr := range r.Messages {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Timestamp is a point in time encoded by Postal as float unix seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes float seconds; null leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return nil
}

// MarshalJSON encodes the time as float unix seconds, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	secs := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return json.Marshal(secs)
}
