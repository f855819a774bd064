package postal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoBody is returned by Message.Validate when neither a plain-text nor an
// HTML body is set.
var ErrNoBody = errors.New("postal: message has no plain or html body")

// ConfigurationError is returned by New when the base address is unusable.
type ConfigurationError struct {
	Address string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("postal: invalid server address %q: %v", e.Address, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError is returned when a request could not be completed: DNS,
// TLS, connection resets, context cancellation and body read failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("postal: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is returned when a successful response body does not match the
// expected JSON shape.
type DecodeError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("postal: failed to decode response (status %d): %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// APIError represents an error reported by the Postal server, either through
// a non-2xx status or through an "error" envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postal: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("postal: API error %d: %s", e.StatusCode, e.Message)
}

// IsAPIError checks whether err is (or wraps) an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// errorBody covers the error shapes seen in front of and from Postal:
// the native envelope, {"error": "..."}, {"error": {...}} and {"message": "..."}.
type errorBody struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if len(eb.Data) > 0 {
			var detail ErrorDetail
			if json.Unmarshal(eb.Data, &detail) == nil && detail.Message != "" {
				apiErr.Code = detail.Code
				apiErr.Message = detail.Message
				return apiErr
			}
		}
		if len(eb.Error) > 0 {
			var msg string
			if json.Unmarshal(eb.Error, &msg) == nil && msg != "" {
				apiErr.Message = msg
				return apiErr
			}
			var detail ErrorDetail
			if json.Unmarshal(eb.Error, &detail) == nil && detail.Message != "" {
				apiErr.Code = detail.Code
				apiErr.Message = detail.Message
				return apiErr
			}
		}
		if eb.Message != "" {
			apiErr.Message = eb.Message
			return apiErr
		}
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
