// Package postal is a client for the HTTP API of the Postal mail server
// (https://docs.postalserver.io).
//
//	client, err := postal.New("https://postal.example.com", os.Getenv("POSTAL_TOKEN"))
//	if err != nil {
//		return err
//	}
//	msg := postal.NewMessage().
//		To("user@example.com").
//		From("noreply@example.com").
//		Subject("Hello World").
//		Text("A test message").
//		Build()
//	res, err := client.Send(ctx, msg)
//
// A Client holds only its base address and API token and is safe for
// concurrent use. No retries are attempted and no timeout is imposed;
// callers own both through the context they pass in.
package postal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// APIKeyHeader carries the server API key on every request.
const APIKeyHeader = "X-Server-API-Key"

// Endpoint paths, relative to the base address.
const (
	pathSendMessage = "/api/v1/send/message"
	pathSendRaw     = "/api/v1/send/raw"
	pathMessage     = "/api/v1/messages/message"
	pathDeliveries  = "/api/v1/messages/deliveries"
)

type requestIDKey struct{}

// ContextWithRequestID returns a copy of ctx whose requests carry id in the
// X-Request-ID header. Without it every request gets a fresh UUID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// Client talks to a single Postal server with a single API key.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
	log        zerolog.Logger
}

// New creates a Client for the Postal server at address. The address must
// be an absolute http or https URL; the server is not contacted.
func New(address, token string, opts ...Option) (*Client, error) {
	base, err := parseAddress(address)
	if err != nil {
		return nil, &ConfigurationError{Address: address, Err: err}
	}

	c := &Client{
		baseURL:    base,
		token:      token,
		httpClient: noRedirects(http.DefaultClient),
		userAgent:  DefaultUserAgent,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("address is empty")
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send submits a message through /api/v1/send/message.
func (c *Client) Send(ctx context.Context, msg Message) (*SendResult, error) {
	var res SendResult
	if err := c.post(ctx, pathSendMessage, msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendRaw submits a pre-formatted RFC 2822 message through /api/v1/send/raw.
func (c *Client) SendRaw(ctx context.Context, msg RawMessage) (*SendResult, error) {
	var res SendResult
	if err := c.post(ctx, pathSendRaw, msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Details fetches a message record. The sections included in the reply
// are selected by interest.
func (c *Client) Details(ctx context.Context, interest DetailsInterest) (*MessageDetails, error) {
	var details MessageDetails
	if err := c.post(ctx, pathMessage, interest, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Deliveries lists the delivery attempts for a message.
func (c *Client) Deliveries(ctx context.Context, id MessageID) ([]Delivery, error) {
	var deliveries []Delivery
	payload := map[string]MessageID{"id": id}
	if err := c.post(ctx, pathDeliveries, payload, &deliveries); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// post sends payload as JSON to path and decodes the envelope data into out.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postal: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("postal: failed to create request: %w", err)
	}
	requestID := requestIDFrom(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set(APIKeyHeader, c.token)

	log := c.log.With().Str("request_id", requestID).Str("path", path).Logger()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Dur("duration", time.Since(start)).Msg("postal request failed")
		return &TransportError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug().Err(err).Int("status", resp.StatusCode).Msg("postal response read failed")
		return &TransportError{Op: "read " + path, Err: err}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(body)).
		Msg("postal request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, body)
	}

	return decodeEnvelope(resp.StatusCode, body, out)
}

func decodeEnvelope(statusCode int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &DecodeError{StatusCode: statusCode, Body: body, Err: err}
	}

	switch env.Status {
	case statusSuccess:
		if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
			return &DecodeError{StatusCode: statusCode, Body: body, Err: errors.New("missing data")}
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &DecodeError{StatusCode: statusCode, Body: body, Err: err}
		}
		return nil
	case statusError, statusParameterError:
		apiErr := &APIError{StatusCode: statusCode}
		var detail ErrorDetail
		var msg string
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &detail) == nil {
			apiErr.Code = detail.Code
			apiErr.Message = detail.Message
		} else if json.Unmarshal(env.Data, &msg) == nil {
			apiErr.Message = msg
		}
		if apiErr.Code == "" && env.Status == statusParameterError {
			apiErr.Code = "ParameterError"
		}
		if apiErr.Message == "" {
			apiErr.Message = env.Status
		}
		return apiErr
	default:
		return &DecodeError{
			StatusCode: statusCode,
			Body:       body,
			Err:        fmt.Errorf("unexpected response status %q", env.Status),
		}
	}
}
