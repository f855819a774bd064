package postal

import (
	"net/http"

	"github.com/rs/zerolog"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "postal-go/0.1"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. A nil client is
// ignored. The client is copied and never follows redirects, so the API key
// is only sent to the configured address. No timeout is applied by the
// library; pass a context with a deadline or a client with Timeout set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = noRedirects(hc)
		}
	}
}

// noRedirects returns a copy of hc that hands 3xx responses back to the
// caller instead of following them.
func noRedirects(hc *http.Client) *http.Client {
	cp := *hc
	cp.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cp
}

// WithLogger sets the logger used for per-request debug events.
// Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l.With().Str("component", "postal").Logger()
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
