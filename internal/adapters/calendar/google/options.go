package google

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL points the client at another Calendar API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithEndpoint overrides the OAuth endpoints.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(c *Client) {
		c.oauth.Endpoint = ep
	}
}

// WithHTTPClient sets the transport used for token and API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each Events call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxPages caps pagination.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}
