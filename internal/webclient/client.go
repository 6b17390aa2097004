// Package webclient provides the HTTP client shared by every call made against
// the vendor download service.
//
// The vendor gates its pages and connector API behind checks that expect a
// browser. Client sets a browser-like User-Agent on every request and lets
// callers add the other headers a browser would send (an empty Accept header
// on page loads, a Referer on link requests).
package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultUserAgent is the browser User-Agent sent with every request.
	DefaultUserAgent = "Mozilla/5.0 (X11, Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0"
)

// ErrTransport indicates a request could not be sent or no response was received.
var ErrTransport = errors.New("transport error")

// TransportError records a failed round trip.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the web client.
type Config struct {
	UserAgent string
	// Timeout bounds a whole request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient HTTPClient
}

// DefaultConfig returns a configuration with the browser User-Agent and no timeout.
func DefaultConfig() Config {
	return Config{
		UserAgent:  DefaultUserAgent,
		HTTPClient: &http.Client{},
	}
}

// Client sends browser-like GET requests. A single Client is safe for
// concurrent use and shares one connection pool.
type Client struct {
	httpClient HTTPClient
	userAgent  string
}

// New creates a Client, filling unset fields from DefaultConfig.
func New(config Config) *Client {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		httpClient: config.HTTPClient,
		userAgent:  config.UserAgent,
	}
}

// RequestOption mutates an outgoing request before it is sent.
type RequestOption func(*http.Request)

// WithEmptyAccept sends "Accept: " with an empty value. The vendor only
// serves its non-JS fallback markup, and only marks gate sessions, when the
// header is present but empty.
func WithEmptyAccept() RequestOption {
	return func(req *http.Request) {
		req.Header["Accept"] = []string{""}
	}
}

// WithReferer sets the Referer header.
func WithReferer(referer string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set("Referer", referer)
	}
}

// Get sends a GET request and returns the response with an unread body.
// Callers must close the body. Non-2xx statuses are not errors here; each
// caller decides what a status means for its step of the protocol.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	return resp, nil
}
