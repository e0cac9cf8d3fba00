// Package sender posts console events to a relay the way the console
// homebrew does. It backs the send and simulate commands.
package sender

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

const DefaultTimeout = 5 * time.Second

// Response is the relay's answer to one webhook.
type Response struct {
	StatusCode      int    `json:"-"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	ClientsNotified int    `json:"clientsNotified"`
	Clients         int    `json:"clients"`
}

type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithInsecureTLS skips certificate verification, for relays behind self-signed certs.
func WithInsecureTLS() Option {
	return func(c *resty.Client) {
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in for local testing
	}
}

func WithUserAgent(ua string) Option {
	return func(c *resty.Client) { c.SetHeader("User-Agent", ua) }
}

func New(opts ...Option) *Client {
	hc := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "switchrelay-sender/1.0")
	for _, o := range opts {
		o(hc)
	}
	return &Client{http: hc}
}

// Send posts p to url. Transport failures and non-2xx answers come back as *Error.
func (c *Client) Send(ctx context.Context, url string, p event.Payload) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		Post(url)
	if err != nil {
		return nil, classify(url, err)
	}

	out := &Response{StatusCode: resp.StatusCode()}
	_ = json.Unmarshal(resp.Body(), out)
	if resp.IsError() {
		return out, &Error{Kind: KindHTTP, URL: url, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 500)}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
