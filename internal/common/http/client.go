// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"
)

// Client is a thin wrapper that stamps default headers on every outgoing request.
type Client struct {
	httpClient *http.Client
	headers    http.Header
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: http.Header{},
	}
}

// WithHeader returns the client after registering a header sent with every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers.Set(key, value)
	return c
}

// WithTransport swaps the underlying transport, mostly for tests.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.httpClient.Transport = rt
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for key, values := range c.headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}
