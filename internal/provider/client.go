package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/acme/voice-sales-agent/internal/domain"
)

const maxResponseBody = 1 << 20

// Client is a minimal JSON REST client shared by the vendor adapters.
// Every request inherits the configured timeout so a stuck vendor cannot
// hold a worker slot indefinitely.
type Client struct {
	vendor  domain.Vendor
	baseURL string
	http    *http.Client
	headers map[string]string
}

func NewClient(vendor domain.Vendor, baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		vendor:  vendor,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// PostJSON sends body as JSON and decodes a 2xx response into out.
// Non-2xx responses become a *Error carrying the status and body.
func (c *Client) PostJSON(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, body, out)
}

// GetJSON fetches path and decodes a 2xx response into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Vendor: c.vendor, Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Vendor: c.vendor, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Vendor: c.vendor, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &Error{Vendor: c.vendor, Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Vendor: c.vendor, Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Vendor: c.vendor, Op: op, Err: err}
		}
	}
	return nil
}
