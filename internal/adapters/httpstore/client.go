// Package httpstore implements domain.RecordStore against a remote tasklist
// server's /api/todos surface.
package httpstore

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

	"tasklist/internal/adapters/events"
	"tasklist/pkg/domain"
)

var _ domain.RecordStore = (*Client)(nil)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 15 * time.Second

// Client speaks JSON to a tasklist server on behalf of the principal passed
// to each call. The principal's Token is sent as a bearer credential.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New parses baseURL (for example http://localhost:8080) and returns a client.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	c := &Client{base: u, http: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type wireRequest struct {
	ID        string  `json:"id,omitempty"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// List fetches the principal's records, newest first.
func (c *Client) List(ctx context.Context, p domain.Principal) ([]domain.Record, error) {
	var out []domain.Record
	if err := c.do(ctx, p, http.MethodGet, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Record{}
	}
	return out, nil
}

// Create posts a new record.
func (c *Client) Create(ctx context.Context, p domain.Principal, text string) (domain.Record, error) {
	var out domain.Record
	err := c.do(ctx, p, http.MethodPost, wireRequest{Text: &text}, &out)
	return out, err
}

// UpdateFields uses PUT for text edits and PATCH for completion toggles.
func (c *Client) UpdateFields(ctx context.Context, p domain.Principal, id string, fields domain.Fields) (domain.Record, error) {
	method := http.MethodPatch
	if fields.Text != nil {
		method = http.MethodPut
	}
	var out domain.Record
	err := c.do(ctx, p, method, wireRequest{ID: id, Text: fields.Text, Completed: fields.Completed}, &out)
	return out, err
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, p domain.Principal, id string) error {
	return c.do(ctx, p, http.MethodDelete, wireRequest{ID: id}, nil)
}

// Watch streams the principal's change events until ctx ends.
func (c *Client) Watch(ctx context.Context, p domain.Principal, fn func(domain.Change)) error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/todos/events"
	return events.Watch(ctx, u.String(), p.Token, fn)
}

func (c *Client) endpoint() string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/todos"
	return u.String()
}

func (c *Client) do(ctx context.Context, p domain.Principal, method string, body any, out any) error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(), rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Unavailable(method+" /api/todos", err)
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Unavailable(method+" /api/todos", err)
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return domain.Unavailable("decode response", err)
	}
	return nil
}

// statusError maps a non-success response back onto the domain taxonomy.
func statusError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(payload, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidationFailed, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	default:
		return domain.Unavailable(fmt.Sprintf("server status %d", status), errors.New(msg))
	}
}
