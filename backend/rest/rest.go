// Package rest implements the HTTP client for the dayplan server API:
// task CRUD, the push-subscription registry, and the public push
// configuration probe.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dayplan/backend"
	"dayplan/internal/ratelimit"
)

// Client talks to a dayplan server. The zero value is not usable; use New.
type Client struct {
	baseURL string
	token   string
	http    *ratelimit.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = ratelimit.NewClient(hc, ratelimit.Config{Jitter: true})
	}
}

// New creates a client for the server at baseURL. token may be empty for
// the unauthenticated endpoints (push config, health).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: ratelimit.NewClient(&http.Client{Timeout: 15 * time.Second},
			ratelimit.Config{Jitter: true}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a request with auth and content headers and maps error
// status codes onto the shared sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, method, c.baseURL+path, header, body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		_ = resp.Body.Close()
		return nil, backend.ErrUnauthorized
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, backend.ErrNotFound
	case http.StatusBadRequest:
		msg := readErrorMessage(resp.Body)
		_ = resp.Body.Close()
		return nil, &backend.ValidationError{Field: "request", Reason: msg}
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return resp, nil
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "rejected by server"
}

func decodeTask(r io.Reader) (backend.Task, error) {
	var t backend.Task
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return backend.Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	return t, nil
}

// CreateTask implements backend.TaskService.
func (c *Client) CreateTask(ctx context.Context, task backend.Task) (backend.Task, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/tasks", task)
	if err != nil {
		return backend.Task{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeTask(resp.Body)
}

// UpdateTask implements backend.TaskService.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch backend.Patch) (backend.Task, error) {
	resp, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", id), patch)
	if err != nil {
		return backend.Task{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeTask(resp.Body)
}

// DeleteTask implements backend.TaskService.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// ListTasks implements backend.TaskService.
func (c *Client) ListTasks(ctx context.Context) ([]backend.Task, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tasks", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var tasks []backend.Task
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task list: %w", err)
	}
	return tasks, nil
}

// RegisterSubscription registers a push subscription for the account.
func (c *Client) RegisterSubscription(ctx context.Context, sub backend.Subscription) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/subscriptions", sub)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// UnregisterSubscription removes the subscription for an endpoint.
func (c *Client) UnregisterSubscription(ctx context.Context, endpoint string) error {
	path := "/api/subscriptions?endpoint=" + url.QueryEscape(endpoint)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// PushConfig is the public push configuration probe result.
type PushConfig struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"public_key,omitempty"`
}

// GetPushConfig reports whether push is server-configured and the public
// key material needed to create a browser subscription.
func (c *Client) GetPushConfig(ctx context.Context) (PushConfig, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/push/config", nil)
	if err != nil {
		return PushConfig{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var cfg PushConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return PushConfig{}, fmt.Errorf("failed to decode push config: %w", err)
	}
	return cfg, nil
}

// Ping probes server reachability. Used by the connectivity monitor.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Verify interface compliance at compile time.
var _ backend.TaskService = (*Client)(nil)
