// Package ratelimit provides an HTTP client wrapper that retries
// rate-limited requests with exponential backoff.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Config holds retry behavior for the wrapping client.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after a 429.
	// Default: 4.
	MaxRetries int

	// BaseDelay is the initial delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 30s.
	MaxDelay time.Duration

	// Jitter randomizes each delay by ±20% to avoid retry alignment.
	Jitter bool
}

// Client performs HTTP requests, transparently retrying 429 responses.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient wraps base with retry behavior. A nil base uses a default
// client with a 15 second timeout.
func NewClient(base *http.Client, cfg Config) *Client {
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Client{httpClient: base, cfg: cfg}
}

// Do performs the request, replaying the body on each retry. Headers are
// copied onto every attempt. Responses other than 429 are returned as-is.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		var req *http.Request
		var err error
		if reader != nil {
			req, err = http.NewRequestWithContext(ctx, method, url, reader)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, url, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt >= c.cfg.MaxRetries {
			return nil, &RateLimitError{Attempts: attempt + 1}
		}

		delay := c.backoff(attempt, parseRetryAfter(resp.Header.Get("Retry-After")))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff computes the delay for a retry attempt. A server-provided
// Retry-After wins over the exponential schedule.
func (c *Client) backoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return *retryAfter
	}
	delay := c.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	if c.cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	}
	return delay
}

// RateLimitError reports exhausted retries against a rate-limited server.
type RateLimitError struct {
	Attempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

// parseRetryAfter parses a Retry-After header in either seconds or
// HTTP-date form. Returns nil when absent or malformed.
func parseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
