package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Config{MaxRetries: 4, BaseDelay: time.Millisecond})
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Config{MaxRetries: 2, BaseDelay: time.Millisecond})
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
}

func TestNonRateLimitPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("headers not forwarded")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	c := NewClient(srv.Client(), Config{})
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, h, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 5xx is not retried here; transient handling is the caller's concern.
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("2"); d == nil || *d != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %v", d)
	}
	if d := parseRetryAfter(""); d != nil {
		t.Errorf("parseRetryAfter(empty) = %v", d)
	}
	if d := parseRetryAfter("-1"); d != nil {
		t.Errorf("parseRetryAfter(-1) = %v", d)
	}
}
