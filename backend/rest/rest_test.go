package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dayplan/backend"
)

func TestCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var task backend.Task
		_ = json.NewDecoder(r.Body).Decode(&task)
		task.ID = backend.RemoteID(7)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(task)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithHTTPClient(srv.Client()))
	created, err := c.CreateTask(context.Background(), backend.Task{Title: "Pay rent", Priority: backend.PriorityLow})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id, ok := created.ID.Remote(); !ok || id != 7 {
		t.Errorf("created id = %v", created.ID)
	}
	if created.Title != "Pay rent" {
		t.Errorf("created title = %s", created.Title)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", backend.IsAuthError},
		{"not found", http.StatusNotFound, "", func(err error) bool { return errors.Is(err, backend.ErrNotFound) }},
		{"validation", http.StatusBadRequest, `{"error":"title must not be empty"}`, backend.IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "tok", WithHTTPClient(srv.Client()))
			_, err := c.UpdateTask(context.Background(), 1, backend.Patch{})
			if err == nil || !tt.check(err) {
				t.Errorf("error = %v, fails classification", err)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	want := []backend.Task{
		{ID: backend.RemoteID(1), Title: "a", DueDate: "2026-03-01", DueTime: "09:00"},
		{ID: backend.RemoteID(2), Title: "b"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithHTTPClient(srv.Client()))
	got, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 2 || got[0].Title != "a" {
		t.Errorf("tasks = %+v", got)
	}
	if id, ok := got[0].ID.Remote(); !ok || id != 1 {
		t.Errorf("task id did not survive the wire: %v", got[0].ID)
	}
}

func TestGetPushConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/push/config" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(PushConfig{Enabled: true, PublicKey: "pub"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithHTTPClient(srv.Client()))
	cfg, err := c.GetPushConfig(context.Background())
	if err != nil {
		t.Fatalf("GetPushConfig: %v", err)
	}
	if !cfg.Enabled || cfg.PublicKey != "pub" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestUnregisterSubscriptionEncodesEndpoint(t *testing.T) {
	var gotEndpoint string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEndpoint = r.URL.Query().Get("endpoint")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithHTTPClient(srv.Client()))
	err := c.UnregisterSubscription(context.Background(), "https://push.example/ep?x=1")
	if err != nil {
		t.Fatalf("UnregisterSubscription: %v", err)
	}
	if gotEndpoint != "https://push.example/ep?x=1" {
		t.Errorf("endpoint = %s", gotEndpoint)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithHTTPClient(srv.Client()))
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
