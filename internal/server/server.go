// Package server implements the HTTP API the clients and the push
// dispatcher revolve around: bearer-token task CRUD, the push
// subscription registry, the public push-configuration probe, and the
// health endpoint the connectivity monitor hits.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dayplan/backend"
	"dayplan/backend/sqlite"
	"dayplan/internal/utils"
)

// Server routes API requests onto the store.
type Server struct {
	store         *sqlite.Store
	pushPublicKey string
	log           *utils.Logger
	mux           *http.ServeMux
}

// New builds the server and its routes. pushPublicKey may be empty,
// which the push-config probe reports as push being unavailable.
func New(store *sqlite.Store, pushPublicKey string) *Server {
	s := &Server{
		store:         store,
		pushPublicKey: pushPublicKey,
		log:           utils.GetLogger(),
		mux:           http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/push/config", s.handlePushConfig)
	s.mux.Handle("GET /api/tasks", s.auth(s.handleListTasks))
	s.mux.Handle("POST /api/tasks", s.auth(s.handleCreateTask))
	s.mux.Handle("PATCH /api/tasks/{id}", s.auth(s.handleUpdateTask))
	s.mux.Handle("DELETE /api/tasks/{id}", s.auth(s.handleDeleteTask))
	s.mux.Handle("POST /api/subscriptions", s.auth(s.handleAddSubscription))
	s.mux.Handle("DELETE /api/subscriptions", s.auth(s.handleRemoveSubscription))
	return s
}

// Handler returns the routed handler, for ListenAndServe and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the server until the context is canceled, then
// drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(drainCtx)
	}
}

type accountKey struct{}

// auth resolves the bearer token to an account and stashes it in the
// request context.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		acct, err := s.store.AccountByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			s.log.Error("token lookup failed: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, acct)
		next(w, r.WithContext(ctx))
	})
}

func requestAccount(r *http.Request) sqlite.Account {
	acct, _ := r.Context().Value(accountKey{}).(sqlite.Account)
	return acct
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePushConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    s.pushPublicKey != "",
		"public_key": s.pushPublicKey,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	tasks, err := s.store.ListTasks(r.Context(), acct.ID)
	if err != nil {
		s.fail(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []backend.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	var task backend.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "malformed task payload")
		return
	}
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.CreateTask(r.Context(), acct.ID, task)
	if err != nil {
		s.fail(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var patch backend.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed patch payload")
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.store.UpdateTask(r.Context(), acct.ID, id, patch)
	if errors.Is(err, backend.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.fail(w, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	err = s.store.DeleteTask(r.Context(), acct.ID, id)
	if errors.Is(err, backend.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.fail(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	var sub backend.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed subscription payload")
		return
	}
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.AddSubscription(r.Context(), acct.ID, sub)
	if err != nil {
		s.fail(w, "add subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	acct := requestAccount(r)
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint query parameter required")
		return
	}
	if err := s.store.RemoveSubscriptionByEndpoint(r.Context(), acct.ID, endpoint); err != nil {
		s.fail(w, "remove subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.log.Error("failed to %s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
