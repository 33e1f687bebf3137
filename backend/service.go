package backend

import (
	"context"
	"errors"
	"fmt"
)

// TaskService is the task CRUD API the sync core replays operations
// against. All calls require an authenticated session; unauthenticated
// calls fail with ErrUnauthorized.
type TaskService interface {
	// CreateTask stores a new task and returns it with a server-assigned id.
	CreateTask(ctx context.Context, task Task) (Task, error)

	// UpdateTask applies a partial field change to an existing task.
	UpdateTask(ctx context.Context, id int64, patch Patch) (Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id int64) error

	// ListTasks returns all tasks for the authenticated caller, ordered by
	// due date, then due time, then creation order.
	ListTasks(ctx context.Context) ([]Task, error)
}

// Sentinel errors shared by every TaskService implementation.
var (
	// ErrUnauthorized indicates a missing or expired session. Callers
	// surface it to the user and never retry automatically.
	ErrUnauthorized = errors.New("unauthorized: no valid session")

	// ErrNotFound indicates the addressed task does not exist.
	ErrNotFound = errors.New("task not found")
)

// IsAuthError reports whether err is an authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ValidationError marks input rejected before any mutation was attempted.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err rejects malformed input.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ErrEmptyTitle returns a validation error for a missing title.
func ErrEmptyTitle() error {
	return &ValidationError{Field: "title", Reason: "must not be empty"}
}

// ErrInvalidDate returns a validation error for a malformed due date.
func ErrInvalidDate(v string) error {
	return &ValidationError{Field: "due date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", v)}
}

// ErrInvalidTime returns a validation error for a malformed due time.
func ErrInvalidTime(v string) error {
	return &ValidationError{Field: "due time", Reason: fmt.Sprintf("%q is not an HH:MM time", v)}
}

// ErrInvalidPriority returns a validation error for an unknown priority.
func ErrInvalidPriority(v string) error {
	return &ValidationError{Field: "priority", Reason: fmt.Sprintf("%q is not one of LOW, MEDIUM, HIGH", v)}
}
