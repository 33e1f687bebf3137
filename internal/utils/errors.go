package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the id or use 'dayplan list' to see all tasks",
	}
}

// ErrNotLoggedIn returns an error for account-only operations in guest mode.
func ErrNotLoggedIn() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not logged in"),
		Suggestion: "Run 'dayplan login <server-url> <account>' to connect to a server",
	}
}

// ErrServerUnreachable returns an error when the server cannot be reached,
// with a suggestion matched to the failure.
func ErrServerUnreachable(reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server unreachable: %s", reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidPriority returns an error for an invalid priority value.
func ErrInvalidPriority(priority string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority: %s", priority),
		Suggestion: "Priority must be LOW, MEDIUM, or HIGH",
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15)",
	}
}

// ErrInvalidTime returns an error for an invalid time string.
func ErrInvalidTime(timeStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid time: %s", timeStr),
		Suggestion: "Use 24-hour time format HH:MM (e.g., 14:30)",
	}
}

// ErrAuthenticationFailed returns an error when the server rejects the token.
func ErrAuthenticationFailed() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("authentication failed"),
		Suggestion: "The token may have been revoked. Run 'dayplan login' again",
	}
}

// ErrPushNotConfigured returns an error when VAPID keys are missing.
func ErrPushNotConfigured() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("push is not configured"),
		Suggestion: "Set server.vapid_public_key and server.vapid_private_key in your config file",
	}
}
