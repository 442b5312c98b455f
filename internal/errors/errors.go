package errors

import (
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Codes identify error kinds across logs and Sentry tags.
const (
	CodeInvalidValue     = "E100"
	CodeInvalidKey       = "E101"
	CodeStorage          = "E200"
	CodeUnauthenticated  = "E401"
	CodeMethodNotAllowed = "E405"
	CodeConflict         = "E409"
	CodeRateLimited      = "E429"
	CodeInternal         = "E500"
)

// AppError carries the internal message, the client-safe message and the HTTP status of a failure.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	Status      int
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is matches two AppErrors by code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

var (
	// ErrInvalidKey is the sentinel matched by errors.Is for rejected setting keys.
	ErrInvalidKey = &AppError{Code: CodeInvalidKey}
	// ErrInvalidValue is the sentinel matched by errors.Is for rejected setting values.
	ErrInvalidValue = &AppError{Code: CodeInvalidValue}
	// ErrStorage is the sentinel matched by errors.Is for persistence failures.
	ErrStorage = &AppError{Code: CodeStorage}
	// ErrUnauthenticated is the sentinel matched by errors.Is for missing sessions.
	ErrUnauthenticated = &AppError{Code: CodeUnauthenticated}
)

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeInvalidValue,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
		Status:      http.StatusBadRequest,
	}
}

func NewInvalidKeyError(key string) *AppError {
	return &AppError{
		Code:        CodeInvalidKey,
		Message:     fmt.Sprintf("unknown setting key %q", key),
		UserMessage: "Invalid setting",
		Severity:    SeverityLow,
		Retryable:   false,
		Status:      http.StatusBadRequest,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStorage,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Database error",
		Severity:    SeverityHigh,
		Retryable:   true,
		Status:      http.StatusInternalServerError,
		cause:       cause,
	}
}

func NewUnauthenticatedError() *AppError {
	return &AppError{
		Code:        CodeUnauthenticated,
		Message:     "request without an active session",
		UserMessage: "Not authenticated",
		Severity:    SeverityLow,
		Status:      http.StatusUnauthorized,
	}
}

func NewMethodNotAllowedError(method string) *AppError {
	return &AppError{
		Code:        CodeMethodNotAllowed,
		Message:     fmt.Sprintf("method %s not allowed", method),
		UserMessage: "Method not allowed",
		Severity:    SeverityLow,
		Status:      http.StatusMethodNotAllowed,
	}
}

func NewConflictError(msg string) *AppError {
	return &AppError{
		Code:        CodeConflict,
		Message:     msg,
		UserMessage: "Request in progress",
		Severity:    SeverityLow,
		Retryable:   true,
		Status:      http.StatusConflict,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimited,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: "Too many requests",
		Severity:    SeverityLow,
		Retryable:   false,
		Status:      http.StatusTooManyRequests,
	}
}

func NewInternalError(cause error) *AppError {
	return &AppError{
		Code:        CodeInternal,
		Message:     fmt.Sprintf("internal error: %v", cause),
		UserMessage: "Internal error",
		Severity:    SeverityCritical,
		Status:      http.StatusInternalServerError,
		cause:       cause,
	}
}
