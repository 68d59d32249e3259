// Package errors provides the standardized error taxonomy shared by the store, lifecycle and API layers.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeVersionConflict   ErrorCode = "VERSION_CONFLICT"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeTransport         ErrorCode = "TRANSPORT_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateUser     ErrorCode = "DUPLICATE_USER"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	// Source is SourceBackend when the dataset backend raised the error.
	Source string `json:"source,omitempty"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is reports whether target carries the same error code, so sentinels below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns the error with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// SourceBackend marks errors raised by the dataset backend rather than by the caller's request.
const SourceBackend = "backend"

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &StandardError{Code: ErrCodeNotFound}
	ErrUnauthorized      = &StandardError{Code: ErrCodeUnauthorized}
	ErrForbidden         = &StandardError{Code: ErrCodeForbidden}
	ErrVersionConflict   = &StandardError{Code: ErrCodeVersionConflict}
	ErrValidation        = &StandardError{Code: ErrCodeValidation}
	ErrTransport         = &StandardError{Code: ErrCodeTransport}
	ErrInvalidTransition = &StandardError{Code: ErrCodeInvalidTransition}
	ErrDuplicateUser     = &StandardError{Code: ErrCodeDuplicateUser}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewNotFoundError creates a non-retryable error for a missing dataset or application.
func NewNotFoundError(resource, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError creates a non-retryable credential error.
func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Unauthorized",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewForbiddenError creates a non-retryable ownership error.
func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Forbidden",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewVersionConflictError creates a retryable error for a write carrying a stale version token.
func NewVersionConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeVersionConflict,
		Message:   "Dataset was modified concurrently",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable error for a missing or malformed field.
func NewValidationError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError wraps a network or backing-store failure.
func NewTransportError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("Store %s failed", operation),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidTransitionError creates a guard violation error for the application state machine.
func NewInvalidTransitionError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateUserError creates a non-retryable signup error.
func NewDuplicateUserError(email string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateUser,
		Message:   "Email already exists",
		Details:   fmt.Sprintf("email: %s", email),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates an error for throttled callers.
func NewRateLimitedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stdErrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// FromBackend tags err as raised by the dataset backend. The code is kept, so
// errors.Is keeps matching; only the HTTP status changes.
func FromBackend(err error) error {
	if err == nil {
		return nil
	}
	tagged := *Normalize(err)
	tagged.Source = SourceBackend
	return &tagged
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	return Normalize(err).Code
}

// GetRetryCount returns how many times the store retries an error before surfacing it.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeVersionConflict:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// HTTPStatus maps an error code to the status returned by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeVersionConflict, ErrCodeInvalidTransition, ErrCodeDuplicateUser:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the status for err. A backend failure says nothing about the
// caller's request, so anything but a version conflict answers 500.
func StatusOf(err *StandardError) int {
	if err.Source == SourceBackend && err.Code != ErrCodeVersionConflict {
		return http.StatusInternalServerError
	}
	return HTTPStatus(err.Code)
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTHORIZED") || strings.Contains(codeStr, "FORBIDDEN") || strings.Contains(codeStr, "RATE"):
		return "AUTH"
	case strings.Contains(codeStr, "CONFLICT") || strings.Contains(codeStr, "TRANSPORT"):
		return "STORE"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "DUPLICATE"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
