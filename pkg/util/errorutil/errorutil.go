package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error taxonomy shared by the pipeline. Wrap with %w and test with errors.Is.
var (
	// ErrTransientIO marks knowledge store or inference failures that may succeed on retry.
	ErrTransientIO = errors.New("transient io failure")
	// ErrInvariantViolation marks a broken data invariant. Processing of the ticket halts.
	ErrInvariantViolation = errors.New("data invariant violation")
	// ErrConfiguration marks missing or invalid startup configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
		Err:        ErrNotFound,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvariantViolation reports a broken invariant for operator investigation.
func NewInvariantViolation(message string, details map[string]any) error {
	return &DomainError{
		Code:       "INVARIANT_VIOLATION",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
		Err:        ErrInvariantViolation,
	}
}

// Transient wraps err so that errors.Is(err, ErrTransientIO) holds.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientIO, err)
}

// Configuration builds a configuration error for the named setting.
func Configuration(setting, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, setting, fmt.Sprintf(format, args...))
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return &DomainError{
			Code:       "NOT_FOUND",
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Err:        err,
		}
	}
	if errors.Is(err, ErrTransientIO) {
		return &DomainError{
			Code:       "DEPENDENCY_UNAVAILABLE",
			Message:    "dependency unavailable",
			HTTPStatus: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts err to a *DomainError, keeping nil as nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
