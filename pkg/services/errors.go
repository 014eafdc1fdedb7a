// Package services provides the submission façade used by the HTTP boundary and its error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrEmptyUser        = errors.New("user cannot be empty")
	ErrNoHandler        = handlers.ErrNoHandler
	ErrCopyNotSupported = errors.New("resource cannot be copied")

	// Lookup Errors (404 Not Found).
	ErrExecutionNotFound = persistence.ErrExecutionRequestNotFound
	ErrResourceNotFound  = persistence.ErrResourceNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	var validation *handlers.ValidationError

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyUser) ||
		errors.Is(err, ErrNoHandler) ||
		errors.Is(err, ErrCopyNotSupported) ||
		errors.As(err, &validation)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// Code returns the API error code carried by err, or fallback.
func Code(err error, fallback string) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	return fallback
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
