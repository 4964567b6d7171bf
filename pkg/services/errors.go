// Package services provides the application operations behind the API, the
// CLI and the worker.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/mintflow/pkg/minting"
	"github.com/dukex/mintflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidStatus  = errors.New("invalid session status")

	// Lookup Errors (404 Not Found).
	ErrTransactionNotFound = errors.New("transaction not found")

	// Upstream Errors (502 Bad Gateway).
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
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
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, persistence.ErrInvalidSession)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, minting.ErrAlreadyMinted) ||
		errors.Is(err, minting.ErrPreMintIncomplete) ||
		errors.Is(err, minting.ErrWindowLapsed) ||
		errors.Is(err, minting.ErrSessionBusy) ||
		errors.Is(err, persistence.ErrSessionExists) ||
		errors.Is(err, persistence.ErrVersionConflict)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsSessionNotFound(err) || errors.Is(err, ErrTransactionNotFound)
}

// IsUpstreamError checks if an error was caused by the ledger node or the indexer.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
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
