// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation       = errors.New("validation error")
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidSubjectID = errors.New("invalid subject id")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyValue       = errors.New("value cannot be empty")
	ErrNegativeValue    = errors.New("value cannot be negative")
	ErrFutureTimestamp  = errors.New("timestamp cannot be in the future")

	// Progress errors
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrStaleEvent          = errors.New("event outside any active window")
	ErrAlreadyUnlocked     = errors.New("achievement already unlocked")
	ErrAlreadyCompleted    = errors.New("challenge already completed")

	// Rewards errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Infrastructure errors surfaced to the application layer
	ErrStorageFailure = errors.New("storage failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "entry", "achievement", "rewards"
	Op      string // Operation that failed, e.g., "Append", "Debit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new DomainError.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an underlying error with domain context.
func WrapError(domain, op string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Message: "operation failed",
		Err:     err,
	}
}
