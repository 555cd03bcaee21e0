package store

import (
	"errors"
	"fmt"
)

// Sentinel errors implementing the abstract error taxonomy of spec.md §7.
// Service layers return these (or wrap them with errors.Is-compatible
// wrapping); pkg/api maps them to HTTP status at the boundary.
var (
	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when an actor lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStateConflict is returned when a precondition on entity state fails
	// (AlreadyPending, AlreadyApproved, NotPending, AlreadyVoted,
	// AlreadyRolledBack, NoPreviousDeployment, NotApproved, BranchNotEmpty,
	// AlreadyMerged, EmptyBranch are all StateConflict wrapped with a reason).
	ErrStateConflict = errors.New("state conflict")

	// ErrInvalidInput is returned for malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExpired is returned when an approval or scheduled window has elapsed.
	ErrExpired = errors.New("expired")
)

// ConflictError names a specific state-conflict reason while remaining
// errors.Is-compatible with ErrStateConflict.
type ConflictError struct {
	Reason string // e.g. "AlreadyPending", "NotPending", "AlreadyVoted"
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrStateConflict }

// NewConflict builds a ConflictError for the named reason.
func NewConflict(reason string) error { return &ConflictError{Reason: reason} }

// ValidationError wraps field-specific validation errors. It is
// errors.Is-compatible with ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsConflict reports whether err is (or wraps) a ConflictError with the given reason.
func IsConflict(err error, reason string) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Reason == reason
	}
	return false
}
