package domain

import (
	"fmt"
	"strings"
)

// ValidationError malformed or missing input, raised before any resource is touched
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError referenced entity does not exist
type NotFoundError struct {
	Entity string
	ID     int64
}

func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d was not found", e.Entity, e.ID)
}

// ConflictError business rule violation
type ConflictError struct {
	Message string
}

func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UnavailableError a backing resource could not be reached or opened
type UnavailableError struct {
	Resource string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// PartialCommitError a multi-resource commit stopped half way. Committed
// resources are durable and cannot be undone; the operation needs reconciliation.
type PartialCommitError struct {
	Committed   []string
	Uncommitted []string
	Err         error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit: committed [%s], not committed [%s]: %v",
		strings.Join(e.Committed, ","), strings.Join(e.Uncommitted, ","), e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

type ResourceFailure struct {
	Resource string
	Err      error
}

// RollbackError best-effort rollback did not fully succeed.
// Cause is the error that triggered the rollback.
type RollbackError struct {
	Cause    error
	Failures []ResourceFailure
}

func (e *RollbackError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Resource, f.Err))
	}
	msg := "rollback failed (" + strings.Join(parts, "; ") + ")"
	if e.Cause != nil {
		return e.Cause.Error() + ": " + msg
	}
	return msg
}

func (e *RollbackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// CancelledError the caller's context ended while the operation was in flight
type CancelledError struct {
	Err   error
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil && e.Cause != e.Err {
		return fmt.Sprintf("cancelled: %v: %v", e.Err, e.Cause)
	}
	return fmt.Sprintf("cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
