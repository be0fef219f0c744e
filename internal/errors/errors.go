// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
	ErrInputValidation    = errors.New("input validation failed")
	ErrExecutionLocked    = errors.New("execution is locked")
	ErrInvariantViolation = errors.New("recomputation invariant violated")
	ErrPersistence        = errors.New("persistence failed")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is lets errors.Is match ErrInputValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ExecutionLockedError is returned when an edit or delete targets a locked
// execution.
type ExecutionLockedError struct {
	ExecutionID int64
	Action      string
}

func (e *ExecutionLockedError) Error() string {
	return fmt.Sprintf("cannot %s execution %d: execution is locked", e.Action, e.ExecutionID)
}

// Is lets errors.Is match ErrExecutionLocked.
func (e *ExecutionLockedError) Is(target error) bool {
	return target == ErrExecutionLocked
}

// NewExecutionLockedError creates a new ExecutionLockedError.
func NewExecutionLockedError(executionID int64, action string) *ExecutionLockedError {
	return &ExecutionLockedError{
		ExecutionID: executionID,
		Action:      action,
	}
}

// InvariantViolation means the recomputation engine produced a state that
// breaks the trade invariants. It is a programming error and must abort the
// surrounding transaction.
type InvariantViolation struct {
	Scope   string
	TradeNo int
	Rule    string
	Detail  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation [%s] %s trade #%d: %s", e.Rule, e.Scope, e.TradeNo, e.Detail)
}

// Is lets errors.Is match ErrInvariantViolation.
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

// NewInvariantViolation creates a new InvariantViolation.
func NewInvariantViolation(scope string, tradeNo int, rule, detail string) *InvariantViolation {
	return &InvariantViolation{
		Scope:   scope,
		TradeNo: tradeNo,
		Rule:    rule,
		Detail:  detail,
	}
}

// PersistenceError wraps a failure to read or write journal state.
type PersistenceError struct {
	Operation string
	Scope     string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("persistence error [%s] %s: %v", e.Operation, e.Scope, e.Err)
	}
	return fmt.Sprintf("persistence error [%s]: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(operation, scope string, err error) *PersistenceError {
	return &PersistenceError{
		Operation: operation,
		Scope:     scope,
		Err:       err,
	}
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Kind, e.ID)
}

// Is lets errors.Is match ErrDataNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrDataNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind string, id interface{}) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
