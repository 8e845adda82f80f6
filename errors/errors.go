// Package errors defines the error kinds surfaced by buntable.
//
// Every failure returned from an exec, action call or bulk load is (or wraps)
// an *Error whose Kind tells the caller which layer rejected the request.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindSchema covers model declaration problems and unknown columns/tables.
	KindSchema Kind = iota + 1
	// KindCompile covers malformed queries detected before execution.
	KindCompile
	// KindConstraint covers primary key collisions and notnull violations.
	KindConstraint
	// KindCoercion covers values that cannot be cast to their column type.
	KindCoercion
	// KindBackend covers opaque failures reported by a backend.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "SchemaError"
	case KindCompile:
		return "QueryCompileError"
	case KindConstraint:
		return "ConstraintViolation"
	case KindCoercion:
		return "CoercionError"
	case KindBackend:
		return "BackendError"
	default:
		return "UnknownError"
	}
}

// Error is the error type returned by the engine.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"` // underlying cause, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Schema creates a SchemaError.
func Schema(format string, args ...any) *Error {
	return New(KindSchema, fmt.Sprintf(format, args...), nil)
}

// Compile creates a QueryCompileError.
func Compile(format string, args ...any) *Error {
	return New(KindCompile, fmt.Sprintf(format, args...), nil)
}

// Constraint creates a ConstraintViolation.
func Constraint(format string, args ...any) *Error {
	return New(KindConstraint, fmt.Sprintf(format, args...), nil)
}

// Coercion creates a CoercionError wrapping the cast failure.
func Coercion(err error, format string, args ...any) *Error {
	return New(KindCoercion, fmt.Sprintf(format, args...), err)
}

// Backend wraps an opaque backend failure. Errors that already carry a Kind
// are returned unchanged.
func Backend(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(KindBackend, message, err)
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

var (
	// ErrNotConnected is returned when a query runs before Connect.
	ErrNotConnected = New(KindSchema, "database is not connected", nil)

	// ErrAlreadyConnected is returned when declarations are made after Connect.
	ErrAlreadyConnected = New(KindSchema, "declarations are not allowed after connect", nil)

	// ErrUnknownTable is returned for a table without a declared model.
	ErrUnknownTable = New(KindSchema, "unknown table", nil)

	// ErrClosed is returned once the database has been closed.
	ErrClosed = New(KindBackend, "database is closed", nil)
)
