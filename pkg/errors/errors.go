package errors

import (
	"errors"
	"fmt"
)

// Error represents a typed domain error identified by a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrValidation          = New("VALIDATION_ERROR", "validation failed")
	ErrInternal            = New("INTERNAL_ERROR", "internal error")
	ErrInvalidFilter       = New("INVALID_FILTER", "invalid advancement filter")
	ErrProgramNotFound     = New("PROGRAM_NOT_FOUND", "program not found")
	ErrPeriodNotFound      = New("PERIOD_NOT_FOUND", "evaluation period not found")
	ErrInvalidPeriodState  = New("INVALID_PERIOD_STATE", "evaluation period in invalid state")
	ErrTransitionExecution = New("TRANSITION_EXECUTION_FAILED", "transition execution failed")
	ErrTransitionLocked    = New("TRANSITION_IN_PROGRESS", "another transition is running for the target period")
	ErrAdvancementPartial  = New("ADVANCEMENT_INCOMPLETE", "some students could not be advanced")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs clones the sentinel and attaches the cause.
func WrapAs(sentinel *Error, err error, message string) *Error {
	clone := Clone(sentinel, message)
	if clone != nil {
		clone.Err = err
	}
	return clone
}
