// Package errors defines the typed error values returned by the core.
//
// Every failure the user can cause (bad operands, unknown branch or commit,
// "nothing to commit", hazards in the working tree) is a non-internal Error
// and leaves the repository untouched. Internal errors wrap I/O failures.
package errors

import (
	stderr "errors"
)

type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Type == ErrorTypeInternal && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error with the same type and message, so package-level
// values can be used as sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

func NotFound(message string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Type: ErrorTypeConflict, Message: message}
}

func Validation(message string) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Type: ErrorTypeInternal, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain.
// Untyped errors are reported as internal.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderr.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsUser reports whether err was caused by the user rather than by I/O.
func IsUser(err error) bool {
	return err != nil && TypeOf(err) != ErrorTypeInternal
}

// New is a shortcut to the standard library errors.New
func New(text string) error {
	return stderr.New(text)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// As finds the first error in err's chain that matches target
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}
