// Package mferrors provides error wrapping for the memfront packages.
package mferrors

import "fmt"

// Error is an error carrying the driver scheme it originated from.
type Error struct {
	scheme string
	err    error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.scheme == "" {
		return fmt.Sprintf("memfront: %s", e.err.Error())
	}
	return fmt.Sprintf("memfront/%s: %s", e.scheme, e.err.Error())
}

// Unwrap returns the original error.
func (e *Error) Unwrap() error {
	return e.err
}

// NewWithScheme returns a new error with the given scheme and error.
func NewWithScheme(scheme string, err error) *Error {
	return &Error{scheme: scheme, err: err}
}

// New returns a new error with the given error.
func New(err error) *Error {
	return &Error{err: err}
}

// Wrap returns a new error prefixing err with a message.
func Wrap(msg string, err error) *Error {
	return &Error{err: fmt.Errorf("%s: %w", msg, err)}
}
