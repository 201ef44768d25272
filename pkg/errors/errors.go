// Package errors defines the error kinds shared by the value index and its
// collaborators. Every fallible operation returns an error that matches one
// of the sentinels below through errors.Is.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIO           = errors.New("i/o failure")
	ErrCorrupt      = errors.New("index corrupt")
	ErrCancelled    = errors.New("operation cancelled")
	ErrReadOnly     = errors.New("index is read-only")
	ErrClosed       = errors.New("index is closed")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotIndexed   = errors.New("document has no such index")
)

// Error attaches an error kind and a message to an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when cause is nil.
func Wrap(kind error, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Kind reports the sentinel kind of err, or nil if it carries none.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []error{ErrIO, ErrCorrupt, ErrCancelled, ErrReadOnly, ErrClosed, ErrInvalidInput, ErrNotIndexed} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Is, As and Join are re-exported so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
