// Package errors defines the error kinds shared by the harvester components.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind sentinels. An *Error unwraps to its kind, so callers test with errors.Is.
var (
	ErrNetwork      = stderrors.New("network error")
	ErrParse        = stderrors.New("parse error")
	ErrWorker       = stderrors.New("worker error")
	ErrCacheStorage = stderrors.New("cache storage error")
)

// Error is an error object with a kind, a message and an underlying error.
type Error struct {
	kind    error
	message []interface{}
	inner   error
}

// NewError returns a new error object with message formed from given arguments.
func NewError(msg ...interface{}) *Error {
	return &Error{message: msg}
}

// Network, Parse, Worker and CacheStorage are shortcuts for NewError(...).AtKind(...).
func Network(msg ...interface{}) *Error      { return NewError(msg...).AtKind(ErrNetwork) }
func Parse(msg ...interface{}) *Error        { return NewError(msg...).AtKind(ErrParse) }
func Worker(msg ...interface{}) *Error       { return NewError(msg...).AtKind(ErrWorker) }
func CacheStorage(msg ...interface{}) *Error { return NewError(msg...).AtKind(ErrCacheStorage) }

// AtKind sets the kind sentinel of the error.
func (err *Error) AtKind(kind error) *Error {
	err.kind = kind
	return err
}

// Base sets the underlying error.
func (err *Error) Base(e error) *Error {
	err.inner = e
	return err
}

// Error implements error.Error().
func (err *Error) Error() string {
	builder := strings.Builder{}
	if err.kind != nil {
		builder.WriteString(err.kind.Error())
		if len(err.message) > 0 {
			builder.WriteString(": ")
		}
	}
	builder.WriteString(concat(err.message...))

	if err.inner != nil {
		builder.WriteString(" > ")
		builder.WriteString(err.inner.Error())
	}

	return builder.String()
}

// Unwrap exposes both the kind and the inner error to errors.Is / errors.As.
func (err *Error) Unwrap() []error {
	var errs []error
	if err.kind != nil {
		errs = append(errs, err.kind)
	}
	if err.inner != nil {
		errs = append(errs, err.inner)
	}
	return errs
}

// String returns the string representation of this error.
func (err *Error) String() string {
	return err.Error()
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func concat(v ...interface{}) string {
	parts := make([]string, 0, len(v))
	for _, p := range v {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, "")
}
