package errors

import (
	"errors"
	"fmt"
)

// Re-exported standard library checks so callers need a single import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// ErrorCode identifies an error category.
type ErrorCode string

// Error is a categorized error. The code is stable across wrapping; the
// optional data payload carries diagnostics such as raw native status codes.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	Data() any
	Unwrap() error
}

type appError struct {
	code    ErrorCode
	message string
	err     error
	data    any
}

func (e *appError) Error() string {
	msg := e.message
	if msg == "" {
		msg = Message(e.code)
	}
	switch {
	case e.err != nil:
		return fmt.Sprintf("%s: %v", msg, e.err)
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	default:
		return msg
	}
}

func (e *appError) Code() ErrorCode { return e.code }

func (e *appError) WithMessage(msg string) Error {
	return &appError{code: e.code, message: msg, err: e.err, data: e.data}
}

func (e *appError) WithData(data any) Error {
	return &appError{code: e.code, message: e.message, err: e.err, data: data}
}

func (e *appError) Data() any { return e.data }

func (e *appError) Unwrap() error { return e.err }

// New creates an error with the given code.
func New(code ErrorCode) Error {
	return &appError{code: code}
}

// Wrap creates an error with the given code wrapping a cause.
func Wrap(code ErrorCode, err error) Error {
	return &appError{code: code, err: err}
}

// WithMessage creates an error with the given code and an explicit message.
func WithMessage(code ErrorCode, msg string) Error {
	return &appError{code: code, message: msg}
}

// WithData creates an error with the given code and a diagnostic payload.
func WithData(code ErrorCode, data any) Error {
	return &appError{code: code, data: data}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed. It returns
// the empty code when err is nil or carries no code.
func CodeOf(err error) ErrorCode {
	var appErr Error
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
