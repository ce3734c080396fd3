// Package domainerrors defines the coded error type shared by all services.
//
// Services classify failures exactly once, at the point where enough context
// is known, and every other layer passes the error through unchanged. The
// transport layer maps codes to HTTP statuses without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code partitions failures into the categories callers can act on.
type Code string

const (
	// CodeValidation covers malformed or missing input, including a missing
	// or empty reason on a mutating call.
	CodeValidation Code = "validation"
	// CodeNotFound covers dangling references to absent entities.
	CodeNotFound Code = "not_found"
	// CodeConflict covers uniqueness race losers and redundant state
	// transitions (e.g. deactivating an already-inactive entity).
	CodeConflict Code = "conflict"
	// CodeForbidden covers authorization rule violations.
	CodeForbidden Code = "forbidden"
	// CodeAuditWrite marks a failure while persisting the compliance record
	// itself; the enclosing transaction has been rolled back.
	CodeAuditWrite Code = "audit_write"
	// CodeUnauthorized covers requests without an authenticated actor.
	CodeUnauthorized Code = "unauthorized"
	// CodeTimeout covers cancelled or deadline-exceeded operations.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation marks a broken internal invariant; it is a
	// programming error, not a caller mistake.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is the fallback for unclassified infrastructure failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a message safe to surface to callers, and an
// optional wrapped cause preserved for errors.Is/errors.As.
type Error struct {
	code Code
	msg  string
	err  error
}

// New returns a coded error with no underlying cause.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. The cause remains reachable
// through errors.Is and errors.As. Wrapping nil returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the classification of this error.
func (e *Error) Code() Code { return e.code }

// Message returns the caller-safe message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.code == code {
			return true
		}
		err = de.err
		de = nil
	}
	return false
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when the chain carries no coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
