// Package apperrors defines the error taxonomy shared by the orchestrator.
//
// Every error that crosses a component boundary is either a package sentinel
// (ErrNotFound and friends) or an *Error carrying a Kind and an explicit
// retryable flag. Retry loops consult IsRetryable and nothing else.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConfiguration   Kind = "configuration"
	KindExternalService Kind = "external_service"
	KindDatabase        Kind = "database"
	KindLock            Kind = "lock"
	KindTimeout         Kind = "timeout"
)

// Error is a classified error.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad input. Never retryable.
func Validation(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Configuration reports missing or invalid settings. Never retryable; aborts the run.
func Configuration(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// External wraps a failure from a third-party service with an explicit
// retryable flag and the service's error code.
func External(op, code string, retryable bool, err error) *Error {
	return &Error{Kind: KindExternalService, Op: op, Code: code, Retryable: retryable, Err: err}
}

// Database wraps a repository failure. Retryable by default.
func Database(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Op: op, Retryable: true, Err: err}
}

// Lock reports a failed lock acquisition or release. Never retryable.
func Lock(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindLock, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Timeout wraps an operation that exceeded its budget. Retryable.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Retryable: true, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. A bare
// context.DeadlineExceeded is reported as a timeout.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// IsRetryable reports whether err is classified retryable. Unclassified
// errors are not retryable (fail closed), except deadline expiry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
