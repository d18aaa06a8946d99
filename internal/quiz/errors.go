package quiz

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can match on behaviour
// instead of message text.
type ErrorKind string

const (
	KindCapacityExceeded ErrorKind = "CAPACITY_EXCEEDED"
	KindValidation       ErrorKind = "VALIDATION"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindStaleEvent       ErrorKind = "STALE_EVENT"
	KindTransport        ErrorKind = "TRANSPORT_FAILURE"
	KindInternal         ErrorKind = "INTERNAL_INCONSISTENCY"
)

// Error is the typed error family used across the quiz engine.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine-readable error code for structured logging.
func (e *Error) Code() string { return string(e.Kind) }

// Is lets errors.Is match two quiz errors of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// ErrCapacityExceeded reports that admission was denied at MaxSessions.
func ErrCapacityExceeded() *Error {
	return newError(KindCapacityExceeded, "session store at capacity")
}

// ErrValidation reports rejected user input; the session keeps its phase.
func ErrValidation(msg string) *Error {
	return newError(KindValidation, msg)
}

// ErrNotFound reports a missing category/difficulty in the question bank.
func ErrNotFound(msg string) *Error {
	return newError(KindNotFound, msg)
}

// ErrStaleEvent reports an event that does not match the current phase or presentation.
func ErrStaleEvent(msg string) *Error {
	return newError(KindStaleEvent, msg)
}

// ErrTransport wraps a failed outbound send.
func ErrTransport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "transport send failed", Err: err}
}

// ErrInternal reports an inconsistency that is swallowed as a no-op.
func ErrInternal(msg string) *Error {
	return newError(KindInternal, msg)
}

// KindOf extracts the error kind, or empty string for foreign errors.
func KindOf(err error) ErrorKind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}
