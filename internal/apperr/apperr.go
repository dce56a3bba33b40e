// Package apperr gives the error taxonomy of the ingestion and retrieval
// core first-class Go types: ValidationError, NotFound, Conflict,
// Transient, Degradable, Fatal, RetrievalUnavailable, and RetrievalTimeout.
// Stage implementations classify errors into these kinds instead of using
// exceptions for control flow; the classifier decides retry vs. fail vs.
// absorb.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the abstract error classification used by the ingestion retry
// policy and the API boundary.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindTransient            Kind = "transient"
	KindDegradable           Kind = "degradable"
	KindFatal                Kind = "fatal"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindRetrievalTimeout     Kind = "retrieval_timeout"
)

// Error is the concrete error type carrying a Kind, a short message, and an
// optional correlation id. Internal details are wrapped via %w and are not
// surfaced at the API boundary.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string, err error) *Error { return newErr(KindValidation, msg, err) }
func NotFound(msg string, err error) *Error   { return newErr(KindNotFound, msg, err) }
func Conflict(msg string, err error) *Error   { return newErr(KindConflict, msg, err) }
func Transient(msg string, err error) *Error  { return newErr(KindTransient, msg, err) }
func Degradable(msg string, err error) *Error { return newErr(KindDegradable, msg, err) }
func Fatal(msg string, err error) *Error      { return newErr(KindFatal, msg, err) }

func RetrievalUnavailable(msg string, err error) *Error {
	return newErr(KindRetrievalUnavailable, msg, err)
}

func RetrievalTimeout(msg string, err error) *Error {
	return newErr(KindRetrievalTimeout, msg, err)
}

// ClassifyKind returns the Kind of err if it (or something it wraps) is an
// *Error, and false otherwise.
func ClassifyKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err should be retried per the job-level retry
// policy (§4.5): only Transient errors are retryable. Degradable errors are
// absorbed by the stage and never reach the job loop in this form.
func IsRetryable(err error) bool {
	kind, ok := ClassifyKind(err)
	return ok && kind == KindTransient
}

// IsDegradable reports whether err represents a stage-local failure that
// should be absorbed (field nulled) rather than propagated.
func IsDegradable(err error) bool {
	kind, ok := ClassifyKind(err)
	return ok && kind == KindDegradable
}
