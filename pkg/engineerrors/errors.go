// Package engineerrors defines the closed error taxonomy every failure
// maps to before leaving the engine. Callers branch on the kind, not on
// backend-specific error text.
package engineerrors

import (
	"context"
	"errors"
)

// Kind is the failure category. The set is closed: adding a kind is an
// API change for every consumer.
type Kind string

const (
	KindConnection    Kind = "connection_error"
	KindSchema        Kind = "schema_error"
	KindGeneration    Kind = "generation_error"
	KindExecution     Kind = "execution_error"
	KindTimeout       Kind = "timeout_error"
	KindSerialization Kind = "serialization_error"
)

// Error is a classified engine failure.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func newError(kind Kind, message string, retryable bool, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable, Cause: cause}
}

// Connection wraps a connectivity or credential failure.
func Connection(message string, cause error) *Error {
	return newError(KindConnection, message, false, cause)
}

// Schema wraps an introspection failure.
func Schema(message string, cause error) *Error {
	return newError(KindSchema, message, false, cause)
}

// Generation wraps a query-generation failure.
func Generation(message string, cause error) *Error {
	return newError(KindGeneration, message, false, cause)
}

// Execution wraps a query-execution failure.
func Execution(message string, cause error) *Error {
	return newError(KindExecution, message, false, cause)
}

// Timeout wraps an exceeded execution deadline.
func Timeout(message string, cause error) *Error {
	return newError(KindTimeout, message, false, cause)
}

// Serialization wraps a result-encoding or persistence failure.
func Serialization(message string, cause error) *Error {
	return newError(KindSerialization, message, false, cause)
}

// KindOf extracts the kind from an error, defaulting to execution for
// unclassified errors.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return KindExecution
}

// IsKind reports whether the error carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Classify maps an arbitrary error into the taxonomy. Already
// classified errors pass through unchanged; context deadline errors
// become timeouts; everything else is an execution error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("operation exceeded its deadline", err)
	}

	return Execution(err.Error(), err)
}

// Record is the serializable form of a classified error, embedded in
// API responses and persisted turns.
type Record struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ToRecord flattens a classified error for serialization.
func ToRecord(err *Error) Record {
	if err == nil {
		return Record{}
	}
	return Record{Kind: err.Kind, Message: err.Message, Retryable: err.Retryable}
}
