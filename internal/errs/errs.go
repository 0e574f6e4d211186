// Package errs defines the error taxonomy shared by every component of the
// retrieval core: BadRequest, NotFound, Transient, Internal (see spec §7).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation policy.
type Kind string

const (
	// KindBadRequest covers malformed input or policy rejections
	// (duplicate tracking id, invalid vector dimension, locked dataset).
	// Non-retryable; surfaced immediately to the caller.
	KindBadRequest Kind = "bad_request"
	// KindNotFound covers a missing dataset/group/chunk. Non-retryable.
	KindNotFound Kind = "not_found"
	// KindTransient covers remote timeouts, 5xx responses, and broken
	// queue connections. Retryable with exponential backoff.
	KindTransient Kind = "transient"
	// KindInternal covers invariant violations that cannot be
	// reconciled. Logged, surfaced as opaque, never retried.
	KindInternal Kind = "internal"
)

// Retryable reports whether errors of this kind should be retried by the
// ingestion worker's attempt-count/dead-letter policy (spec §4.E, §7).
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Error is the concrete error type every component in this module returns.
// Modeled on the teacher's messaging.BrokerError: a stable Code, a
// human Message, an optional wrapped Cause, and a derived Retryable flag.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	Details map[string]any
}

func New(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so errors.Is(err, SentinelWithSameCode) works without
// comparing Cause or Details.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func (e *Error) Retryable() bool { return e.Kind.Retryable() }

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Constructors for the taxonomy's common cases.

func BadRequest(code, message string, cause error) *Error {
	return New(KindBadRequest, code, message, cause)
}

func NotFound(code, message string, cause error) *Error {
	return New(KindNotFound, code, message, cause)
}

func Transient(code, message string, cause error) *Error {
	return New(KindTransient, code, message, cause)
}

func Internal(code, message string, cause error) *Error {
	return New(KindInternal, code, message, cause)
}

// Common sentinel codes reused across packages.
const (
	CodeDuplicateTrackingID = "duplicate_tracking_id"
	CodeInvalidDimension    = "invalid_vector_dimension"
	CodeDatasetLocked       = "dataset_locked"
	CodeNotFound            = "not_found"
	CodeRemoteTimeout       = "remote_timeout"
	CodeRemoteStatus        = "remote_status"
	CodeQueueIO             = "queue_io"
	CodeDivergence          = "store_divergence"
)

// IsRetryable reports whether err (possibly wrapped) should be retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// IsBadRequest reports whether err (possibly wrapped) is a BadRequest,
// i.e. non-retryable and to be surfaced immediately to the caller (§7).
func IsBadRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindBadRequest
	}
	return false
}

// IsNotFound reports whether err (possibly wrapped) is a NotFound.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNotFound
	}
	return false
}
