package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Inbound
	ErrMalformedPayload = errors.New("malformed update payload")
	ErrUnsupportedKind  = errors.New("unsupported update kind")
	ErrDuplicateUpdate  = errors.New("duplicate update")

	// Session / storage
	ErrNotFound                = errors.New("entity not found")
	ErrSessionBusy             = errors.New("session is busy")
	ErrSessionConflict         = errors.New("session changed concurrently")
	ErrBackingStoreUnavailable = errors.New("backing store unavailable")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInvalidExecContext      = errors.New("invalid execution context")

	// Dispatch
	ErrHandlerFailed = errors.New("handler failed")

	// Outbound
	ErrOutboundTransient = errors.New("transient outbound failure")
	ErrOutboundPermanent = errors.New("permanent outbound failure")
	ErrQueueSaturated    = errors.New("outbound queue saturated")
	ErrQueueClosed       = errors.New("outbound queue closed")
)

// DecodeError is returned by the update decoder. Reason is either
// ErrMalformedPayload or ErrUnsupportedKind.
type DecodeError struct {
	Reason error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

// SendError classifies a failed delivery attempt.
type SendError struct {
	Kind       error // ErrOutboundTransient or ErrOutboundPermanent
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a retryable send failure.
func Transient(err error, retryAfter time.Duration) error {
	return &SendError{Kind: ErrOutboundTransient, RetryAfter: retryAfter, Err: err}
}

// Permanent wraps err as a non-retryable send failure.
func Permanent(err error) error {
	return &SendError{Kind: ErrOutboundPermanent, Err: err}
}

// IsRetryable reports whether an inbound processing failure should be
// surfaced to the transport as "try again later".
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackingStoreUnavailable) ||
		errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, ErrSessionConflict) ||
		errors.Is(err, ErrQueueSaturated) ||
		errors.Is(err, ErrQueueClosed)
}
