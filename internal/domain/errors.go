package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the stream consumer.
var (
	ErrTransport      = fmt.Errorf("transport error")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid    = fmt.Errorf("authentication failed")
	ErrUpstream       = fmt.Errorf("upstream service error")
	ErrCircuitOpen    = fmt.Errorf("circuit breaker open")
	ErrSessionActive  = fmt.Errorf("session already active")
	ErrHistoryStore   = fmt.Errorf("history store failed")
	ErrConfigLoad     = fmt.Errorf("failed to load configuration")
	ErrStreamConsumed = fmt.Errorf("stream already consumed")
)

// ErrorKind is a machine-parseable category carried on terminal error
// snapshots so the UI can choose banner vs. silent degradation.
type ErrorKind string

const (
	KindTransport ErrorKind = "TRANSPORT"
	KindRateLimit ErrorKind = "RATE_LIMIT"
	KindAuth      ErrorKind = "AUTH"
	KindUpstream  ErrorKind = "UPSTREAM"
	KindInternal  ErrorKind = "INTERNAL"
)

// StreamError is the structured error surfaced on a Failed session. Message
// is human-readable; Detail carries the raw upstream payload when one was
// extracted from the response body.
type StreamError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

func (e *StreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewStreamError builds a StreamError, classifying err against the sentinel
// taxonomy. Cancellation is never a StreamError; callers must check
// IsCancellation first.
func NewStreamError(err error) *StreamError {
	se := &StreamError{Kind: KindInternal, Message: err.Error()}
	switch {
	case errors.Is(err, ErrRateLimit):
		se.Kind = KindRateLimit
	case errors.Is(err, ErrAuthInvalid):
		se.Kind = KindAuth
	case errors.Is(err, ErrUpstream):
		se.Kind = KindUpstream
	case errors.Is(err, ErrTransport), errors.Is(err, ErrCircuitOpen):
		se.Kind = KindTransport
	}
	return se
}

// IsCancellation reports whether err represents a caller-initiated stop
// (explicit cancel, supersession, or navigation away). Cancellation is a
// first-class terminal outcome, not a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
