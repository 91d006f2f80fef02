package ingest

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by Manager.Begin while a session is live.
var ErrBusy = &SessionError{Code: ErrCodeBusy, Message: "an ingestion session is already running"}

// SessionError ends an ingestion session.
//
// Decode failures and unresolved owners never produce a SessionError; only
// transport problems, timeouts and cancellation do.
type SessionError struct {
	// Code identifies the error category.
	Code SessionErrorCode

	// Message is a human-readable description.
	Message string

	// CardID identifies the card being ingested, if known.
	CardID string

	// Err is the underlying cause.
	Err error
}

// SessionErrorCode categorizes session errors.
type SessionErrorCode string

const (
	// ErrCodeTransport indicates the connection failed or dropped.
	ErrCodeTransport SessionErrorCode = "TRANSPORT"

	// ErrCodeTimeout indicates the card meta did not arrive in time.
	ErrCodeTimeout SessionErrorCode = "TIMEOUT"

	// ErrCodeCancelled indicates the caller cancelled the session.
	ErrCodeCancelled SessionErrorCode = "CANCELLED"

	// ErrCodeBusy indicates another session is already live.
	ErrCodeBusy SessionErrorCode = "BUSY"
)

// Error implements the error interface.
func (e *SessionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.CardID != "" {
		msg += fmt.Sprintf(" (card=%s)", e.CardID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if the session ended on a transport failure.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsTimeout returns true if the session ended waiting for card meta.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsCancelled returns true if the session was cancelled by its caller.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

// IsBusy returns true if a session could not start because one is live.
func IsBusy(err error) bool {
	return hasCode(err, ErrCodeBusy)
}

func hasCode(err error, code SessionErrorCode) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func transportError(cardID string, err error) *SessionError {
	return &SessionError{Code: ErrCodeTransport, Message: "connection lost", CardID: cardID, Err: err}
}
