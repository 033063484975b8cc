package queue

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes queue errors.
type ErrorCode string

const (
	// ErrCodeHandlerNotRegistered indicates a persisted kind with no replay
	// handler in this build. Terminal.
	ErrCodeHandlerNotRegistered ErrorCode = "HANDLER_NOT_REGISTERED"

	// ErrCodeInvalidPayload indicates a payload that does not decode into
	// its kind's payload type. Terminal.
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// ErrCodePermanent indicates the handler rejected the action for good.
	// Terminal.
	ErrCodePermanent ErrorCode = "PERMANENT"

	// ErrCodeMaxRetriesExceeded indicates the action failed maxRetries times.
	// Terminal.
	ErrCodeMaxRetriesExceeded ErrorCode = "MAX_RETRIES_EXCEEDED"

	// ErrCodeStorageUnavailable indicates the queue could not be persisted.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// Error is a queue error with structured fields for pattern matching.
type Error struct {
	Code     ErrorCode
	Message  string
	ActionID string
	Kind     Kind
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ActionID != "" {
		msg = fmt.Sprintf("%s (action=%s, type=%s)", msg, e.ActionID, e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsHandlerNotRegistered reports whether err is a HANDLER_NOT_REGISTERED error.
func IsHandlerNotRegistered(err error) bool {
	return hasCode(err, ErrCodeHandlerNotRegistered)
}

// IsMaxRetriesExceeded reports whether err is a MAX_RETRIES_EXCEEDED error.
func IsMaxRetriesExceeded(err error) bool {
	return hasCode(err, ErrCodeMaxRetriesExceeded)
}

// IsStorageUnavailable reports whether err is a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool {
	return hasCode(err, ErrCodeStorageUnavailable)
}

// IsTerminal reports whether err means the action can never succeed and
// must be dropped without further retries.
func IsTerminal(err error) bool {
	var qe *Error
	if !errors.As(err, &qe) {
		return false
	}
	switch qe.Code {
	case ErrCodeHandlerNotRegistered, ErrCodeInvalidPayload, ErrCodePermanent, ErrCodeMaxRetriesExceeded:
		return true
	}
	return false
}

// Permanent marks a handler error as terminal: the action is dropped and
// reported instead of retried (e.g. the server rejected the booking).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: ErrCodePermanent, Message: "rejected by handler", Err: err}
}

func storageError(op string, err error) *Error {
	return &Error{Code: ErrCodeStorageUnavailable, Message: op, Err: err}
}
