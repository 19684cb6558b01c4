package core

import "errors"

// Error codes for domain errors delivered to a connection.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotIdentified  = "not_identified"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeRateLimited    = "rate_limited"
)

// ErrHubStopped is returned by hub operations submitted after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError for transports that reject input before it reaches the hub.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func errorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: NewError(code, msg)}
}
