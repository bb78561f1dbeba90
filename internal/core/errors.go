package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeNotJoined      = "not_joined"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeVoiceFailed    = "voice_failed"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send buffer full")
)

// Error wraps a code and a message that is safe to show to chat participants.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a domain error for the transport layer.
func NewError(code, msg string) *Error {
	return coreError(code, msg)
}

func coreError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// AsError extracts a domain error, falling back to a generic bad request so
// internal details never reach the client.
func AsError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return coreError(ErrCodeBadRequest, "Invalid message format.")
}
