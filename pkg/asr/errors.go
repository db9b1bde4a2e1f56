package asr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("asr: API key is required")

	// ErrNotTerminated is returned when the service does not confirm
	// termination before the deadline.
	ErrNotTerminated = errors.New("asr: session termination not confirmed")
)

// ServerError is an error reported by the streaming service, either as an
// error message or as a websocket close frame.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("asr: server error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("asr: server error: %s", e.Message)
}

// IsUnauthorized reports whether the service rejected the credentials.
func (e *ServerError) IsUnauthorized() bool {
	return e.Code == 1008 || e.Code == 4001
}

// SessionError wraps a failure with the session it happened in.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("asr session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
