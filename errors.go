package chat

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Match with errors.Is; the typed errors below wrap them.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrChannel          = errors.New("channel error")
	ErrTimeout          = errors.New("request timed out")
	ErrServer           = errors.New("server error")
	ErrConnectionClosed = errors.New("connection closed")
	ErrClientClosed     = errors.New("client closed")
)

// AuthError reports a missing token or a server auth_error. It is terminal
// for the credential; a fresh Connect is required.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "auth failed: " + e.Message }

func (e *AuthError) Unwrap() error { return ErrAuthentication }

// ChannelError is a transport failure before authentication completed.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return "channel: " + e.Err.Error() }

func (e *ChannelError) Unwrap() []error { return []error{ErrChannel, e.Err} }

// ServerError is an explicit error response from the server.
type ServerError struct {
	RequestID string
	Message   string
}

func (e *ServerError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("server error (request %s): %s", e.RequestID, e.Message)
	}
	return "server error: " + e.Message
}

func (e *ServerError) Unwrap() error { return ErrServer }

// TimeoutError is returned when a correlated call gets no response in time.
type TimeoutError struct {
	Type      string
	RequestID string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %s", e.Type, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
