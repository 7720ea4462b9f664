package core

import (
	"fmt"
)

// Error is the structured error type used across the interview engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrPermissionDenied means the user declined microphone access.
	ErrPermissionDenied ErrorType = "permission_denied"
	// ErrDeviceUnavailable means a media device could not be acquired.
	ErrDeviceUnavailable ErrorType = "device_unavailable"
	// ErrConnectionLost means the duplex connection dropped abnormally.
	ErrConnectionLost ErrorType = "connection_lost"
	// ErrConnectionRejected means the ticket is invalid, expired or already used.
	ErrConnectionRejected ErrorType = "connection_rejected"
	// ErrProtocolDecode means an inbound frame could not be decoded.
	ErrProtocolDecode ErrorType = "protocol_decode_error"
	// ErrServer is an error reported by the interview server.
	ErrServer ErrorType = "server_error"
	// ErrInvalidRequest means the caller misused the API.
	ErrInvalidRequest ErrorType = "invalid_request_error"
)

// NewPermissionDeniedError creates a microphone permission error.
func NewPermissionDeniedError(message string) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message}
}

// NewDeviceUnavailableError creates a media device error.
func NewDeviceUnavailableError(message string, underlying error) *Error {
	if underlying != nil {
		message = fmt.Sprintf("%s: %v", message, underlying)
	}
	return &Error{Type: ErrDeviceUnavailable, Message: message, underlying: underlying}
}

// NewConnectionLostError creates a recoverable connection error.
func NewConnectionLostError(message string, underlying error) *Error {
	if underlying != nil {
		message = fmt.Sprintf("%s: %v", message, underlying)
	}
	return &Error{Type: ErrConnectionLost, Message: message, underlying: underlying}
}

// NewConnectionRejectedError creates a terminal ticket rejection error.
func NewConnectionRejectedError(message string) *Error {
	return &Error{Type: ErrConnectionRejected, Message: message}
}

// NewProtocolDecodeError creates a frame decode error.
func NewProtocolDecodeError(message string, underlying error) *Error {
	if underlying != nil {
		message = fmt.Sprintf("%s: %v", message, underlying)
	}
	return &Error{Type: ErrProtocolDecode, Message: message, underlying: underlying}
}

// NewServerError creates a server-reported error.
func NewServerError(message string) *Error {
	return &Error{Type: ErrServer, Message: message}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// Recoverable reports whether the session may continue after this error.
// Ticket rejections are terminal; everything else leaves the session usable
// or reconnectable.
func (e *Error) Recoverable() bool {
	switch e.Type {
	case ErrConnectionRejected:
		return false
	default:
		return true
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.underlying
}
