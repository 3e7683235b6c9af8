// Package httperr defines the typed error hierarchy shared by the
// transport, session and protocol layers.
package httperr

import "fmt"

// ErrorType is the top-level category of an HttpError.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorSession
	ErrorInvalidArgument
	ErrorMemory
)

// TransportError enumerates transport-layer failure reasons.
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorCanceled
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorTLSHandshake
)

// ProtocolError enumerates wire-format parse failures.
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidRequestLine
	ProtocolErrorInvalidStatusLine
	ProtocolErrorInvalidHeader
	ProtocolErrorInvalidURL
	ProtocolErrorInvalidChunkedEncoding
	ProtocolErrorMessageTooLarge
	ProtocolErrorIncompleteResponse
)

// SessionError enumerates per-connection session failures that are not
// transport or parse errors in themselves, but describe how a session
// reacted to one.
type SessionError int

const (
	SessionErrorNone SessionError = iota
	SessionErrorContentLengthInvalid
	SessionErrorBodyTooLarge
	SessionErrorFullReadTimeout
	SessionErrorAlreadyResponded
	SessionErrorRequestInFlight
	SessionErrorFactoryNotReady
)

// HttpError is the error type the transport, protocol and session layers
// construct. Shutdown and close completions and config loading pass OS
// and decoding errors through without wrapping them.
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	SessionErr    SessionError
	Message       string
	UnderlyingErr error
}

func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("transport error (%d)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("protocol error (%d)", e.ProtocolErr)
	case ErrorSession:
		typeStr = fmt.Sprintf("session error (%d)", e.SessionErr)
	case ErrorInvalidArgument:
		typeStr = "invalid argument"
	case ErrorMemory:
		typeStr = "memory error"
	default:
		typeStr = "unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap supports errors.Is/As across the chain.
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// IsCanceled reports whether e is a transport cancellation, i.e. a
// recv/send that was aborted by deadline expiry rather than failing on the
// wire. Sessions treat this as a clean shutdown-then-close trigger.
func IsCanceled(err error) bool {
	he, ok := err.(*HttpError)
	return ok && he.Type == ErrorTransport && he.TransportErr == TransportErrorCanceled
}

// IsEOF reports whether err represents a peer-closed connection observed as
// a zero-byte read/write rather than an OS-level error.
func IsEOF(err error) bool {
	he, ok := err.(*HttpError)
	return ok && he.Type == ErrorTransport && he.TransportErr == TransportErrorConnectionClosed
}

func NewTransportError(kind TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  kind,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

func NewProtocolError(kind ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: kind,
		Message:     message,
	}
}

func NewSessionError(kind SessionError, message string) *HttpError {
	return &HttpError{
		Type:       ErrorSession,
		SessionErr: kind,
		Message:    message,
	}
}

func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}
