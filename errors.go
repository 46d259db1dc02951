package mcphost

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunchFailed indicates the server process could not be spawned or
	// its standard streams could not be wired up.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrHandshakeFailed indicates the server rejected the initialize
	// request or answered it with something other than a valid response.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrMalformedMessage indicates a frame arrived that could not be
	// decoded as a JSON-RPC message. The connection survives; only the
	// exchange that observed the frame fails.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrOperationFailed indicates the server answered a request with a
	// JSON-RPC error object. The connection survives.
	ErrOperationFailed = errors.New("operation failed")

	// ErrConnectionClosed indicates the server is gone: the byte stream
	// ended mid-exchange, or an operation was attempted after Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCorrelationMismatch indicates a response arrived whose id does not
	// match the outstanding request. The protocol allows at most one request
	// in flight, so this means the two sides have lost sync and the
	// connection is torn down.
	ErrCorrelationMismatch = errors.New("response id does not match request")

	// ErrNotReady indicates an operation was attempted before Connect
	// completed the initialize handshake.
	ErrNotReady = errors.New("client not ready")
)

// HandshakeError reports an initialize request the server answered with an
// error object. It matches ErrHandshakeFailed with errors.Is.
type HandshakeError struct {
	// Code is the JSON-RPC error code from the server's response.
	Code int
	// Message is the server's description of the rejection.
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("initialize rejected, code: %d, message: %s", e.Code, e.Message)
}

func (e *HandshakeError) Unwrap() error {
	return ErrHandshakeFailed
}

// OperationError reports a request the server answered with an error object.
// It matches ErrOperationFailed with errors.Is, or ErrMalformedMessage when
// the error is the parse-error code, which the client also synthesizes
// locally for undecodable frames.
type OperationError struct {
	// Method is the request method that failed.
	Method string
	// Code is the JSON-RPC error code.
	Code int
	// Message is the error description.
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed, code: %d, message: %s", e.Method, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	if e.Code == jsonRPCParseErrorCode {
		return ErrMalformedMessage
	}
	return ErrOperationFailed
}
