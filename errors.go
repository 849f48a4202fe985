package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
)

// ErrorKind is the machine-readable class of a failed /convert request.
type ErrorKind string

const (
	KindAuth               ErrorKind = "auth"
	KindValidation         ErrorKind = "validation"
	KindUpstreamDependency ErrorKind = "upstream_dependency"
	KindUpstreamTransport  ErrorKind = "upstream_transport"
	KindStreaming          ErrorKind = "streaming"
)

// =============================================================================
// Request Errors
// =============================================================================

// RequestError is the only error type that crosses the forwarder boundary.
// Message is safe to show to callers; Err keeps the underlying cause for logs.
type RequestError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to the HTTP status returned to the caller.
func (e *RequestError) StatusCode() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Details returns a short description of the cause with internal URLs removed.
func (e *RequestError) Details() string {
	if e.Err == nil {
		return ""
	}
	return describeCause(e.Err)
}

func NewAuthError(message string) error {
	return &RequestError{Kind: KindAuth, Message: message}
}

func NewValidationError(message string) error {
	return &RequestError{Kind: KindValidation, Message: message}
}

func NewUpstreamDependencyError(message string, err error) error {
	return &RequestError{Kind: KindUpstreamDependency, Message: message, Err: err}
}

func NewUpstreamTransportError(message string, err error) error {
	return &RequestError{Kind: KindUpstreamTransport, Message: message, Err: err}
}

func NewStreamingError(message string, err error) error {
	return &RequestError{Kind: KindStreaming, Message: message, Err: err}
}

// =============================================================================
// Transport Errors
// =============================================================================

// describeCause reduces a transport error to text without the upstream URL
// or address. Timeouts collapse into a fixed phrase.
func describeCause(err error) string {
	if isNetworkTimeout(err) {
		return "request timed out"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns lookup failed: " + dnsErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Op + ": " + opErr.Err.Error()
	}
	var ue *url.Error
	for errors.As(err, &ue) {
		err = ue.Err
	}
	return err.Error()
}

func isNetworkTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
