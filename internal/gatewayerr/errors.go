// Package gatewayerr maps internal failure kinds to the HTTP status codes
// and JSON error bodies the gateway promises at its edge.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind is a stable error token surfaced in the "error" field of a response.
type Kind string

const (
	AuthFailed             Kind = "auth_failed"
	CapabilityNotSupported Kind = "capability_not_supported"
	InvalidArguments       Kind = "invalid_arguments"
	BackendOverloaded      Kind = "backend_overloaded"
	BackendNotReady        Kind = "backend_not_ready"
	UpstreamHTTPError      Kind = "upstream_http_error"
	UpstreamTimeout        Kind = "upstream_timeout"
	UpstreamProtocolError  Kind = "upstream_protocol_error"
	ToolDenied             Kind = "tool_denied"
	ToolNotFound           Kind = "not_found"
	ConfigInvalid          Kind = "config_invalid"
	IPBlocked              Kind = "ip_blocked"
)

// statusByKind is the default HTTP status for each kind. UpstreamHTTPError
// carries its own status per occurrence (set via WithStatus) because it
// echoes whatever 4xx the upstream returned, defaulting to 502 for 5xx.
var statusByKind = map[Kind]int{
	AuthFailed:             401,
	CapabilityNotSupported: 400,
	InvalidArguments:       400,
	BackendOverloaded:      429,
	BackendNotReady:        503,
	UpstreamHTTPError:      502,
	UpstreamTimeout:        504,
	UpstreamProtocolError:  502,
	ToolDenied:             403,
	ToolNotFound:           404,
	ConfigInvalid:          500,
	IPBlocked:              403,
}

// Error is the typed error gateway handlers construct and a single
// top-level boundary per route converts to an HTTP response.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error using the kind's default HTTP status.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: statusByKind[kind], Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause without changing the message shown to the client.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// WithStatus overrides the default HTTP status (used by upstream_http_error,
// which echoes the upstream's own 4xx code).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithField attaches a value to the JSON error body alongside error/message.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// As extracts a *Error from err, constructing a generic 500 wrapper when err
// is not already one — mirroring the single-boundary mapping rule: lower
// layers raise typed errors, one top-level handler maps to HTTP.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: "internal_error", Status: 500, Message: err.Error(), cause: err}
}
