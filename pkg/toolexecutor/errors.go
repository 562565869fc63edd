package toolexecutor

import (
	"errors"
	"fmt"
)

// Kind classifies a tool call failure. The gateway routes on it: transport
// and protocol failures are eligible for local fallback, application and
// validation failures are surfaced as-is.
type Kind string

const (
	// KindTransport covers unreachable endpoints, connection resets, and
	// request timeouts. The call may never have reached a handler.
	KindTransport Kind = "transport"
	// KindProtocol covers well-formed transport carrying an invalid
	// envelope: undecodable body, version or id mismatch, neither result
	// nor error present.
	KindProtocol Kind = "protocol"
	// KindApplication covers failures reported by the tool itself, local
	// or remote. The call executed; falling back would run it twice.
	KindApplication Kind = "application"
	// KindValidation covers calls rejected before any execution: unknown
	// tool, malformed arguments, disallowed code.
	KindValidation Kind = "validation"
)

// Error is a classified tool call failure.
type Error struct {
	Kind Kind
	Tool string
	Err  error
}

func (e *Error) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: tool %s: %v", e.Kind, e.Tool, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a failure class.
func NewError(kind Kind, tool string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Err: err}
}

// Errorf builds a classified failure from a format string.
func Errorf(kind Kind, tool, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Tool: tool, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure class from err, or "" when err is nil or
// unclassified.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsTransport reports whether err is a transport-class failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsProtocol reports whether err is a protocol-class failure.
func IsProtocol(err error) bool { return KindOf(err) == KindProtocol }

// IsApplication reports whether err is an application-class failure.
func IsApplication(err error) bool { return KindOf(err) == KindApplication }

// IsValidation reports whether err is a validation-class failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Fallbackable reports whether a failure class permits retrying the call
// through a local fallback handler. Application failures never do: the
// remote handler ran and reported its own error.
func Fallbackable(kind Kind) bool {
	return kind == KindTransport || kind == KindProtocol
}
