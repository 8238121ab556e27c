// Package fault is the structured error taxonomy shared by the memoproof packages.
package fault

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/Code rather than matching error strings.
// Error() strings are human-readable and may evolve.
type Kind string

const (
	// KindDigest: the input blob could not be read. Fatal, surfaced immediately.
	KindDigest Kind = "Digest"
	// KindEncoding: a payload could not be decoded. Never fatal; decoders absorb it.
	KindEncoding Kind = "Encoding"
	// KindSubmission: building, signing or dispatching a transaction failed.
	KindSubmission Kind = "Submission"
	// KindRPCTransient: a ledger call failed in a way that may succeed on retry.
	KindRPCTransient Kind = "RPCTransient"
	// KindRPC: a ledger call failed permanently (bad params, unsupported method).
	KindRPC      Kind = "RPC"
	KindConfig   Kind = "Config"
	KindInternal Kind = "Internal"
)

// Error is the structured error type.
//
// Code is a stable identifier (e.g. MEMO-RPC-101) naming the failed step.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, cause error) error {
	if cause == nil {
		return New(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// Code returns the stable Code for a structured error, or "" if unknown.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
