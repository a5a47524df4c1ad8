// Package rerr defines the single host-visible error type this module
// raises. Internal failure kinds are distinguishable for diagnostics
// but are never exposed to callers as a discriminated union.
package rerr

import (
	"errors"
	"fmt"

	"github.com/gravitational/trace"
)

// Kind distinguishes internal failure categories for diagnostics.
type Kind string

const (
	InvalidEnvelope  Kind = "invalid_envelope"
	DecodeFailure    Kind = "decode_failure"
	ParserError      Kind = "parser_error"
	CorruptAggregate Kind = "corrupt_aggregate"
)

// RuntimeError is the single opaque error surfaced to hosts.
type RuntimeError struct {
	kind Kind
	err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *RuntimeError) Unwrap() error { return e.err }

// Kind returns the internal failure category, useful for logging but
// not meant to be branched on by hosts.
func (e *RuntimeError) Kind() Kind { return e.kind }

// New wraps err (already trace-wrapped by the caller) into a
// RuntimeError of the given kind. Returns nil if err is nil.
func New(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := trace.Wrap(err, format, args...)
	return &RuntimeError{kind: kind, err: wrapped}
}

// Is reports whether err is a RuntimeError of the given kind.
func Is(err error, kind Kind) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	return re.kind == kind
}
