// Package domainerrors provides coded errors for domain and service layers.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them
// into coded errors; the HTTP layer maps codes onto response statuses. Rejections
// are normal return values, never panics.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers that need to branch on the kind of
// failure without parsing messages.
type Code string

const (
	// CodeInvalidInput marks malformed external input (unparseable IDs, bad enums).
	CodeInvalidInput Code = "invalid_input"
	// CodeValidation marks a payload that parsed but violates a field-level rule,
	// e.g. rejecting a property without a rejection reason.
	CodeValidation Code = "validation_error"
	// CodeInvalidTransition marks a requested state not reachable from the
	// entity's current state.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeForbidden marks an authorization denial. Message carries the
	// machine-readable reason (insufficient_role, not_owner, forbidden).
	CodeForbidden Code = "forbidden"
	// CodeStaleState marks an optimistic-write loss: the entity changed between
	// read and write. Callers may retry the whole operation.
	CodeStaleState Code = "stale_state"
	// CodeContention marks a bounded lock wait that timed out.
	CodeContention Code = "contention"
	// CodeNotFound covers both missing entities and entities outside the caller's
	// scope; the two are deliberately indistinguishable.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness violations (duplicate reference, favorite).
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a broken aggregate invariant at construction.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause remains
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so the transport layer always has something to map.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
