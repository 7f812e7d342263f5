package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so callers can decide how to surface them
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation: domain already taken, malformed input. No side effects were attempted.
	KindValidation
	// KindConfiguration: template render/write failure
	KindConfiguration
	// KindChallenge: ACME HTTP-01/DNS-01 failure
	KindChallenge
	KindPermission
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindChallenge:
		return "challenge"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is an engine error carrying a Kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation creates a validation error
func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, nil, format, args...)
}

// ValidationWrap creates a validation error wrapping err
func ValidationWrap(err error, format string, args ...interface{}) *Error {
	return newError(KindValidation, err, format, args...)
}

// Configuration creates a configuration error wrapping err
func Configuration(err error, format string, args ...interface{}) *Error {
	return newError(KindConfiguration, err, format, args...)
}

// Challenge creates an ACME challenge error wrapping err
func Challenge(err error, format string, args ...interface{}) *Error {
	return newError(KindChallenge, err, format, args...)
}

// Permission creates a permission error
func Permission(format string, args ...interface{}) *Error {
	return newError(KindPermission, nil, format, args...)
}

// NotFound creates a not-found error
func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Internal wraps err as an internal error
func Internal(err error, format string, args ...interface{}) *Error {
	return newError(KindInternal, err, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, KindInternal otherwise
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
