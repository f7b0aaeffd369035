package cadastre

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

// Error codes raised by the engine.
const (
	ErrCodeMissingParcel Code = "MISSING_PARCEL"
	ErrCodeEmptyZone     Code = "EMPTY_ZONE"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeGeometry      Code = "GEOMETRY"
	ErrCodeInvariant     Code = "INVARIANT"
)

// Error is a domain error with a code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with a formatted message.
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error carrying cause.
func WrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCode reports whether any error in err's chain is an *Error with code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
