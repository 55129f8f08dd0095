package tidepool

import (
	"errors"
	"fmt"
)

// Application error codes.
const (
	EINVALID     = "invalid"     // malformed input or configuration
	ETIMEOUT     = "timeout"     // wall clock deadline exceeded
	ERESOURCE    = "resource"    // memory page limit exceeded
	ETRAP        = "trap"        // sandbox trapped or ran out of fuel
	EUNAVAILABLE = "unavailable" // pool or engine closed
	ENOTFOUND    = "not_found"   // referenced entity does not exist
	EINTERNAL    = "internal"    // unexpected failure
)

// Error represents an application error. Errors carry a machine-readable
// code so callers can branch on the failure class without matching on
// message text.
type Error struct {
	// Code is one of the application error code constants.
	Code string

	// Message is a human-readable description of the error.
	Message string

	// RequestedPages and LimitPages describe the denied memory growth
	// request on ERESOURCE errors. Zero otherwise.
	RequestedPages uint32
	LimitPages     uint32
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("tidepool error: code=%s message=%s", e.Code, e.Message)
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors return EINTERNAL; nil returns an empty string.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors return a generic message; nil returns an empty
// string.
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// Errorf returns an Error with the given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ResourceErrorf returns an ERESOURCE error carrying the denied memory
// growth request.
func ResourceErrorf(requested, limit uint32, format string, args ...any) *Error {
	e := Errorf(ERESOURCE, format, args...)
	e.RequestedPages = requested
	e.LimitPages = limit
	return e
}
