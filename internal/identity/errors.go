package identity

import (
	"errors"
	"fmt"
)

// Code classifies provider errors.
type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUserDisabled       Code = "USER_DISABLED"
	CodeEmailExists        Code = "EMAIL_EXISTS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTooManyAttempts    Code = "TOO_MANY_ATTEMPTS"
	CodeUnavailable        Code = "UNAVAILABLE"
)

// Error is a failure reported by (or while reaching) the identity provider.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("identity: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrNoSession is returned by Token when nobody is signed in.
var ErrNoSession = errors.New("identity: no active session")

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code Code) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Code == code
}
