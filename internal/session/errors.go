package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/client"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

// Kind classifies session errors.
type Kind string

const (
	KindAuthentication    Kind = "authentication"
	KindProfileResolution Kind = "profile_resolution"
	KindDashboard         Kind = "dashboard"
	KindValidation        Kind = "validation"
	KindRegistration      Kind = "registration"
	KindThrottled         Kind = "throttled"
	KindTimeout           Kind = "timeout"
	KindSignOut           Kind = "sign_out"
)

// Error is the normalized, user-facing form of every failure the machine
// reports. Message is safe to show; Cause is for logs only.
type Error struct {
	Kind       Kind              `json:"kind"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Cause      error             `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Cause == nil && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrTooManyAttempts = &Error{
		Kind:       KindThrottled,
		Message:    "Too many login attempts. Please wait a minute and try again.",
		StatusCode: http.StatusTooManyRequests,
	}
	ErrNotAuthenticated = &Error{
		Kind:    KindDashboard,
		Message: "You need to sign in first.",
	}
	ErrSessionTimeout = &Error{
		Kind:    KindTimeout,
		Message: "Timed out waiting for the sign-in to complete.",
	}
)

var fallbackMessages = map[Kind]string{
	KindAuthentication:    "Sign-in failed.",
	KindProfileResolution: "Could not load your account.",
	KindDashboard:         "Could not load the dashboard.",
	KindValidation:        "Please correct the highlighted fields.",
	KindRegistration:      "Registration failed.",
	KindSignOut:           "Sign-out did not complete on the server.",
}

var identityMessages = map[identity.Code]string{
	identity.CodeInvalidCredentials: "Invalid email or password.",
	identity.CodeUserDisabled:       "This account has been disabled.",
	identity.CodeEmailExists:        "An account with this email already exists.",
	identity.CodeTokenExpired:       "Your session has expired. Please sign in again.",
	identity.CodeTooManyAttempts:    "Too many attempts. Please try again later.",
	identity.CodeUnavailable:        "The sign-in service is unavailable. Please try again later.",
}

// Normalize converts err into an *Error of the given kind. Raw transport
// errors never reach Message.
func Normalize(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	out := &Error{Kind: kind, Cause: err, Message: fallbackMessages[kind]}
	if out.Message == "" {
		out.Message = "Something went wrong."
	}

	var (
		ve *account.ValidationError
		ie *identity.Error
		ae *client.APIError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Message = "The request timed out. Please try again."
	case errors.Is(err, client.ErrNoToken), errors.Is(err, identity.ErrNoSession):
		out.Message = "You are not signed in."
		out.StatusCode = http.StatusUnauthorized
	case errors.As(err, &ve):
		out.Kind = KindValidation
		out.Message = fallbackMessages[KindValidation]
		out.Fields = make(map[string]string, len(ve.Fields))
		for k, v := range ve.Fields {
			out.Fields[k] = v
		}
	case errors.As(err, &ie):
		if msg, ok := identityMessages[ie.Code]; ok {
			out.Message = msg
		}
		out.StatusCode = ie.StatusCode
	case errors.As(err, &ae):
		out.StatusCode = ae.StatusCode
		out.Message = apiMessage(kind, ae)
	}
	return out
}

func apiMessage(kind Kind, ae *client.APIError) string {
	switch {
	case ae.StatusCode == http.StatusUnauthorized:
		return "Your session is no longer valid. Please sign in again."
	case ae.StatusCode == http.StatusForbidden:
		return "You do not have access to this resource."
	case ae.StatusCode == http.StatusNotFound && kind == KindProfileResolution:
		return "No account profile was found for this user."
	case ae.StatusCode >= 500:
		return "The server encountered an error. Please try again later."
	case ae.StatusCode >= 400 && ae.Message != "":
		return ae.Message
	}
	return fallbackMessages[kind]
}
