package identity

import "time"

// Paths of the identity provider REST API.
const (
	PathSignIn  = "/identity/v1/signin"
	PathSignOut = "/identity/v1/signout"
	PathToken   = "/identity/v1/token"
	PathEvents  = "/identity/v1/events"
)

// Session is an identity-provider session. IDToken is what the backend
// verifies; RefreshToken is exchanged for new ID tokens.
type Session struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Clone returns a copy of s, or nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// expiresWithin reports whether the ID token expires within d of now.
func (s *Session) expiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt.IsZero() || !now.Add(d).Before(s.ExpiresAt)
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by sign-in and refresh.
type TokenResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r TokenResponse) session(now time.Time) *Session {
	return &Session{
		UID:          r.UID,
		Email:        r.Email,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

// ErrorBody is the JSON shape of every provider error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// EventType tags messages on the events feed.
type EventType string

const (
	EventHello   EventType = "hello"
	EventRevoked EventType = "revoked"
)

// Event is one message on the revocation feed.
type Event struct {
	Type   EventType `json:"type"`
	UID    string    `json:"uid,omitempty"`
	Reason string    `json:"reason,omitempty"`
}
