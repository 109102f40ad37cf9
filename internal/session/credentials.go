package session

import (
	"strings"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

// Credentials is an email/password pair for Login.
type Credentials struct {
	Email    string
	Password string
}

// Validate checks the pair is well formed. It does not contact anyone.
func (c *Credentials) Validate() error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	errs := map[string]string{}
	if c.Email == "" {
		errs["email"] = "This field is required."
	} else if !account.ValidEmail(c.Email) {
		errs["email"] = "Enter a valid email address."
	}
	if c.Password == "" {
		errs["password"] = "This field is required."
	}
	if len(errs) > 0 {
		return &account.ValidationError{Fields: errs}
	}
	return nil
}
