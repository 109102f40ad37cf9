package account

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

const minPasswordLength = 8

// RegisterRequest is the body of POST /accounts/register/.
type RegisterRequest struct {
	Email           string      `json:"email"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	PhoneNumber     string      `json:"phone_number,omitempty"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirm_password"`
	ProfileType     ProfileType `json:"profile_type"`
}

// RegisterResponse is the 201 body of POST /accounts/register/.
type RegisterResponse struct {
	Message string       `json:"message"`
	Data    RegisterData `json:"data"`
}

type RegisterData struct {
	Email       string      `json:"email"`
	ProfileType ProfileType `json:"profile_type"`
	LoginToken  string      `json:"login_token"`
}

// ValidationError maps field names to human-readable problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for name, if any.
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// Normalize trims whitespace, lowercases the email, and strips formatting
// from the phone number.
func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = normalizePhone(r.PhoneNumber)
	if r.ProfileType == "" {
		r.ProfileType = ProfileCustomer
	}
	r.ProfileType = ProfileType(strings.ToLower(string(r.ProfileType)))
}

// Validate returns a *ValidationError describing every invalid field, or nil.
func (r RegisterRequest) Validate() error {
	errs := map[string]string{}

	if r.Email == "" {
		errs["email"] = "This field is required."
	} else if !ValidEmail(r.Email) {
		errs["email"] = "Enter a valid email address."
	}
	if r.FirstName == "" {
		errs["first_name"] = "This field is required."
	}
	if r.LastName == "" {
		errs["last_name"] = "This field is required."
	}
	if r.PhoneNumber != "" && !phonePattern.MatchString(r.PhoneNumber) {
		errs["phone_number"] = "Phone number must be entered in the format: '+999999999'. Up to 15 digits allowed."
	}
	if msg := passwordProblem(r.Password); msg != "" {
		errs["password"] = msg
	}
	if r.Password != r.ConfirmPassword {
		errs["confirm_password"] = "Passwords do not match."
	}
	if !r.ProfileType.Valid() {
		errs["profile_type"] = `Must be "customer" or "staff".`
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidEmail reports whether s is a bare email address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func passwordProblem(p string) string {
	if p == "" {
		return "This field is required."
	}
	if len(p) < minPasswordLength {
		return fmt.Sprintf("Password must be at least %d characters long.", minPasswordLength)
	}
	digits := 0
	for _, c := range p {
		if unicode.IsDigit(c) {
			digits++
		}
	}
	if digits == len([]rune(p)) {
		return "Password cannot be entirely numeric."
	}
	if digits == 0 {
		return "Password must contain at least one number."
	}
	return ""
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return "+" + b.String()
}
