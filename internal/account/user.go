package account

import "fmt"

// User is the minimal backend user record.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Profile is the role-specific profile attached to a user. Customer
// profiles carry CompanyName, staff profiles carry Specializations.
type Profile struct {
	ID              int64  `json:"id"`
	Role            string `json:"role"`
	CompanyName     string `json:"company_name,omitempty"`
	Specializations string `json:"specializations,omitempty"`
}

// BackendUser is the resolved profile returned by GET /accounts/user/me/.
type BackendUser struct {
	User    User    `json:"user"`
	Profile Profile `json:"profile"`
	Role    Role    `json:"role"`
}

// Validate checks the fields the session layer relies on.
func (u *BackendUser) Validate() error {
	if u == nil {
		return fmt.Errorf("empty user payload")
	}
	if u.User.Email == "" {
		return fmt.Errorf("user payload missing email")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("user has no usable role %q", u.Role)
	}
	return nil
}

// Clone returns a copy that shares no memory with u.
func (u *BackendUser) Clone() *BackendUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
