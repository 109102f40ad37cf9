package session

import (
	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

// State is a read-only snapshot of the session. Snapshots handed out by a
// Machine share no memory with it.
type State struct {
	Status           Status               `json:"status"`
	Identity         *identity.Session    `json:"identity,omitempty"`
	User             *account.BackendUser `json:"user,omitempty"`
	Dashboard        *account.Dashboard   `json:"dashboard,omitempty"`
	DashboardLoading bool                 `json:"dashboardLoading,omitempty"`
	Initialized      bool                 `json:"initialized"`
	Err              *Error               `json:"error,omitempty"`
	DashboardErr     *Error               `json:"dashboardError,omitempty"`
	Seq              uint64               `json:"seq"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.Identity = s.Identity.Clone()
	c.User = s.User.Clone()
	c.Dashboard = s.Dashboard.Clone()
	return c
}

// Role returns the resolved role, or "" when no user is resolved.
func (s State) Role() account.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// opt is one optional field of a patch.
type opt[T any] struct {
	set bool
	v   T
}

func some[T any](v T) opt[T] {
	return opt[T]{set: true, v: v}
}

// patch is a shallow update: only fields that are set are written.
type patch struct {
	status       opt[Status]
	identity     opt[*identity.Session]
	user         opt[*account.BackendUser]
	dashboard    opt[*account.Dashboard]
	initialized  opt[bool]
	err          opt[*Error]
	dashboardErr opt[*Error]
	// inflight adjusts the count of running dashboard fetches.
	inflight int
}

// cleared is the patch that drops everything tied to a user.
func cleared(status Status) patch {
	return patch{
		status:       some(status),
		identity:     some[*identity.Session](nil),
		user:         some[*account.BackendUser](nil),
		dashboard:    some[*account.Dashboard](nil),
		dashboardErr: some[*Error](nil),
	}
}
