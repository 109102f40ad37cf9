package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/client"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

// fakeProvider delivers notifications from its own goroutine, in order,
// like the real identity client.
type fakeProvider struct {
	mu         sync.Mutex
	listeners  map[int]func(*identity.Session)
	nextID     int
	session    *identity.Session
	passwords  map[string]string
	silent     bool // sign in without notifying
	signOutErr error
	signIns    int
	signOuts   int

	q    chan func()
	done chan struct{}
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{
		listeners: make(map[int]func(*identity.Session)),
		passwords: map[string]string{},
		q:         make(chan func(), 64),
		done:      make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for fn := range p.q {
			fn()
		}
	}()
	return p
}

func (p *fakeProvider) close() {
	close(p.q)
	<-p.done
}

func (p *fakeProvider) OnSessionChange(fn func(*identity.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) emit(s *identity.Session) {
	p.q <- func() {
		p.mu.Lock()
		fns := make([]func(*identity.Session), 0, len(p.listeners))
		for _, fn := range p.listeners {
			fns = append(fns, fn)
		}
		p.mu.Unlock()
		for _, fn := range fns {
			fn(s.Clone())
		}
	}
}

// flush waits until every notification queued so far has been handled.
func (p *fakeProvider) flush() {
	done := make(chan struct{})
	p.q <- func() { close(done) }
	<-done
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	p.signIns++
	want, ok := p.passwords[email]
	if !ok || want != password {
		p.mu.Unlock()
		return nil, &identity.Error{Code: identity.CodeInvalidCredentials, StatusCode: http.StatusBadRequest}
	}
	s := &identity.Session{UID: "uid-" + email, Email: email, IDToken: "tok-" + email}
	p.session = s
	silent := p.silent
	p.mu.Unlock()
	if !silent {
		p.emit(s)
	}
	return s.Clone(), nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	p.signOuts++
	err := p.signOutErr
	p.mu.Unlock()
	if had {
		p.emit(nil)
	}
	return err
}

func (p *fakeProvider) current() *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.Clone()
}

func (p *fakeProvider) counts() (signIns, signOuts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signIns, p.signOuts
}

// fakeAPI resolves the provider's current user from an in-memory table.
type fakeAPI struct {
	provider *fakeProvider

	mu          sync.Mutex
	users       map[string]*account.BackendUser
	dashboards  map[string]*account.Dashboard
	dashErr     error
	registerErr error
	registered  []account.RegisterRequest
	// gates block CurrentUser for an email until closed; entered reports
	// that a gated call has started.
	gates   map[string]chan struct{}
	entered chan string
	// hang makes CurrentUser wait for its context.
	hang bool
}

func newFakeAPI(p *fakeProvider) *fakeAPI {
	return &fakeAPI{
		provider:   p,
		users:      map[string]*account.BackendUser{},
		dashboards: map[string]*account.Dashboard{},
		gates:      map[string]chan struct{}{},
		entered:    make(chan string, 8),
	}
}

func (a *fakeAPI) addUser(email string, role account.Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[email] = &account.BackendUser{
		User: account.User{ID: int64(len(a.users) + 1), Email: email, FullName: "Test User"},
		Role: role,
	}
	a.dashboards[email] = dashboardFor(role, 1)
}

func dashboardFor(role account.Role, n int) *account.Dashboard {
	switch role {
	case account.RoleAdmin:
		return &account.Dashboard{Role: role, Admin: &account.AdminDashboard{
			RepairStatistics: account.RepairStatistics{TotalRepairs: n},
		}}
	case account.RoleStaff:
		return &account.Dashboard{Role: role, Staff: &account.StaffDashboard{AssignedRepairs: n}}
	}
	return &account.Dashboard{Role: role, Customer: &account.CustomerDashboard{TotalBookings: n}}
}

func (a *fakeAPI) CurrentUser(ctx context.Context) (*account.BackendUser, error) {
	s := a.provider.current()
	if s == nil {
		return nil, &client.APIError{Method: "GET", Path: "/accounts/user/me/", StatusCode: http.StatusUnauthorized}
	}

	a.mu.Lock()
	gate := a.gates[s.Email]
	hang := a.hang
	a.mu.Unlock()
	if gate != nil {
		a.entered <- s.Email
		<-gate
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[s.Email]
	if !ok {
		return nil, &client.APIError{Method: "GET", Path: "/accounts/user/me/", StatusCode: http.StatusNotFound, Message: "User not found"}
	}
	return u.Clone(), nil
}

func (a *fakeAPI) Dashboard(context.Context) (*account.Dashboard, error) {
	s := a.provider.current()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dashErr != nil {
		return nil, a.dashErr
	}
	if s == nil {
		return nil, &client.APIError{StatusCode: http.StatusUnauthorized}
	}
	return a.dashboards[s.Email].Clone(), nil
}

func (a *fakeAPI) Register(_ context.Context, req account.RegisterRequest) (*account.RegisterResponse, error) {
	a.mu.Lock()
	a.registered = append(a.registered, req)
	err := a.registerErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	role := account.RoleCustomer
	if req.ProfileType == account.ProfileStaff {
		role = account.RoleStaff
	}
	a.addUser(req.Email, role)
	a.provider.mu.Lock()
	a.provider.passwords[req.Email] = req.Password
	a.provider.mu.Unlock()
	return &account.RegisterResponse{
		Message: "Successfully created " + string(req.ProfileType) + " account",
		Data:    account.RegisterData{Email: req.Email, ProfileType: req.ProfileType, LoginToken: "lt"},
	}, nil
}
