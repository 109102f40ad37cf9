package guard

import (
	"strings"
	"sync"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
)

// Well-known routes.
const (
	RouteLogin    = "/login"
	RouteRegister = "/register"
	RouteServices = "/services"
	RouteCustomer = "/dashboard"
	RouteStaff    = "/staff"
	RouteAdmin    = "/admin"
	RouteNotFound = "/404"

	redirectKey = "redirectAfterLogin"
)

// Route describes who may open a path. A route with no roles is public.
type Route struct {
	Path  string
	Roles []account.Role
}

func (r Route) Public() bool { return len(r.Roles) == 0 }

func (r Route) allows(role account.Role) bool {
	for _, v := range r.Roles {
		if v == role {
			return true
		}
	}
	return false
}

// DefaultRoutes is the route table of the terminal app.
var DefaultRoutes = []Route{
	{Path: RouteLogin},
	{Path: RouteRegister},
	{Path: RouteServices},
	{Path: RouteCustomer, Roles: []account.Role{account.RoleCustomer}},
	{Path: RouteStaff, Roles: []account.Role{account.RoleStaff, account.RoleAdmin}},
	{Path: RouteAdmin, Roles: []account.Role{account.RoleAdmin}},
}

// Home returns the landing route for role.
func Home(role account.Role) string {
	switch role {
	case account.RoleAdmin:
		return RouteAdmin
	case account.RoleStaff:
		return RouteStaff
	case account.RoleCustomer:
		return RouteCustomer
	}
	return RouteLogin
}

// Decision is the outcome of a route check. Wait means the session is not
// settled yet and the caller should show a loading screen.
type Decision struct {
	Allow    bool
	Redirect string
	Wait     bool
}

// RedirectStore keeps the one path to return to after login.
type RedirectStore interface {
	Set(key, path string)
	// Take returns the stored path and deletes it.
	Take(key string) (string, bool)
}

// MemoryStore is a RedirectStore for a single process.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Set(key, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = path
}

func (s *MemoryStore) Take(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[key]
	delete(s.m, key)
	return p, ok
}

// Guard decides which screen a session state may see.
type Guard struct {
	routes map[string]Route
	store  RedirectStore
}

// New builds a guard over routes. A nil store gets a MemoryStore.
func New(routes []Route, store RedirectStore) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	g := &Guard{routes: make(map[string]Route, len(routes)), store: store}
	for _, r := range routes {
		g.routes[r.Path] = r
	}
	return g
}

// Check decides whether st may open path.
func (g *Guard) Check(st session.State, path string) Decision {
	route, ok := g.routes[normalize(path)]
	if !ok {
		return Decision{Redirect: RouteNotFound}
	}
	if route.Public() {
		// Signed-in users skip the auth forms.
		if st.Status == session.StatusAuthenticated && (route.Path == RouteLogin || route.Path == RouteRegister) {
			return Decision{Redirect: Home(st.Role())}
		}
		return Decision{Allow: true}
	}

	if !st.Initialized || st.Status == session.StatusAuthenticating {
		return Decision{Wait: true}
	}
	if st.Status != session.StatusAuthenticated {
		g.store.Set(redirectKey, route.Path)
		return Decision{Redirect: RouteLogin}
	}
	if !route.allows(st.Role()) {
		return Decision{Redirect: Home(st.Role())}
	}
	return Decision{Allow: true}
}

// AfterLogin returns where an authenticated user should land: the path
// saved by the last rejected Check if the role may open it, otherwise the
// role's home. The saved path is consumed either way.
func (g *Guard) AfterLogin(st session.State) string {
	home := Home(st.Role())
	saved, ok := g.store.Take(redirectKey)
	if !ok {
		return home
	}
	if route, known := g.routes[saved]; known && (route.Public() || route.allows(st.Role())) && !isAuthForm(saved) {
		return saved
	}
	return home
}

func isAuthForm(path string) bool {
	return path == RouteLogin || path == RouteRegister
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
