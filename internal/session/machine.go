package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

const DefaultResolveTimeout = 15 * time.Second

// IdentityProvider is the identity service as the machine uses it.
// Notifications must be delivered in order from a goroutine other than the
// caller of SignInWithPassword or SignOut.
type IdentityProvider interface {
	OnSessionChange(fn func(*identity.Session)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context) error
}

// ProfileAPI is the backend accounts API as the machine uses it.
type ProfileAPI interface {
	CurrentUser(ctx context.Context) (*account.BackendUser, error)
	Dashboard(ctx context.Context) (*account.Dashboard, error)
	Register(ctx context.Context, req account.RegisterRequest) (*account.RegisterResponse, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithResolveTimeout bounds every external call and the wait for the
// provider to confirm a login.
func WithResolveTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLoginLimiter throttles Login. A nil limiter disables throttling.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(m *Machine) { m.limiter = l }
}

func WithLogger(l *logrus.Entry) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// LoginLimiter allows perMinute attempts per minute with an equal burst.
// It returns nil when perMinute <= 0.
func LoginLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Machine owns the authentication lifecycle. It is the only writer of its
// State; readers take snapshots with State or Watch.
//
// Only provider notifications move the machine into StatusAuthenticated.
// Every resolution and every action runs under a sequence number, and a
// result whose sequence number is no longer current is dropped.
type Machine struct {
	provider IdentityProvider
	api      ProfileAPI
	timeout  time.Duration
	limiter  *rate.Limiter
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu serializes provider notifications and RefreshUser.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	inflight    int
	watchers    map[int]chan State
	nextWatcher int
	watchdog    *time.Timer
	unsubscribe func()
	closed      bool

	initOnce sync.Once
	initCh   chan struct{}
}

// New builds a machine in StatusIdle. Call Start to subscribe to the provider.
func New(provider IdentityProvider, api ProfileAPI, opts ...Option) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		provider: provider,
		api:      api,
		timeout:  DefaultResolveTimeout,
		limiter:  LoginLimiter(5),
		log:      logging.Discard(),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[int]chan State),
		initCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start subscribes to provider session changes.
func (m *Machine) Start() {
	unsub := m.provider.OnSessionChange(m.handleSession)
	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()
}

// Close unsubscribes, cancels in-flight calls, and closes every Watch channel.
func (m *Machine) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.closed = true
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.cancel()
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Initialized is closed once the first provider notification has been
// fully processed.
func (m *Machine) Initialized() <-chan struct{} {
	return m.initCh
}

// Watch returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate states. The channel starts with the current
// snapshot and is closed by cancel or Close. After Close it is returned
// already closed.
func (m *Machine) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.nextWatcher++
	id := m.nextWatcher
	m.watchers[id] = ch
	ch <- m.state.Clone()
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.watchers[id]; ok {
			close(c)
			delete(m.watchers, id)
		}
	}
}

// Login asks the provider for a session. It never marks the machine
// authenticated; the provider's notification does that.
func (m *Machine) Login(ctx context.Context, cred Credentials) error {
	if err := cred.Validate(); err != nil {
		return Normalize(KindValidation, err)
	}
	if m.limiter != nil && !m.limiter.Allow() {
		m.commit(0, patch{status: some(StatusError), err: some(ErrTooManyAttempts)})
		m.log.Warn("login throttled")
		return ErrTooManyAttempts
	}

	seq := m.begin()
	m.commit(seq, patch{status: some(StatusAuthenticating), err: some[*Error](nil)})

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	_, err := m.provider.SignInWithPassword(cctx, cred.Email, cred.Password)
	cancel()
	if err != nil {
		e := Normalize(KindAuthentication, err)
		m.log.WithError(err).WithField("kind", e.Kind).Warn("login failed")
		m.failLogin(seq, e)
		return e
	}

	m.armWatchdog(seq)
	return nil
}

// failLogin records a rejected sign-in. Everything tied to the previous
// user is dropped, and a provider session that was live before the attempt
// is signed out, so the provider never holds a session without a backend
// user.
func (m *Machine) failLogin(seq uint64, e *Error) {
	m.mu.Lock()
	held := m.state.Identity != nil
	m.mu.Unlock()

	p := cleared(StatusError)
	p.err = some(e)
	if !m.commit(seq, p) || !held {
		return
	}
	octx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.provider.SignOut(octx); err != nil {
		m.log.WithError(err).Warn("sign-out after failed login failed")
	}
}

// Register validates req, creates the backend account, then logs in with
// the same credentials. Validation failures cause no transition.
func (m *Machine) Register(ctx context.Context, req account.RegisterRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return Normalize(KindValidation, err)
	}

	seq := m.begin()
	m.commit(seq, patch{status: some(StatusAuthenticating), err: some[*Error](nil)})

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	_, err := m.api.Register(cctx, req)
	cancel()
	if err != nil {
		e := Normalize(KindRegistration, err)
		m.commit(seq, patch{status: some(StatusError), err: some(e)})
		m.log.WithError(err).Warn("registration failed")
		return e
	}
	m.log.WithField("profile_type", req.ProfileType).Info("account registered")

	// The backend account exists from here on even if login fails.
	return m.Login(ctx, Credentials{Email: req.Email, Password: req.Password})
}

// Logout signs out of the provider and clears all user data. The machine
// always ends in StatusIdle; a failed server-side sign-out is returned and
// kept in State.Err.
func (m *Machine) Logout(ctx context.Context) error {
	seq := m.begin()
	m.stopWatchdog()
	m.commit(seq, patch{status: some(StatusAuthenticating)})

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.provider.SignOut(cctx)
	cancel()

	p := cleared(StatusIdle)
	var e *Error
	if err != nil {
		e = Normalize(KindSignOut, err)
		m.log.WithError(err).Warn("sign-out failed; local session cleared anyway")
	}
	p.err = some(e)
	m.commit(seq, p)
	if e != nil {
		return e
	}
	return nil
}

// RefreshUser re-runs profile resolution for the current provider session.
// It is a no-op when there is none.
func (m *Machine) RefreshUser(ctx context.Context) error {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	s := m.state.Identity.Clone()
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	seq := m.begin()
	m.commit(seq, patch{status: some(StatusAuthenticating)})
	return m.resolve(ctx, seq, s)
}

// FetchDashboard loads the role-shaped dashboard for the resolved user. It
// returns nil on failure and records the error in State.DashboardErr;
// Status and User are left alone.
func (m *Machine) FetchDashboard(ctx context.Context) *account.Dashboard {
	m.mu.Lock()
	user := m.state.User.Clone()
	seq := m.state.Seq
	m.mu.Unlock()

	if user == nil {
		m.commit(0, patch{dashboardErr: some(ErrNotAuthenticated)})
		return nil
	}
	return m.fetchDashboard(ctx, seq, user.Role)
}

// handleSession processes one provider notification.
func (m *Machine) handleSession(s *identity.Session) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	defer m.markInitialized()

	if s == nil {
		m.handleSessionEnd()
		return
	}

	seq := m.begin()
	m.stopWatchdog()
	m.commit(seq, patch{status: some(StatusAuthenticating), identity: some(s)})
	m.log.WithField("uid", s.UID).Debug("provider session received")
	_ = m.resolve(m.ctx, seq, s)
}

// handleSessionEnd applies a "no session" notification. When nothing is
// held locally (startup, after logout, after a forced sign-out) the state
// is left as is.
func (m *Machine) handleSessionEnd() {
	m.mu.Lock()
	held := m.state.Identity != nil || m.state.User != nil
	m.mu.Unlock()

	if !held {
		return
	}
	// No new sequence number: a Logout racing this notification must still
	// be able to record its own outcome.
	m.stopWatchdog()
	m.commit(0, cleared(StatusIdle))
	m.log.Info("provider session ended")
}

// resolve fetches the backend user for s and, on success, the dashboard.
// A failure forces a provider sign-out.
func (m *Machine) resolve(ctx context.Context, seq uint64, s *identity.Session) error {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	user, err := m.api.CurrentUser(cctx)
	cancel()
	if err == nil {
		err = user.Validate()
	}
	if err != nil {
		e := Normalize(KindProfileResolution, err)
		p := cleared(StatusError)
		p.err = some(e)
		if !m.commit(seq, p) {
			return nil
		}
		m.log.WithError(err).WithField("uid", s.UID).Error("profile resolution failed; signing out")

		octx, ocancel := context.WithTimeout(context.Background(), m.timeout)
		if serr := m.provider.SignOut(octx); serr != nil {
			m.log.WithError(serr).Warn("forced sign-out failed")
		}
		ocancel()
		return e
	}

	if !m.commit(seq, patch{
		status:   some(StatusAuthenticated),
		identity: some(s),
		user:     some(user),
		err:      some[*Error](nil),
	}) {
		return nil
	}
	m.log.WithFields(logrus.Fields{"uid": s.UID, "role": user.Role}).Info("session authenticated")

	m.fetchDashboard(ctx, seq, user.Role)
	return nil
}

func (m *Machine) fetchDashboard(ctx context.Context, seq uint64, role account.Role) *account.Dashboard {
	m.commit(0, patch{inflight: 1})
	defer m.commit(0, patch{inflight: -1})

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	d, err := m.api.Dashboard(cctx)
	cancel()
	if err == nil {
		err = d.Validate(role)
	}
	if err != nil {
		e := Normalize(KindDashboard, err)
		m.commit(seq, patch{dashboardErr: some(e)})
		m.log.WithError(err).Warn("dashboard fetch failed")
		return nil
	}
	if !m.commit(seq, patch{dashboard: some(d), dashboardErr: some[*Error](nil)}) {
		return nil
	}
	return d.Clone()
}

// begin starts a new resolution or action and returns its sequence number.
func (m *Machine) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Seq++
	return m.state.Seq
}

// commit merges p into the state if seq is still current (seq 0 always
// applies) and publishes the result. It reports whether p was applied.
func (m *Machine) commit(seq uint64, p patch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != 0 && seq != m.state.Seq {
		m.log.WithFields(logrus.Fields{"seq": seq, "current": m.state.Seq}).Debug("dropping stale update")
		return false
	}

	prev := m.state.Status
	next := m.state
	if p.status.set {
		next.Status = p.status.v
	}
	if p.identity.set {
		next.Identity = p.identity.v.Clone()
	}
	if p.user.set {
		next.User = p.user.v.Clone()
	}
	if p.dashboard.set {
		next.Dashboard = p.dashboard.v.Clone()
	}
	if p.initialized.set && p.initialized.v {
		next.Initialized = true
	}
	if p.err.set {
		next.Err = p.err.v
	}
	if p.dashboardErr.set {
		next.DashboardErr = p.dashboardErr.v
	}
	m.inflight += p.inflight
	next.DashboardLoading = m.inflight > 0

	// Invariants hold after every transition.
	if next.Status == StatusIdle {
		next.Identity, next.User, next.Dashboard = nil, nil, nil
	}
	if next.Status == StatusAuthenticated && next.User == nil {
		next.Status = StatusError
		next.Err = &Error{Kind: KindProfileResolution, Message: fallbackMessages[KindProfileResolution]}
	}
	if next.Dashboard != nil && (next.User == nil || next.Dashboard.Validate(next.User.Role) != nil) {
		next.Dashboard = nil
	}

	m.state = next
	if prev != next.Status {
		m.log.WithFields(logrus.Fields{"from": prev, "to": next.Status, "seq": next.Seq}).Debug("status changed")
	}
	m.publishLocked()
	return true
}

func (m *Machine) publishLocked() {
	for _, ch := range m.watchers {
		snap := m.state.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (m *Machine) markInitialized() {
	m.initOnce.Do(func() {
		m.commit(0, patch{initialized: some(true)})
		close(m.initCh)
	})
}

// armWatchdog forces StatusError if no provider notification supersedes
// the login identified by seq within the resolve timeout.
func (m *Machine) armWatchdog(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = time.AfterFunc(m.timeout, func() {
		if m.commit(seq, patch{status: some(StatusError), err: some(ErrSessionTimeout)}) {
			m.log.WithField("seq", seq).Warn("no provider session after login")
		}
	})
}

func (m *Machine) stopWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}
