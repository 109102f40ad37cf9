// Package app is the root Bubble Tea model. It follows the session machine
// through Watch, routes screens through the guard and runs session actions
// as commands.
package app

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/guard"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
	"github.com/ryanKinoti/LCS-v1/internal/views/dashboard"
	"github.com/ryanKinoti/LCS-v1/internal/views/eventlog"
	"github.com/ryanKinoti/LCS-v1/internal/views/login"
	"github.com/ryanKinoti/LCS-v1/internal/views/register"
	"github.com/ryanKinoti/LCS-v1/internal/views/services"
	"github.com/ryanKinoti/LCS-v1/internal/views/status"
)

// Session is the session machine as the TUI drives it.
type Session interface {
	State() session.State
	Watch() (<-chan session.State, func())
	Login(ctx context.Context, cred session.Credentials) error
	Register(ctx context.Context, req account.RegisterRequest) error
	Logout(ctx context.Context) error
	RefreshUser(ctx context.Context) error
	FetchDashboard(ctx context.Context) *account.Dashboard
}

// Action names carried by actionMsg.
const (
	actionLogin       = "login"
	actionRegister    = "register"
	actionLogout      = "logout"
	actionRefreshUser = "refresh user"
	actionDashboard   = "dashboard"
)

type stateMsg session.State

type sessionClosedMsg struct{}

// actionMsg reports a finished session action.
type actionMsg struct {
	action string
	err    error
}

// Option configures the root model.
type Option func(*Model)

// WithGuard replaces the default route guard.
func WithGuard(g *guard.Guard) Option {
	return func(m *Model) {
		if g != nil {
			m.guard = g
		}
	}
}

// WithMarkdownStyle sets the glamour style of the services screen.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) { m.style = style }
}

func WithLogger(l *logrus.Entry) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}

// Model is the root Bubble Tea model.
type Model struct {
	sess      Session
	guard     *guard.Guard
	log       *logrus.Entry
	style     string
	ctx       context.Context
	cancel    context.CancelFunc
	updates   <-chan session.State
	stopWatch func()

	keys     KeyMap
	width    int
	height   int
	quitting bool

	// Session and navigation.
	state   session.State
	path    string
	back    string
	waiting bool
	busy    string
	showLog bool

	// Sub-views.
	statusBar status.Model
	login     login.Model
	register  register.Model
	dashboard dashboard.Model
	services  services.Model
	events    eventlog.Model
}

// New creates the root model. It subscribes to sess immediately and starts
// on the login screen.
func New(sess Session, cat *catalog.Catalog, opts ...Option) Model {
	ctx, cancel := context.WithCancel(context.Background())
	updates, stop := sess.Watch()
	m := Model{
		sess:      sess,
		guard:     guard.New(guard.DefaultRoutes, nil),
		log:       logging.Discard(),
		ctx:       ctx,
		cancel:    cancel,
		updates:   updates,
		stopWatch: stop,
		keys:      DefaultKeyMap(),
		state:     sess.State(),
		statusBar: status.New(),
		login:     login.New(),
		register:  register.New(),
		dashboard: dashboard.New(),
		events:    eventlog.New(),
	}
	for _, o := range opts {
		o(&m)
	}
	m.services = services.New(cat, m.style)
	m.statusBar.SetState(m.state)
	m.dashboard.SetState(m.state)
	m.navigate(guard.RouteLogin)
	return m
}

// Init starts following the session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.updates), textinput.Blink)
}

func waitForState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return sessionClosedMsg{}
		}
		return stateMsg(st)
	}
}

// run executes fn off the UI goroutine and reports the result as an actionMsg.
func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{action: action, err: fn(ctx)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.login.SetWidth(msg.Width)
		m.register.SetWidth(msg.Width)
		m.services.SetSize(msg.Width, msg.Height-3)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		return m.applyState(session.State(msg))

	case sessionClosedMsg:
		return m.quit()

	case actionMsg:
		return m.handleAction(msg)

	case dashboard.FrameMsg:
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		return m, cmd
	}

	return m.forward(msg)
}

// forward hands msg to the screen that owns input.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.path {
	case guard.RouteLogin:
		m.login, cmd = m.login.Update(msg)
	case guard.RouteRegister:
		m.register, cmd = m.register.Update(msg)
	case guard.RouteServices:
		m.services, cmd = m.services.Update(msg)
	}
	return m, cmd
}

func (m Model) applyState(st session.State) (tea.Model, tea.Cmd) {
	prev := m.state
	m.state = st
	m.events.Transition(prev, st)
	m.statusBar.SetState(st)
	cmds := []tea.Cmd{waitForState(m.updates), m.dashboard.SetState(st)}

	if onAuthForm(m.path) && st.Err != nil && st.Err != prev.Err {
		m.formError(m.path, st.Err)
	}

	if st.Status == session.StatusAuthenticated && onAuthForm(m.path) {
		m.login.Reset()
		m.register.Reset()
		m.navigate(m.guard.AfterLogin(st))
	} else {
		m.navigate(m.path)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleAction(msg actionMsg) (tea.Model, tea.Cmd) {
	if m.busy == msg.action {
		m.busy = ""
	}
	if msg.err == nil {
		m.events.Add(eventlog.KindAction, msg.action+" done")
		return m, nil
	}

	var se *session.Error
	if !errors.As(msg.err, &se) {
		se = &session.Error{Message: msg.err.Error(), Cause: msg.err}
	}
	m.events.Add(eventlog.KindError, msg.action+": "+se.Message)
	m.log.WithError(msg.err).WithField("action", msg.action).Warn("session action failed")

	switch msg.action {
	case actionLogin:
		m.formError(guard.RouteLogin, se)
	case actionRegister:
		m.formError(guard.RouteRegister, se)
	}
	return m, nil
}

func (m *Model) formError(path string, e *session.Error) {
	switch path {
	case guard.RouteLogin:
		m.login.SetError(e)
	case guard.RouteRegister:
		m.register.SetError(e)
	}
}

// navigate moves to path, following guard redirects.
func (m *Model) navigate(path string) {
	from := m.path
	m.waiting = false
	for range 4 {
		if path == guard.RouteNotFound {
			break
		}
		d := m.guard.Check(m.state, path)
		if d.Redirect == "" {
			m.waiting = d.Wait
			break
		}
		path = d.Redirect
	}
	m.path = path
	m.statusBar.Path = path
	if path != from {
		if from == "" {
			from = "start"
		}
		m.events.Add(eventlog.KindNav, from+" -> "+path)
	}
}

func onAuthForm(path string) bool {
	return path == guard.RouteLogin || path == guard.RouteRegister
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	m.stopWatch()
	return m, tea.Quit
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	if m.showLog {
		switch {
		case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.EventLog):
			m.showLog = false
		case key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.EventLog):
		m.showLog = true
		return m, nil
	case key.Matches(msg, m.keys.RefreshUser):
		return m, m.refreshUser()
	case key.Matches(msg, m.keys.OpenCatalog):
		m.openServices()
		return m, nil
	}

	switch m.path {
	case guard.RouteLogin, guard.RouteRegister:
		return m.handleFormKey(msg)

	case guard.RouteServices:
		switch {
		case key.Matches(msg, m.keys.Back):
			m.closeServices()
			return m, nil
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		}
		return m.forward(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Services):
		m.openServices()
	case key.Matches(msg, m.keys.Dashboard):
		if m.state.User == nil || m.busy == actionDashboard {
			return m, nil
		}
		m.busy = actionDashboard
		return m, m.run(actionDashboard, func(ctx context.Context) error {
			m.sess.FetchDashboard(ctx)
			return nil
		})
	case key.Matches(msg, m.keys.Logout):
		if m.busy == actionLogout {
			return m, nil
		}
		m.busy = actionLogout
		return m, m.run(actionLogout, m.sess.Logout)
	case key.Matches(msg, m.keys.Back):
		if m.path == guard.RouteNotFound {
			m.navigate(guard.Home(m.state.Role()))
		}
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	onLogin := m.path == guard.RouteLogin
	switch {
	case key.Matches(msg, m.keys.NextField):
		if onLogin {
			return m, m.login.Next()
		}
		return m, m.register.Next()
	case key.Matches(msg, m.keys.PrevField):
		if onLogin {
			return m, m.login.Prev()
		}
		return m, m.register.Prev()
	case key.Matches(msg, m.keys.ToggleForm):
		if onLogin {
			m.navigate(guard.RouteRegister)
		} else {
			m.navigate(guard.RouteLogin)
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}
	return m.forward(msg)
}

// submit validates the active form and starts the matching action.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy == actionLogin || m.busy == actionRegister {
		return m, nil
	}
	if m.path == guard.RouteLogin {
		cred, ok := m.login.Credentials()
		if !ok {
			return m, nil
		}
		m.busy = actionLogin
		return m, m.run(actionLogin, func(ctx context.Context) error {
			return m.sess.Login(ctx, cred)
		})
	}
	req, ok := m.register.Request()
	if !ok {
		return m, nil
	}
	m.busy = actionRegister
	return m, m.run(actionRegister, func(ctx context.Context) error {
		return m.sess.Register(ctx, req)
	})
}

// refreshUser re-resolves the profile. Without a provider session there is
// nothing to refresh.
func (m Model) refreshUser() tea.Cmd {
	if m.state.Identity == nil {
		return nil
	}
	return m.run(actionRefreshUser, m.sess.RefreshUser)
}

func (m *Model) openServices() {
	if m.path == guard.RouteServices {
		return
	}
	m.back = m.path
	m.navigate(guard.RouteServices)
}

func (m *Model) closeServices() {
	back := m.back
	if back == "" || back == guard.RouteNotFound {
		back = guard.Home(m.state.Role())
	}
	m.back = ""
	m.navigate(back)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch {
	case m.showLog:
		body = m.events.View(m.width, m.height-3)
	case m.waiting:
		body = theme.StyleDimmed.Render("  Checking your session...")
	case m.path == guard.RouteLogin:
		body = lipgloss.JoinVertical(lipgloss.Left, m.login.View(), m.busyLine())
	case m.path == guard.RouteRegister:
		body = lipgloss.JoinVertical(lipgloss.Left, m.register.View(), m.busyLine())
	case m.path == guard.RouteServices:
		body = m.services.View()
	case m.path == guard.RouteNotFound:
		body = lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("  Page not found"),
			theme.StyleDimmed.Render("  esc:home  q:quit"))
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.dashboard.View(),
			"",
			theme.StyleDimmed.Render("  d:refresh dashboard  s:services  ctrl+r:refresh user  L:log out  ctrl+l:session log  q:quit"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), body)
}

func (m Model) busyLine() string {
	if m.state.Status == session.StatusAuthenticating || m.busy == actionLogin || m.busy == actionRegister {
		return theme.StyleDimmed.Render("  Signing in...")
	}
	return ""
}
