// Package login is the sign-in screen.
package login

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
	"github.com/ryanKinoti/LCS-v1/internal/views/form"
)

type Model struct {
	form form.Model
}

func New() Model {
	return Model{form: form.New("Sign in",
		form.Field{Key: "email", Label: "Email", Placeholder: "you@example.com"},
		form.Field{Key: "password", Label: "Password", Secret: true},
	)}
}

func (m *Model) SetWidth(w int) { m.form.Width = w }

func (m *Model) Next() tea.Cmd { return m.form.Next() }
func (m *Model) Prev() tea.Cmd { return m.form.Prev() }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

// Credentials returns what was typed. Problems are shown on the form and
// ok is false.
func (m *Model) Credentials() (session.Credentials, bool) {
	cred := session.Credentials{Email: m.form.Value("email"), Password: m.form.Value("password")}
	if err := cred.Validate(); err != nil {
		m.SetError(session.Normalize(session.KindValidation, err))
		return cred, false
	}
	m.form.SetErrors(nil)
	return cred, true
}

// SetError shows a login failure. Field errors go next to their field.
func (m *Model) SetError(e *session.Error) {
	if e == nil {
		m.form.SetErrors(nil)
		return
	}
	if len(e.Fields) > 0 {
		m.form.SetErrors(e.Fields)
		return
	}
	m.form.SetErrors(nil)
	m.form.SetBanner(e.Message)
}

// Reset clears messages and the password.
func (m *Model) Reset() {
	m.form.Clear()
}

func (m Model) Error(key string) string { return m.form.Error(key) }

func (m Model) View() string {
	help := theme.StyleDimmed.Render("tab:next field  enter:sign in  ctrl+n:create account  f2:services  ctrl+c:quit")
	return lipgloss.JoinVertical(lipgloss.Left, m.form.View(), help)
}
