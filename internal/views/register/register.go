// Package register is the account creation screen.
package register

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
	"github.com/ryanKinoti/LCS-v1/internal/views/form"
)

type Model struct {
	form form.Model
}

func New() Model {
	f := form.New("Create account",
		form.Field{Key: "email", Label: "Email", Placeholder: "you@example.com"},
		form.Field{Key: "first_name", Label: "First name"},
		form.Field{Key: "last_name", Label: "Last name"},
		form.Field{Key: "phone_number", Label: "Phone", Placeholder: "+254712345678"},
		form.Field{Key: "password", Label: "Password", Secret: true},
		form.Field{Key: "confirm_password", Label: "Confirm password", Secret: true},
		form.Field{Key: "profile_type", Label: "Account type", Placeholder: "customer or staff"},
	)
	f.SetValue("profile_type", string(account.ProfileCustomer))
	return Model{form: f}
}

func (m *Model) SetWidth(w int) { m.form.Width = w }

func (m *Model) Next() tea.Cmd { return m.form.Next() }
func (m *Model) Prev() tea.Cmd { return m.form.Prev() }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

// Request builds and validates the registration request. Problems are
// shown next to their fields and ok is false.
func (m *Model) Request() (account.RegisterRequest, bool) {
	req := account.RegisterRequest{
		Email:           m.form.Value("email"),
		FirstName:       m.form.Value("first_name"),
		LastName:        m.form.Value("last_name"),
		PhoneNumber:     m.form.Value("phone_number"),
		Password:        m.form.Value("password"),
		ConfirmPassword: m.form.Value("confirm_password"),
		ProfileType:     account.ProfileType(m.form.Value("profile_type")),
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		var ve *account.ValidationError
		if errors.As(err, &ve) {
			m.form.SetErrors(ve.Fields)
		}
		return req, false
	}
	m.form.SetErrors(nil)
	return req, true
}

// SetError shows a failed registration.
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

func (m *Model) Reset() {
	m.form.Clear()
}

func (m Model) Error(key string) string { return m.form.Error(key) }

func (m Model) View() string {
	help := theme.StyleDimmed.Render("tab:next field  enter:create  ctrl+n:sign in instead  f2:services  ctrl+c:quit")
	return lipgloss.JoinVertical(lipgloss.Left, m.form.View(), help)
}
