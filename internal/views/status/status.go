package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Status session.Status
	Email  string
	Role   account.Role
	Err    string
	Path   string
	Width  int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// SetState copies what the bar shows out of st.
func (m *Model) SetState(st session.State) {
	m.Status = st.Status
	m.Email = ""
	m.Role = st.Role()
	if st.User != nil {
		m.Email = st.User.User.Email
	} else if st.Identity != nil {
		m.Email = st.Identity.Email
	}
	m.Err = ""
	if st.Err != nil {
		m.Err = st.Err.Message
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := lipgloss.NewStyle().Foreground(theme.StatusColor(m.Status)).
		Render(fmt.Sprintf("%s %s", theme.StatusGlyph(m.Status), account.Label(m.Status.String())))

	if m.Email != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorBright).Render(m.Email)
	}
	if m.Role != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.RoleColor(m.Role)).Render(account.Label(string(m.Role)))
	}
	if m.Path != "" {
		content += sep + theme.StyleDimmed.Render(m.Path)
	}
	if m.Err != "" {
		content += sep + theme.StyleError.Render(m.Err)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
