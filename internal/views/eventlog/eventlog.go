// Package eventlog provides a scrollable overlay listing session
// transitions, navigation and action results.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindAuth   = "auth"
	KindNav    = "nav"
	KindAction = "act"
	KindError  = "err"
)

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
}

type Model struct {
	Entries []Entry
	Offset  int // scroll offset from the bottom
	now     func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// Add appends an entry and caps the buffer. New entries scroll to the bottom.
func (m *Model) Add(kind, message string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.Entries = append(m.Entries, Entry{Time: now(), Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Transition records what changed between two snapshots. Snapshots that
// differ only in fields the log does not track add nothing.
func (m *Model) Transition(prev, next session.State) {
	if prev.Status != next.Status {
		msg := fmt.Sprintf("%s -> %s", prev.Status, next.Status)
		if next.User != nil && next.Status == session.StatusAuthenticated {
			msg += fmt.Sprintf(" as %s (%s)", next.User.User.Email, next.User.Role)
		}
		m.Add(KindAuth, msg)
	}
	if next.Err != nil && (prev.Err == nil || prev.Err.Message != next.Err.Message) {
		m.Add(KindError, fmt.Sprintf("%s: %s", next.Err.Kind, next.Err.Message))
	}
	if next.DashboardErr != nil && (prev.DashboardErr == nil || prev.DashboardErr.Message != next.DashboardErr.Message) {
		m.Add(KindError, fmt.Sprintf("%s: %s", next.DashboardErr.Kind, next.DashboardErr.Message))
	}
	if next.Dashboard != nil && prev.Dashboard == nil {
		m.Add(KindAuth, fmt.Sprintf("%s dashboard loaded", next.Dashboard.Role))
	}
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := max(len(m.Entries)-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the newest entries that fit in height, shifted by Offset.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.StyleHeader.Render(" SESSION LOG "),
		theme.StyleDimmed.Render(fmt.Sprintf("  %d entries", len(m.Entries))),
	)
	footer := theme.StyleDimmed.Render("↑/↓ scroll · esc close")

	var body string
	if len(m.Entries) == 0 {
		body = theme.StyleDimmed.Render("No events recorded yet.")
	} else {
		end := max(len(m.Entries)-m.Offset, 0)
		window := m.Entries[max(end-rows, 0):end]
		lines := make([]string, len(window))
		for i, e := range window {
			lines[i] = renderEntry(e, innerW-2)
		}
		body = strings.Join(lines, "\n")
		if m.Offset > 0 {
			body += "\n" + theme.StyleDimmed.Render(fmt.Sprintf("… %d newer", m.Offset))
		}
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", footer))
}

func renderEntry(e Entry, width int) string {
	stamp := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
	badge := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Bold(true).Render(fmt.Sprintf("%-4s", e.Kind))
	room := width - 14
	msg := []rune(e.Message)
	if room > 1 && len(msg) > room {
		msg = append(msg[:room-1], '…')
	}
	return stamp + " " + badge + " " + string(msg)
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindAuth:
		return theme.ColorHealthy
	case KindError:
		return theme.ColorDanger
	case KindNav:
		return theme.ColorAccent
	case KindAction:
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
