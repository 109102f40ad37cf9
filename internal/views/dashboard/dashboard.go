// Package dashboard renders the role-specific dashboard: a stats row,
// spring-animated share bars, and for admins the financial and booking
// tables.
package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
)

const (
	fps       = 60
	frequency = 6.0
	damping   = 0.8
	settleEps = 0.001
)

// FrameMsg advances the bar animation by one frame.
type FrameMsg struct{}

type bar struct {
	label  string
	color  lipgloss.Color
	value  int
	target float64
	pos    float64
	vel    float64
}

func (b bar) settled() bool {
	return math.Abs(b.pos-b.target) < settleEps && math.Abs(b.vel) < settleEps
}

// Model holds the dashboard state.
type Model struct {
	Width int

	user    *account.BackendUser
	dash    *account.Dashboard
	loading bool
	err     *session.Error

	bars      []bar
	spring    harmonica.Spring
	animating bool
	printer   *message.Printer
}

func New() Model {
	return Model{
		spring:  harmonica.NewSpring(harmonica.FPS(fps), frequency, damping),
		printer: message.NewPrinter(language.English),
	}
}

// SetState copies the dashboard out of st and retargets the bars. The
// returned command starts the animation when it is not already running.
func (m *Model) SetState(st session.State) tea.Cmd {
	m.user = st.User
	m.dash = st.Dashboard
	m.loading = st.DashboardLoading
	m.err = st.DashboardErr

	prev := make(map[string]bar, len(m.bars))
	for _, b := range m.bars {
		prev[b.label] = b
	}
	m.bars = barsFor(m.dash)
	moving := false
	for i := range m.bars {
		if p, ok := prev[m.bars[i].label]; ok {
			m.bars[i].pos, m.bars[i].vel = p.pos, p.vel
		}
		if !m.bars[i].settled() {
			moving = true
		}
	}
	if !moving || m.animating {
		return nil
	}
	m.animating = true
	return frame()
}

// Animating reports whether frames are still being scheduled.
func (m Model) Animating() bool { return m.animating }

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// Update steps every spring on FrameMsg and ignores anything else.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok {
		return m, nil
	}
	done := true
	for i := range m.bars {
		b := &m.bars[i]
		b.pos, b.vel = m.spring.Update(b.pos, b.vel, b.target)
		if b.settled() {
			b.pos, b.vel = b.target, 0
		} else {
			done = false
		}
	}
	if done {
		m.animating = false
		return m, nil
	}
	return m, frame()
}

func barsFor(d *account.Dashboard) []bar {
	if d == nil {
		return nil
	}
	share := func(n, total int) float64 {
		if total <= 0 {
			return 0
		}
		return float64(n) / float64(total)
	}
	switch {
	case d.Admin != nil:
		stats := d.Admin.RepairStatistics
		bars := make([]bar, 0, len(account.BookingStatuses))
		for _, s := range account.BookingStatuses {
			n := stats.StatusBreakdown[s]
			bars = append(bars, bar{
				label:  account.Label(string(s)),
				color:  theme.BookingColor(s),
				value:  n,
				target: share(n, stats.TotalRepairs),
			})
		}
		return bars
	case d.Staff != nil:
		s := d.Staff
		return []bar{
			{label: "Pending", color: theme.ColorPending, value: s.PendingRepairs, target: share(s.PendingRepairs, s.AssignedRepairs)},
			{label: "Completed", color: theme.ColorCompleted, value: s.CompletedRepairs, target: share(s.CompletedRepairs, s.AssignedRepairs)},
		}
	case d.Customer != nil:
		c := d.Customer
		return []bar{
			{label: "Active", color: theme.ColorInProgress, value: c.ActiveBookings, target: share(c.ActiveBookings, c.TotalBookings)},
			{label: "Completed", color: theme.ColorCompleted, value: c.CompletedBookings, target: share(c.CompletedBookings, c.TotalBookings)},
		}
	}
	return nil
}

// View renders the dashboard.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sections := []string{m.renderHeader()}
	if m.err != nil {
		sections = append(sections,
			theme.StyleError.Render("  "+m.err.Message),
			theme.StyleDimmed.Render("  press d to retry"))
	}
	switch {
	case m.dash == nil && m.loading:
		sections = append(sections, theme.StyleDimmed.Render("  Loading dashboard..."))
	case m.dash == nil:
		sections = append(sections, theme.StyleDimmed.Render("  No dashboard data"))
	default:
		sections = append(sections, m.renderStatsRow(width), m.renderBars(width))
		if m.dash.Admin != nil {
			sections = append(sections, m.renderAdmin(width))
		}
		if m.loading {
			sections = append(sections, theme.StyleDimmed.Render("  Refreshing..."))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	name := "there"
	var role account.Role
	if m.user != nil {
		role = m.user.Role
		switch {
		case m.user.User.FullName != "":
			name = m.user.User.FullName
		case m.user.User.Email != "":
			name = m.user.User.Email
		}
	}
	line := theme.StyleHeader.Render("  Welcome, " + name)
	if role != "" {
		badge := lipgloss.NewStyle().Foreground(theme.RoleColor(role)).Bold(true).
			Render(" [" + account.Label(string(role)) + "]")
		line += badge
	}
	return line
}

type stat struct {
	label string
	value int
	color lipgloss.Color
}

func (m Model) stats() []stat {
	switch {
	case m.dash.Admin != nil:
		a := m.dash.Admin
		return []stat{
			{"Repairs", a.RepairStatistics.TotalRepairs, theme.ColorBright},
			{"Active staff", a.StaffOverview.ActiveStaff, theme.ColorStaff},
			{"Technicians", a.StaffOverview.Technicians, theme.ColorStaff},
			{"Services", a.ServiceMetrics.AvailableServices, theme.ColorAccent},
			{"Categories", a.ServiceMetrics.Categories, theme.ColorAccent},
		}
	case m.dash.Staff != nil:
		s := m.dash.Staff
		return []stat{
			{"Assigned", s.AssignedRepairs, theme.ColorBright},
			{"Pending", s.PendingRepairs, theme.ColorPending},
			{"Completed", s.CompletedRepairs, theme.ColorCompleted},
		}
	case m.dash.Customer != nil:
		c := m.dash.Customer
		return []stat{
			{"Bookings", c.TotalBookings, theme.ColorBright},
			{"Active", c.ActiveBookings, theme.ColorInProgress},
			{"Completed", c.CompletedBookings, theme.ColorCompleted},
		}
	}
	return nil
}

func (m Model) renderStatsRow(width int) string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)
	var parts []string
	for _, s := range m.stats() {
		parts = append(parts, statStyle.Foreground(s.color).Render(fmt.Sprintf("%s: %d", s.label, s.value)))
	}
	content := strings.Join(parts, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderBars(width int) string {
	if len(m.bars) == 0 {
		return ""
	}
	labelW := 14
	barW := min(width-labelW-12, 48)
	if barW < 10 {
		barW = 10
	}
	lines := make([]string, 0, len(m.bars))
	for _, b := range m.bars {
		label := lipgloss.NewStyle().Width(labelW).Foreground(b.color).Render(b.label)
		lines = append(lines, "  "+label+renderBar(b.pos, barW, b.color)+
			lipgloss.NewStyle().Foreground(theme.ColorBright).Render(fmt.Sprintf(" %d", b.value)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBar draws a share bar for a fraction in [0, 1]. Spring overshoot
// is clamped.
func renderBar(frac float64, width int, color lipgloss.Color) string {
	filled := max(0, min(int(math.Round(frac*float64(width))), width))
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", width-filled))
}

func (m Model) renderAdmin(width int) string {
	a := m.dash.Admin
	fin := a.FinancialMetrics
	dim := theme.StyleDimmed

	lines := []string{
		"",
		theme.StyleHeader.Render("  Financials (paid, completed)"),
		"  " + m.printer.Sprintf("Revenue: KES %.0f  Bookings: %d  Average: KES %.0f",
			fin.TotalRevenue, fin.BookingsCount, fin.AverageBookingValue),
		"",
		theme.StyleHeader.Render("  Recent bookings"),
	}

	recent := a.RepairStatistics.RecentBookings
	if len(recent) == 0 {
		lines = append(lines, dim.Render("  No bookings in the last 30 days"))
	} else {
		lines = append(lines,
			dim.Render(fmt.Sprintf("  %-6s %-22s %-24s %-9s %-12s %s", "#", "Customer", "Service", "Device", "Status", "Created")),
			dim.Render("  "+strings.Repeat("─", min(width-4, 90))))
		for _, b := range recent {
			status := lipgloss.NewStyle().Foreground(theme.BookingColor(b.Status)).Width(12).
				Render(account.Label(string(b.Status)))
			lines = append(lines, fmt.Sprintf("  %-6d %-22s %-24s %-9s %s %s",
				b.ID, truncate(b.Customer, 22), truncate(b.Service, 24), b.DeviceType, status,
				dim.Render(b.CreatedAt.Local().Format("Jan 02 15:04"))))
		}
	}

	if len(a.RecentActivities) > 0 {
		lines = append(lines, "", theme.StyleHeader.Render("  Activity"))
		for _, act := range a.RecentActivities {
			lines = append(lines, "  "+dim.Render(act.Timestamp.Local().Format("Jan 02 15:04"))+" "+act.Summary)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
