// Package services shows the services price list as rendered Markdown in a
// scrollable viewport.
package services

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/theme"
)

// DefaultStyle is the glamour style used in a terminal.
const DefaultStyle = "dark"

type Model struct {
	cat   *catalog.Catalog
	style string

	width    int
	height   int
	rendered int
	vp       viewport.Model
	err      error
}

// New builds the view. style is a glamour standard style name such as
// "dark", "light" or "notty".
func New(cat *catalog.Catalog, style string) Model {
	if style == "" {
		style = DefaultStyle
	}
	return Model{cat: cat, style: style}
}

// SetSize resizes the viewport and re-renders when the width changed.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.vp.Width = max(width-4, 20)
	m.vp.Height = max(height-6, 5)
	if m.rendered != m.vp.Width {
		m.render()
	}
}

func (m *Model) render() {
	m.rendered = m.vp.Width
	if m.cat == nil {
		m.vp.SetContent(theme.StyleDimmed.Render("No services loaded."))
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(m.vp.Width),
	)
	if err != nil {
		m.err = err
		m.vp.SetContent(m.cat.Markdown())
		return
	}
	out, err := r.Render(m.cat.Markdown())
	if err != nil {
		m.err = err
		m.vp.SetContent(m.cat.Markdown())
		return
	}
	m.err = nil
	m.vp.SetContent(out)
	m.vp.GotoTop()
}

// Err returns the last render error. The raw Markdown is shown instead.
func (m Model) Err() error { return m.err }

// Update scrolls the viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.rendered == 0 {
		m.SetSize(max(m.width, 80), max(m.height, 24))
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.rendered == 0 {
		m.SetSize(max(m.width, 80), max(m.height, 24))
	}
	help := theme.StyleDimmed.Render("↑/↓ pgup/pgdn:scroll  esc:back  ctrl+c:quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleBorder.Render(m.vp.View()),
		help,
	)
}
