// Package form is a stack of labelled text inputs with focus cycling and
// per-field error messages, shared by the login and register screens.
package form

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/theme"
)

// Field describes one input.
type Field struct {
	Key         string
	Label       string
	Placeholder string
	Secret      bool
}

type Model struct {
	Title  string
	Width  int
	fields []Field
	inputs []textinput.Model
	focus  int
	errors map[string]string
	banner string
}

func New(title string, fields ...Field) Model {
	m := Model{Title: title, fields: fields, errors: map[string]string{}}
	for _, f := range fields {
		in := textinput.New()
		in.Placeholder = f.Placeholder
		in.Prompt = ""
		in.CharLimit = 128
		if f.Secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.inputs = append(m.inputs, in)
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

// Focused returns the key of the focused field.
func (m Model) Focused() string {
	if len(m.fields) == 0 {
		return ""
	}
	return m.fields[m.focus].Key
}

// Next moves focus down, wrapping around.
func (m *Model) Next() tea.Cmd {
	return m.move(1)
}

// Prev moves focus up, wrapping around.
func (m *Model) Prev() tea.Cmd {
	return m.move(-1)
}

func (m *Model) move(d int) tea.Cmd {
	if len(m.inputs) == 0 {
		return nil
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + d + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

// Update forwards msg to the focused input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// Value returns the trimmed value of key. Secret fields are not trimmed.
func (m Model) Value(key string) string {
	for i, f := range m.fields {
		if f.Key == key {
			if f.Secret {
				return m.inputs[i].Value()
			}
			return strings.TrimSpace(m.inputs[i].Value())
		}
	}
	return ""
}

func (m *Model) SetValue(key, v string) {
	for i, f := range m.fields {
		if f.Key == key {
			m.inputs[i].SetValue(v)
		}
	}
}

// SetErrors replaces the per-field messages. Messages for unknown keys are
// shown in the banner.
func (m *Model) SetErrors(fields map[string]string) {
	m.errors = map[string]string{}
	m.banner = ""
	var extra []string
	for k, v := range fields {
		if m.has(k) {
			m.errors[k] = v
		} else {
			extra = append(extra, v)
		}
	}
	sort.Strings(extra)
	m.banner = strings.Join(extra, " ")
}

// SetBanner shows msg above the fields. An empty msg clears it.
func (m *Model) SetBanner(msg string) {
	m.banner = msg
}

// Clear drops every message and secret value.
func (m *Model) Clear() {
	m.errors = map[string]string{}
	m.banner = ""
	for i, f := range m.fields {
		if f.Secret {
			m.inputs[i].Reset()
		}
	}
}

func (m Model) Error(key string) string {
	return m.errors[key]
}

func (m Model) has(key string) bool {
	for _, f := range m.fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	labelStyle := lipgloss.NewStyle().Width(18).Foreground(theme.ColorDimmed)

	lines := []string{theme.StyleHeader.Render(m.Title), ""}
	if m.banner != "" {
		lines = append(lines, theme.StyleError.Render(m.banner), "")
	}
	for i, f := range m.fields {
		label := f.Label
		style := labelStyle
		if i == m.focus {
			style = style.Foreground(theme.ColorAccent).Bold(true)
			label = "> " + label
		} else {
			label = "  " + label
		}
		lines = append(lines, style.Render(label)+m.inputs[i].View())
		if msg := m.errors[f.Key]; msg != "" {
			lines = append(lines, strings.Repeat(" ", 18)+theme.StyleError.Render(msg))
		}
	}

	return theme.StyleBorder.
		Width(min(width-2, 72)).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
