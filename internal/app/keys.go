package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI. Single-letter keys are
// only read outside the login and register forms.
type KeyMap struct {
	// Everywhere.
	ForceQuit   key.Binding
	RefreshUser key.Binding
	OpenCatalog key.Binding
	EventLog    key.Binding

	// Forms.
	NextField  key.Binding
	PrevField  key.Binding
	Submit     key.Binding
	ToggleForm key.Binding

	// Screens.
	Quit      key.Binding
	Dashboard key.Binding
	Services  key.Binding
	Logout    key.Binding
	Back      key.Binding
	Up        key.Binding
	Down      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		RefreshUser: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh user"),
		),
		OpenCatalog: key.NewBinding(
			key.WithKeys("f2"),
			key.WithHelp("f2", "services"),
		),
		EventLog: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "session log"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		ToggleForm: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "sign in / create account"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Dashboard: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "refresh dashboard"),
		),
		Services: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "services"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "log out"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
	}
}
