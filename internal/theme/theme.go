// Package theme provides the Lip Gloss color palette and reusable styles
// for the repairdesk TUI. It only imports domain enums so any view can use
// it without import cycles.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
)

// Role colors.
var (
	ColorAdmin    = lipgloss.Color("#a855f7")
	ColorStaff    = lipgloss.Color("#3b82f6")
	ColorCustomer = lipgloss.Color("#22c55e")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// Booking status colors.
var (
	ColorPending    = lipgloss.Color("#d97706")
	ColorConfirmed  = lipgloss.Color("#06b6d4")
	ColorInProgress = lipgloss.Color("#2563eb")
	ColorCompleted  = lipgloss.Color("#16a34a")
	ColorCanceled   = lipgloss.Color("#6b7280")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#7c3aed")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// RoleColor returns the color used for a role badge.
func RoleColor(role account.Role) lipgloss.Color {
	switch role {
	case account.RoleAdmin:
		return ColorAdmin
	case account.RoleStaff:
		return ColorStaff
	case account.RoleCustomer:
		return ColorCustomer
	default:
		return ColorDefault
	}
}

// BookingColor returns the color for a booking status.
func BookingColor(s account.BookingStatus) lipgloss.Color {
	switch s {
	case account.BookingPending:
		return ColorPending
	case account.BookingConfirmed:
		return ColorConfirmed
	case account.BookingInProgress:
		return ColorInProgress
	case account.BookingCompleted:
		return ColorCompleted
	case account.BookingCanceled:
		return ColorCanceled
	default:
		return ColorDefault
	}
}

// StatusColor returns the color for a session status.
func StatusColor(s session.Status) lipgloss.Color {
	switch s {
	case session.StatusAuthenticated:
		return ColorHealthy
	case session.StatusAuthenticating:
		return ColorWarning
	case session.StatusError:
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// StatusGlyph returns a glyph for a session status.
func StatusGlyph(s session.Status) string {
	switch s {
	case session.StatusAuthenticated:
		return "●"
	case session.StatusAuthenticating:
		return "◎"
	case session.StatusError:
		return "✗"
	default:
		return "○"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
