package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorErrored = lipgloss.Color("#dc2626")
	ColorSystem  = lipgloss.Color("#7c3aed")
	ColorWarning = lipgloss.Color("#d97706")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)

	MetaStyle    = lipgloss.NewStyle().Foreground(ColorDimmed)
	SystemStyle  = lipgloss.NewStyle().Foreground(ColorSystem).Italic(true)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)

	ConnectedStyle    = lipgloss.NewStyle().Foreground(ColorHealthy).Bold(true)
	DisconnectedStyle = lipgloss.NewStyle().Foreground(ColorErrored).Bold(true)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorDimmed).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(ColorBorder)
)
