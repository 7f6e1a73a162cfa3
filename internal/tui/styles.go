package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - Dracula theme inspired.
var (
	colorPurple = lipgloss.Color("#bd93f9")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorCyan   = lipgloss.Color("#8be9fd")
	colorRed    = lipgloss.Color("#ff5555")
	colorWhite  = lipgloss.Color("#f8f8f2")
	colorGray   = lipgloss.Color("#6272a4")
)

// Styles holds all the lipgloss styles for the progress view.
type Styles struct {
	Title    lipgloss.Style
	Step     lipgloss.Style
	DoneStep lipgloss.Style
	DoneMark lipgloss.Style
	Hint     lipgloss.Style
	Code     lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple),

		Step: lipgloss.NewStyle().
			Foreground(colorWhite),

		DoneStep: lipgloss.NewStyle().
			Foreground(colorGray),

		DoneMark: lipgloss.NewStyle().
			Foreground(colorGreen),

		Hint: lipgloss.NewStyle().
			Foreground(colorGray),

		Code: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow),

		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen),

		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed),
	}
}
