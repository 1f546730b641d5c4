package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("25")).
			Foreground(lipgloss.Color("255"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	// arrows coloured by message kind
	requestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	responseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// arrows coloured by call
	legAStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	legBStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)
