package monitor

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#FF6B35")
	colorSuccess = lipgloss.Color("#4CAF50")
	colorWarning = lipgloss.Color("#FFB74D")
	colorError   = lipgloss.Color("#F44336")
	colorText    = lipgloss.Color("#E0E0E0")
	colorMuted   = lipgloss.Color("#90A4AE")
	colorBorder  = lipgloss.Color("#30363D")
	colorHeader  = lipgloss.Color("#1C2128")
)

var (
	headerStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorHeader).
		Bold(true).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary)

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Foreground(colorText).
		Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(colorMuted)
	valueStyle = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

// pressureColor picks a bar colour for a 0..1 fill ratio.
func pressureColor(ratio float64) lipgloss.Color {
	switch {
	case ratio >= 0.9:
		return colorError
	case ratio >= 0.7:
		return colorWarning
	default:
		return colorSuccess
	}
}
