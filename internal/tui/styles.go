package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#818cf8"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555570"))
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2a2a3a")).
			Padding(0, 2).
			MarginRight(1)
	cardValueStyle = lipgloss.NewStyle().Bold(true)
	staleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")).Bold(true)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)

	// classStyles colours action, card and classification classes.
	classStyles = map[string]lipgloss.Style{
		"blocked":    lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true),
		"allowed":    lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
		"rate":       lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")),
		"malicious":  lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")),
		"suspicious": lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")),
		"benign":     lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
	}
)

func classStyle(class string) lipgloss.Style {
	if s, ok := classStyles[class]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
