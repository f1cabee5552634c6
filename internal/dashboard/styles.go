// Package dashboard renders the engine's live stats as an optional
// terminal UI (Bubble Tea) and an optional websocket feed (Fiber), adapted
// from the teacher's internal/ui and internal/web packages. Both are purely
// observational: they read through stats.Source and never reach into
// Corpus or Observer state directly (§5).
package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorRed    = lipgloss.Color("#FF0055")
	colorDim    = lipgloss.Color("#666666")
	colorBright = lipgloss.Color("#FFFFFF")
	colorHeader = lipgloss.Color("#16213E")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Background(colorHeader).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(colorBright).Bold(true)

	crashStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	levelStyle = lipgloss.NewStyle().Foreground(colorYellow)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().Foreground(colorDim).MarginTop(1)
)

func renderLabelValue(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}
