package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fEst1ck/coverage-playground/internal/stats"
	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// tickMsg is sent on each refresh tick.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the Bubble Tea model for the live TUI (`fuzzer --tui`). It reads
// the same counters and stats.Source the Writer snapshots to disk, so the
// on-screen numbers and stats/fuzzer_log.json never diverge.
type Model struct {
	runID    string
	start    time.Time
	counters *stats.Counters
	source   stats.Source

	width int
}

// NewModel creates a dashboard Model bound to a run's live counters.
func NewModel(runID string, counters *stats.Counters, source stats.Source) *Model {
	return &Model{runID: runID, start: time.Now(), counters: counters, source: source, width: 72}
}

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("coverage-playground"))
	b.WriteString("  ")
	b.WriteString(okStyle.Render("● running"))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Width(m.width - 4).Render(m.renderBody()))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("[q] quit"))

	return b.String()
}

func (m *Model) renderBody() string {
	var b strings.Builder

	cumulative := m.source.Cumulative()

	b.WriteString(renderLabelValue("run id", m.runID))
	b.WriteString("\n")
	b.WriteString(renderLabelValue("elapsed", time.Since(m.start).Round(time.Second).String()))
	b.WriteString("\n")
	b.WriteString(renderLabelValue("execs", fmt.Sprintf("%d", m.counters.Execs())))
	b.WriteString("\n")
	b.WriteString(renderLabelValue("queue size", fmt.Sprintf("%d", m.source.QueueSize())))
	b.WriteString("\n")
	b.WriteString(renderLabelValue("level", levelStyle.Render(fmt.Sprintf("%d", m.source.CurrentLevel()))))
	b.WriteString("\n")
	crashes := m.source.CrashCount()
	crashText := fmt.Sprintf("%d", crashes)
	if crashes > 0 {
		crashText = crashStyle.Render(crashText)
	}
	b.WriteString(labelStyle.Render("crashes:") + " " + crashText)
	b.WriteString("\n\n")

	for _, metric := range []types.Metric{types.Block, types.Edge, types.Path} {
		if n, ok := cumulative[metric]; ok {
			b.WriteString(renderLabelValue(string(metric)+" coverage", fmt.Sprintf("%d", n)))
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().Render(b.String())
}

// Run starts the full-screen TUI program and blocks until the user quits.
func Run(m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
