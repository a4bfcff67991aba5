package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/edgeview/internal/api"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

type tickMsg time.Time

type statsMsg struct {
	stats *api.StatsResponse
	at    time.Time
}

type errMsg struct{ err error }

// Rates are per-second deltas between two polls.
type Rates struct {
	Processed float64
	Failed    float64
	Dropped   float64
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	client   *Client
	target   string
	interval time.Duration

	stats    *api.StatsResponse
	polledAt time.Time
	rates    Rates
	err      error

	width    int
	quitting bool
}

// NewModel creates a dashboard polling client every interval.
func NewModel(client *Client, target string, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Model{client: client, target: target, interval: interval}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(m.fetch(), m.tick())

	case statsMsg:
		m.applyStats(msg.stats, msg.at)

	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m *Model) applyStats(next *api.StatsResponse, at time.Time) {
	if prev := m.stats; prev != nil {
		if dt := at.Sub(m.polledAt).Seconds(); dt > 0 {
			m.rates = Rates{
				Processed: float64(totalProcessed(next)-totalProcessed(prev)) / dt,
				Failed:    float64(totalFailed(next)-totalFailed(prev)) / dt,
				Dropped:   float64(next.Stream.FramesDropped-prev.Stream.FramesDropped) / dt,
			}
		}
	}
	m.stats = next
	m.polledAt = at
	m.err = nil
}

// Rates returns the rates computed from the last two polls.
func (m *Model) Rates() Rates { return m.rates }

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		defer cancel()
		stats, err := m.client.Fetch(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statsMsg{stats: stats, at: time.Now()}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 80
	}

	sections := []string{
		headerStyle.Width(width - 2).Render("EDGEVIEW  " + m.target),
	}

	switch {
	case m.stats == nil && m.err != nil:
		sections = append(sections, errorStyle.Render("unreachable: "+m.err.Error()))
	case m.stats == nil:
		sections = append(sections, labelStyle.Render("waiting for stats..."))
	default:
		col := (width - 4) / 2
		top := lipgloss.JoinHorizontal(lipgloss.Top,
			m.framesPanel(col), " ", m.streamPanel(col))
		sections = append(sections, top, m.memoryPanel(width-2))
		if m.err != nil {
			sections = append(sections, errorStyle.Render("last poll failed: "+m.err.Error()))
		}
	}

	sections = append(sections, helpStyle.Render("q quit  r refresh"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) framesPanel(width int) string {
	s := m.stats
	lines := []string{
		titleStyle.Render("Frames"),
		row("engine", fmt.Sprintf("%s / %s", s.Filter.Engine, s.Filter.Layout)),
		row("processed", fmt.Sprintf("%d", totalProcessed(s))),
		row("failed", fmt.Sprintf("%d", totalFailed(s))),
		row("dropped", fmt.Sprintf("%d", s.Stream.FramesDropped)),
		row("rate", fmt.Sprintf("%.1f fps", m.rates.Processed)),
		row("fail/drop", fmt.Sprintf("%.1f / %.1f per s", m.rates.Failed, m.rates.Dropped)),
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) streamPanel(width int) string {
	s := m.stats
	lines := []string{
		titleStyle.Render("Sessions"),
		row("active", fmt.Sprintf("%d", s.Stream.ActiveSessions)),
		row("total", fmt.Sprintf("%d", s.Stream.TotalSessions)),
		row("http frames", fmt.Sprintf("%d", s.HTTP.FramesProcessed)),
		row("uptime", (time.Duration(s.UptimeSeconds) * time.Second).String()),
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) memoryPanel(width int) string {
	mem := m.stats.Memory
	if mem == nil {
		return panelStyle.Width(width).Render(titleStyle.Render("Memory") + "\n" + labelStyle.Render("no budget configured"))
	}

	ratio := 0.0
	if mem.GlobalLimit > 0 {
		ratio = float64(mem.GlobalUsage) / float64(mem.GlobalLimit)
	}
	lines := []string{
		titleStyle.Render("Memory"),
		progressBar(ratio, width-6),
		row("used", fmt.Sprintf("%s of %s (%.0f%%)", formatBytes(mem.GlobalUsage), formatBytes(mem.GlobalLimit), ratio*100)),
		row("owners", fmt.Sprintf("%d", mem.ActiveOwners)),
		row("denials", fmt.Sprintf("%d", mem.DenialCount)),
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-12s", label)) + valueStyle.Render(value)
}

// progressBar renders ratio as a bar of the given width.
func progressBar(ratio float64, width int) string {
	if width < 1 {
		width = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	bar := lipgloss.NewStyle().Foreground(pressureColor(ratio)).Render(strings.Repeat("█", filled))
	return bar + lipgloss.NewStyle().Foreground(colorBorder).Render(strings.Repeat("░", width-filled))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func totalProcessed(s *api.StatsResponse) int64 {
	return s.HTTP.FramesProcessed + s.Stream.FramesProcessed
}

func totalFailed(s *api.StatsResponse) int64 {
	return s.HTTP.FramesFailed + s.Stream.FramesFailed
}
