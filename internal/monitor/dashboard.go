// Package monitor renders the personactl terminal dashboard over the
// daemon's stats API.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/personad/internal/processor"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	recentRunsShown = 5

	// DefaultInterval is the poll period when none is configured.
	DefaultInterval = 5 * time.Second
)

// Model is the BubbleTea dashboard model.
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	stats      *processor.Stats
	err        error
	quitting   bool

	// Sparkline histories accumulated across polls.
	rateHistory       []float64
	confidenceHistory []float64
	p95History        []float64
	ratePeak          float64

	successProgress  progress.Model
	fallbackProgress progress.Model
	loadProgress     progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling the daemon at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return Model{
		serverURL: serverURL,
		interval:  interval,
		ratePeak:  1.0, // avoid division by zero before the first poll
		successProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		fallbackProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		loadProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
		rateHistory:       make([]float64, 0, historySize),
		confidenceHistory: make([]float64, 0, historySize),
		p95History:        make([]float64, 0, historySize),
	}
}

// statusBadge summarizes overall daemon health from the success ratio.
func statusBadge(st *processor.Stats) string {
	if st == nil || st.RunsTotal == 0 {
		return dimStyle.Render("· IDLE")
	}
	if st.SuccessRatio >= 0.9 {
		return healthyStyle.Render("✓ HEALTHY")
	}
	if st.SuccessRatio >= 0.5 {
		return warningStyle.Render("⚠ DEGRADED")
	}
	return errorStyle.Render("✗ FAILING")
}

// runBadge marks a run outcome.
func runBadge(success bool) string {
	if success {
		return healthyStyle.Render("✓")
	}
	return errorStyle.Render("✗")
}

// confidenceBadge grades a synthesis confidence.
func confidenceBadge(c float64) string {
	if c >= 0.7 {
		return healthyStyle.Render("[✓]")
	}
	if c >= 0.4 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline renders a sparkline chart from historical data.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type statsMsg processor.Stats
type errMsg error

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchStats(m.serverURL),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchStats polls the daemon's stats endpoint.
func fetchStats(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stats, err := NewStatsClient(serverURL).FetchStats(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statsMsg(*stats)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStats(m.serverURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchStats(m.serverURL),
		)

	case statsMsg:
		st := processor.Stats(msg)
		m.rateHistory = appendToHistory(m.rateHistory, st.RunsPerMinute)
		m.confidenceHistory = appendToHistory(m.confidenceHistory, st.MeanConfidence)
		m.p95History = appendToHistory(m.p95History, float64(st.P95DurationMS))
		if st.RunsPerMinute > m.ratePeak {
			m.ratePeak = st.RunsPerMinute
		}
		m.stats = &st
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

// renderError renders the connection-failure pane.
func (m Model) renderError() string {
	header := headerStyle.Render(" personad Monitor ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach personad") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. the daemon is running (personad --config ...)") + "\n"
	content += dimStyle.Render("  2. --server points at its listen address") + "\n"
	content += "\n"
	content += footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

// renderDashboard renders the main view with sparklines and progress bars.
func (m Model) renderDashboard() string {
	st := m.stats
	if st == nil {
		st = &processor.Stats{}
	}

	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" personad Monitor ")
	headerLine := fmt.Sprintf("%s   %s %s   %s %s   %s",
		statusBadge(m.stats),
		dimStyle.Render("Uptime:"),
		valueStyle.Render(FormatUptime(st.UptimeSeconds)),
		dimStyle.Render("Active:"),
		valueStyle.Render(fmt.Sprintf("%d", st.ActiveRuns)),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	// Runs section
	content += "\n" + sectionStyle.Render("┃ Runs") + "\n"

	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(st.RunsPerMinute)) +
		"   " + createSparkline(m.rateHistory) + "\n"

	ratePercent := 0.0
	if m.ratePeak > 0 {
		ratePercent = st.RunsPerMinute / m.ratePeak
		if ratePercent > 1.0 {
			ratePercent = 1.0
		}
	}
	content += labelStyle.Render("  Load: ") +
		m.loadProgress.ViewAs(ratePercent) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", ratePercent*100)) + "\n"

	content += labelStyle.Render("  Total: ") +
		valueStyle.Render(fmt.Sprintf("%d", st.RunsTotal)) +
		dimStyle.Render(fmt.Sprintf(" (%d failed)", st.RunsFailed)) + "\n"

	// Quality section
	content += "\n" + sectionStyle.Render("┃ Quality") + "\n"

	content += labelStyle.Render("  Success: ") +
		m.successProgress.ViewAs(st.SuccessRatio) +
		" " + dimStyle.Render(FormatPercentage(st.SuccessRatio)) + "\n"

	content += labelStyle.Render("  Fallbacks: ") +
		m.fallbackProgress.ViewAs(st.FallbackRatio) +
		" " + dimStyle.Render(FormatPercentage(st.FallbackRatio)) + "\n"

	content += labelStyle.Render("  Confidence: ") +
		valueStyle.Render(fmt.Sprintf("%.2f", st.MeanConfidence)) +
		" " + confidenceBadge(st.MeanConfidence) +
		"   " + createSparkline(m.confidenceHistory) + "\n"

	// Latency section
	content += "\n" + sectionStyle.Render("┃ Latency") + "\n"
	content += labelStyle.Render("  p95: ") +
		valueStyle.Render(FormatLatency(st.P95DurationMS)) +
		"   " + createSparkline(m.p95History) + "\n"

	// Recent runs section
	content += "\n" + sectionStyle.Render("┃ Recent Runs") + "\n"
	if len(st.Recent) == 0 {
		content += dimStyle.Render("  no runs yet") + "\n"
	}
	for i, run := range st.Recent {
		if i >= recentRunsShown {
			break
		}
		content += fmt.Sprintf("  %s %s  %s  %s  %s\n",
			runBadge(run.Success),
			dimStyle.Render(shortID(run.RunID)),
			valueStyle.Render(fmt.Sprintf("%-16.16s", run.SessionID)),
			labelStyle.Render(fmt.Sprintf("%.2f", run.Confidence)),
			dimStyle.Render(FormatLatency(run.DurationMS)))
	}

	// Footer with keyboard shortcuts
	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	return containerStyle.Render(content)
}

// shortID trims a run id to its first uuid group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
