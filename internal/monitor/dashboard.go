// Package monitor renders a terminal dashboard of watcher activity.
package monitor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/detectd/internal/watch"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	recentSize      = 8
	pathWidth       = 40
)

// Model is the BubbleTea dashboard model. It consumes watcher results until
// the channel closes.
type Model struct {
	results  <-chan watch.Result
	paths    []string
	started  time.Time
	now      time.Time
	quitting bool
	done     bool

	runs      int
	failures  int
	detectors int
	// lastUpdate is when the newest result arrived.
	lastUpdate time.Time

	recent         []watch.Result // newest first
	detectorsTrend []float64
	elapsedTrend   []float64

	successProgress progress.Model
}

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

// NewModel creates a dashboard over results. paths are the watched
// locations, shown in the header.
func NewModel(results <-chan watch.Result, paths []string) Model {
	now := time.Now()
	return Model{
		results: results,
		paths:   paths,
		started: now,
		now:     now,
		successProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		detectorsTrend: make([]float64, 0, historySize),
		elapsedTrend:   make([]float64, 0, historySize),
	}
}

// getStatusBadge summarizes the newest result.
func getStatusBadge(recent []watch.Result) string {
	switch {
	case len(recent) == 0:
		return warningStyle.Render("… WAITING")
	case recent[0].Err != nil:
		return errorStyle.Render("✗ FAILING")
	}
	return healthyStyle.Render("✓ OK")
}

func getResultBadge(res watch.Result) string {
	if res.Err != nil {
		return errorStyle.Render("[✗]")
	}
	if res.Detectors == 0 {
		return warningStyle.Render("[⚠]")
	}
	return healthyStyle.Render("[✓]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type resultMsg watch.Result
type doneMsg struct{}

// Init starts the clock and the first wait for a result.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(time.Second),
		waitForResult(m.results),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForResult blocks on the next result. It is re-issued after every
// result so that exactly one read is pending at a time.
func waitForResult(results <-chan watch.Result) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-results
		if !ok {
			return doneMsg{}
		}
		return resultMsg(res)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.recent = nil
			m.detectorsTrend = m.detectorsTrend[:0]
			m.elapsedTrend = m.elapsedTrend[:0]
			m.runs, m.failures, m.detectors = 0, 0, 0
			return m, nil
		}

	case tickMsg:
		m.now = time.Time(msg)
		return m, tick(time.Second)

	case resultMsg:
		m.record(watch.Result(msg))
		return m, waitForResult(m.results)

	case doneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) record(res watch.Result) {
	m.runs++
	m.lastUpdate = time.Now()
	if res.Err != nil {
		m.failures++
	} else {
		m.detectors += res.Detectors
		m.detectorsTrend = appendToHistory(m.detectorsTrend, float64(res.Detectors))
	}
	m.elapsedTrend = appendToHistory(m.elapsedTrend, float64(res.Elapsed.Milliseconds()))

	m.recent = append([]watch.Result{res}, m.recent...)
	if len(m.recent) > recentSize {
		m.recent = m.recent[:recentSize]
	}
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting || m.done {
		return ""
	}

	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	uptime := int64(m.now.Sub(m.started).Seconds())

	content += headerStyle.Render(" detectd watch ") + "\n"
	content += fmt.Sprintf("%s   %s   %s   %s\n",
		getStatusBadge(m.recent),
		dimStyle.Render("Uptime:"),
		valueStyle.Render(FormatDuration(uptime)),
		dimStyle.Render(lastUpdateStr))
	for _, p := range m.paths {
		content += dimStyle.Render("  watching ") + ShortPath(p, pathWidth) + "\n"
	}

	content += "\n" + sectionStyle.Render("┃ Annotations") + "\n"
	content += labelStyle.Render("  Runs: ") + valueStyle.Render(fmt.Sprintf("%d", m.runs)) +
		labelStyle.Render("  Failed: ") + valueStyle.Render(fmt.Sprintf("%d", m.failures)) +
		labelStyle.Render("  Detectors: ") + valueStyle.Render(fmt.Sprintf("%d", m.detectors)) + "\n"

	success := 1.0
	if m.runs > 0 {
		success = float64(m.runs-m.failures) / float64(m.runs)
	}
	content += labelStyle.Render("  Success: ") +
		m.successProgress.ViewAs(success) +
		" " + dimStyle.Render(FormatPercentage(success)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Trends") + "\n"
	content += labelStyle.Render("  Detectors per run ") + createSparkline(m.detectorsTrend) + "\n"
	content += labelStyle.Render("  Run time (ms)     ") + createSparkline(m.elapsedTrend) + "\n"

	content += "\n" + sectionStyle.Render("┃ Recent") + "\n"
	if len(m.recent) == 0 {
		content += dimStyle.Render("  waiting for *.stim writes") + "\n"
	}
	for _, res := range m.recent {
		line := "  " + getResultBadge(res) + " " + ShortPath(res.Path, pathWidth) + "  "
		if res.Err != nil {
			line += errorStyle.Render(res.Err.Error())
		} else {
			line += valueStyle.Render(fmt.Sprintf("%d detectors", res.Detectors)) +
				dimStyle.Render(fmt.Sprintf("  %s  -> %s", FormatElapsed(res.Elapsed), filepath.Base(res.Output)))
		}
		content += line + "\n"
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[c]") + footerStyle.Render(" clear")
	content += "\n" + footer

	return containerStyle.Render(content)
}
