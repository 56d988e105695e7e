// Package ui provides a Bubble Tea-based live metrics view for propctl.
package ui

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"propsync/cmd/propctl/internal/client"
	"propsync/pkg/models"
)

// Options configures the metrics view.
type Options struct {
	Client   *client.Client
	PollTick time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	client   *client.Client
	pollTick time.Duration

	// UI state
	table  table.Model
	width  int
	height int
	ready  bool

	// Data state
	metrics     []models.CoordinatorMetrics
	lastUpdated time.Time
	pollErr     error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = time.Second
	}

	t := table.New(
		table.WithColumns(topColumns()),
		table.WithFocused(true),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(s)

	return Model{
		client:   opts.Client,
		pollTick: pollTick,
		table:    t,
	}
}

func topColumns() []table.Column {
	return []table.Column{
		{Title: "SCOPE", Width: 20},
		{Title: "PENDING", Width: 9},
		{Title: "FLUSHES", Width: 9},
		{Title: "AVG FLUSH", Width: 11},
		{Title: "LAST FLUSH", Width: 16},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		fetchMetricsCmd(m.client),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		h := msg.Height - 5
		if h < 3 {
			h = 3
		}
		m.table.SetHeight(h)
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchMetricsCmd(m.client), tickCmd(m.pollTick))

	case metricsMsg:
		m.metrics = msg
		m.lastUpdated = time.Now()
		m.pollErr = nil
		m.table.SetRows(metricsRows(m.metrics))
		return m, nil

	case pollErrMsg:
		m.pollErr = msg.err
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := titleStyle.Render("propsync top") + "  " + statusStyle.Render(m.client.Base())
	status := statusStyle.Render(fmt.Sprintf("%d scope(s)", len(m.metrics)))
	if !m.lastUpdated.IsZero() {
		status += statusStyle.Render(fmt.Sprintf("  updated %s", m.lastUpdated.Format("15:04:05")))
	}
	if m.pollErr != nil {
		status += "  " + errStyle.Render(fmt.Sprintf("poll failed: %v", m.pollErr))
	}

	return header + "\n" + status + "\n" + m.table.View() + "\n" + helpStyle.Render("q: quit")
}

func metricsRows(metrics []models.CoordinatorMetrics) []table.Row {
	sorted := make([]models.CoordinatorMetrics, len(metrics))
	copy(sorted, metrics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Scope < sorted[j].Scope })

	rows := make([]table.Row, 0, len(sorted))
	for _, m := range sorted {
		rows = append(rows, table.Row{
			m.Scope,
			fmt.Sprintf("%d", m.PendingUpdates),
			fmt.Sprintf("%d", m.FlushCount),
			fmt.Sprintf("%.2fms", m.AvgFlushMs),
			lastFlushLabel(m.LastFlushTS),
		})
	}
	return rows
}

func lastFlushLabel(ts int64) string {
	if ts == 0 {
		return "never"
	}
	since := time.Since(time.Unix(0, ts)).Round(time.Second)
	if since < 0 {
		since = 0
	}
	return since.String() + " ago"
}

// Messages

type tickMsg time.Time

type metricsMsg []models.CoordinatorMetrics

type pollErrMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchMetricsCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		metrics, err := c.AllMetrics()
		if err != nil {
			return pollErrMsg{err}
		}
		return metricsMsg(metrics)
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
