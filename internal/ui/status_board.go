package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipeline/internal/model"
)

// StatusFetcher retrieves the current orchestrator snapshot, adapted from
// MonitorDashboardModel's ActionCallbacks.GetSessions into a single
// read-only poll: this board never mutates orchestrator state, so it
// carries no Stop/Pause/Resume callbacks.
type StatusFetcher func() (model.OrchestratorState, []model.TrackRuntimeStatus, error)

type statusTickMsg time.Time
type statusRefreshedMsg struct {
	state  model.OrchestratorState
	tracks []model.TrackRuntimeStatus
	err    error
}

// StatusBoardModel renders a live, read-only view of every configured
// track's in-flight feature, polling the admin API instead of an
// in-process callback the way MonitorDashboardModel polls local session
// state.
type StatusBoardModel struct {
	fetch      StatusFetcher
	interval   time.Duration
	table      table.Model
	state      model.OrchestratorState
	lastUpdate time.Time
	err        error
	quitting   bool
}

func NewStatusBoardModel(fetch StatusFetcher, interval time.Duration) StatusBoardModel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	columns := []table.Column{
		{Title: "TRACK", Width: 16},
		{Title: "FEATURE", Width: 8},
		{Title: "SESSION", Width: 14},
		{Title: "QUEUED", Width: 8},
		{Title: "DONE", Width: 8},
		{Title: "FAILED", Width: 8},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(15))

	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).BorderBottom(true).Bold(false)
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(false)
	t.SetStyles(s)

	return StatusBoardModel{fetch: fetch, interval: interval, table: t}
}

func (m StatusBoardModel) Init() tea.Cmd {
	return tea.Batch(refreshStatusCmd(m.fetch), tickStatusCmd(m.interval))
}

func refreshStatusCmd(fetch StatusFetcher) tea.Cmd {
	return func() tea.Msg {
		state, tracks, err := fetch()
		return statusRefreshedMsg{state: state, tracks: tracks, err: err}
	}
}

func tickStatusCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

func (m StatusBoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height - 6)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case statusTickMsg:
		return m, tea.Batch(refreshStatusCmd(m.fetch), tickStatusCmd(m.interval))

	case statusRefreshedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
			m.lastUpdate = time.Now()
			m.updateRows(msg.tracks)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *StatusBoardModel) updateRows(tracks []model.TrackRuntimeStatus) {
	rows := make([]table.Row, 0, len(tracks))
	for _, t := range tracks {
		featureID := "-"
		if t.CurrentFeatureID != 0 {
			featureID = fmt.Sprintf("%d", t.CurrentFeatureID)
		}
		session := t.CurrentSessionID
		if len(session) > 14 {
			session = session[:11] + "..."
		}
		rows = append(rows, table.Row{
			t.Track,
			featureID,
			session,
			fmt.Sprintf("%d", t.Queued),
			fmt.Sprintf("%d", t.Completed),
			fmt.Sprintf("%d", t.Failed),
		})
	}
	m.table.SetRows(rows)
}

func (m StatusBoardModel) View() string {
	if m.quitting {
		return ""
	}
	header := fmt.Sprintf("orchestrator: %s  (updated %s)\n\n", m.state, m.lastUpdate.Format(time.Kitchen))
	footer := "\nq: quit"
	if m.err != nil {
		footer = fmt.Sprintf("\nlast refresh error: %v%s", m.err, footer)
	}
	return header + m.table.View() + footer
}
