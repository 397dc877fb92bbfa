package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rmax-ai/readgraph/pkg/analytics"
)

const (
	tableHeight    = 10
	timelineHeight = 12
	fetchTimeout   = 3 * time.Second
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	crumbStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// source is the slice of the client the viewer reads from.
type source interface {
	Documents(ctx context.Context, sel analytics.Selection) ([]analytics.DocumentRow, error)
	Users(ctx context.Context, documentID string, sel analytics.Selection) ([]analytics.UserRow, error)
	Purposes(ctx context.Context, documentID, ownerID string, sel analytics.Selection) ([]analytics.PurposeRow, error)
	Timeline(ctx context.Context, sel analytics.Selection) ([]analytics.PairTimeline, error)
}

type tickMsg time.Time

type dataMsg struct {
	level     analytics.Level
	documents []analytics.DocumentRow
	users     []analytics.UserRow
	purposes  []analytics.PurposeRow
	timelines []analytics.PairTimeline
	err       error
}

type model struct {
	api     source
	refresh time.Duration

	nav      *analytics.Navigator
	spinner  spinner.Model
	table    table.Model
	timeline viewport.Model
	width    int

	documents []analytics.DocumentRow
	users     []analytics.UserRow
	purposes  []analytics.PurposeRow
	timelines []analytics.PairTimeline

	err   error
	ready bool
}

func initialModel(api source, refresh time.Duration) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	t := table.New(table.WithFocused(true), table.WithHeight(tableHeight))

	return model{
		api:      api,
		refresh:  refresh,
		nav:      analytics.NewNavigator(),
		spinner:  s,
		table:    t,
		timeline: viewport.New(100, timelineHeight),
		width:    100,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetch(),
		m.tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if m.drillDown() {
				return m, m.fetch()
			}
			return m, nil
		case "backspace", "esc":
			if m.nav.Level() > analytics.LevelDocuments {
				m.nav.JumpTo(m.nav.Level() - 1)
				return m, m.fetch()
			}
			return m, nil
		case "r":
			return m, m.fetch()
		}
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
		m.renderTimeline()
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, m.fetch(), m.tick())

	case dataMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			break
		}
		// A response for a level we already left is stale.
		if msg.level != m.nav.Level() {
			break
		}
		m.err = nil
		m.documents, m.users, m.purposes = msg.documents, msg.users, msg.purposes
		m.timelines = msg.timelines
		m.rebuildTable()
		m.renderTimeline()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = msg.Width - 4
		m.table.SetWidth(msg.Width - 4)
		m.rebuildTable()
		m.renderTimeline()
	}

	return m, tea.Batch(cmds...)
}

// drillDown pins the highlighted row and reports whether the level changed.
func (m *model) drillDown() bool {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return false
	}
	switch m.nav.Level() {
	case analytics.LevelDocuments:
		m.nav.SelectDocument(row[0])
		return true
	case analytics.LevelUsers:
		return m.nav.SelectUser(row[0]) == nil
	case analytics.LevelPurposes:
		id := m.purposeIDAt(m.table.Cursor())
		if id == m.nav.FocusedPurpose() {
			id = ""
		}
		m.nav.FocusPurpose(id)
		m.renderTimeline()
	}
	return false
}

func (m model) purposeIDAt(i int) string {
	if i < 0 || i >= len(m.purposes) {
		return ""
	}
	return m.purposes[i].PurposeID
}

func (m *model) rebuildTable() {
	cols, rows := tableFor(m.nav.Level(), m.documents, m.users, m.purposes, m.width-8)
	// Rows first, so the table never renders rows wider than its columns.
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
}

func (m *model) renderTimeline() {
	m.timeline.SetContent(renderTimeline(m.timelines, m.nav, m.timeline.Width-2, timelineHeight-2))
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Loading analytics...", m.spinner.View())
	}

	var crumbs []string
	for _, c := range m.nav.Breadcrumbs() {
		label := c.Level.String()
		if c.ID != "" && c.Level < m.nav.Level() {
			label += " " + c.ID
		}
		crumbs = append(crumbs, label)
	}
	header := crumbStyle.Render(m.spinner.View() + " " + strings.Join(crumbs, " › "))

	tablePane := paneStyle.Render(m.table.View())
	timelinePane := paneStyle.Render(m.timeline.View())

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d documents • %d timelines", len(m.documents), len(m.timelines)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nenter drill down • esc back • r refresh • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, header, tablePane, timelinePane, footer)
}

// Commands

func (m model) fetch() tea.Cmd {
	level, doc, owner := m.nav.Level(), m.nav.Document(), m.nav.User()
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		msg := dataMsg{level: level}
		var err error
		msg.documents, err = api.Documents(ctx, analytics.Selection{})
		if err != nil {
			return dataMsg{err: err}
		}
		switch level {
		case analytics.LevelUsers:
			msg.users, err = api.Users(ctx, doc, analytics.Selection{})
		case analytics.LevelPurposes:
			msg.users, err = api.Users(ctx, doc, analytics.Selection{})
			if err == nil {
				msg.purposes, err = api.Purposes(ctx, doc, owner, analytics.Selection{})
			}
		}
		if err != nil {
			return dataMsg{err: err}
		}
		// Timelines cover everything; the navigator only changes emphasis.
		msg.timelines, err = api.Timeline(ctx, analytics.Selection{})
		if err != nil {
			return dataMsg{err: err}
		}
		return msg
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
