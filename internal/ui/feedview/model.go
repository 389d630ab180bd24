package feedview

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mverhagen/memberhub/internal/feed"
	"github.com/mverhagen/memberhub/internal/keys"
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/theme"
)

// FeedChangedMsg is sent when any page of the accumulator changed and the
// derived state should be re-read.
type FeedChangedMsg struct{}

// Model is the activity feed view.
type Model struct {
	list    list.Model
	acc     *feed.Accumulator
	keys    *keys.KeyMap
	state   feed.State
	offline []model.Activity
	width   int
	height  int
}

// New creates the feed view over an accumulator.
func New(acc *feed.Accumulator, k *keys.KeyMap, width, height int) Model {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Activity"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		acc:    acc,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init seeds the view from whatever the accumulator already knows.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return FeedChangedMsg{} }
}

// Update handles messages for the feed view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case FeedChangedMsg:
		m.state = m.acc.State()

		// Until the network answers, show the offline snapshot from the
		// last run so the feed is never blank on startup.
		source := m.state.Activities
		if m.state.IsLoadingInitialData && len(m.offline) > 0 {
			source = m.offline
		}

		items := make([]list.Item, len(source))
		for i, activity := range source {
			items[i] = ActivityItem{Activity: activity}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.LoadMore):
			m.acc.LoadMore()
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			m.acc.Refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetOffline provides the snapshot shown while the first page loads.
func (m *Model) SetOffline(activities []model.Activity) {
	m.offline = activities
}

// View renders the feed.
func (m Model) View() string {
	showingOffline := m.state.IsLoadingInitialData && len(m.offline) > 0
	if m.state.IsLoadingInitialData && !showingOffline {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Loading activity…")
	}

	if len(m.state.Activities) == 0 && !showingOffline {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No activity yet.")
	}

	footer := ""
	switch {
	case m.state.IsLoadingMore:
		footer = theme.HelpStyle.Render("loading more…")
	case m.state.IsReachingEnd:
		footer = theme.HelpStyle.Render("end of feed")
	case m.state.CanLoadMore:
		footer = theme.HelpStyle.Render("press m for more")
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), footer)
}

// State exposes the last derived feed state (for the status bar).
func (m Model) State() feed.State {
	return m.state
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
