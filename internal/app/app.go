// Package app is the root Bubble Tea model: it wires the sync core
// (cache, feed accumulator, unread poller, announcement fetcher,
// notification queue) to the terminal UI and routes messages between them.
package app

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/mverhagen/memberhub/internal/announce"
	"github.com/mverhagen/memberhub/internal/api"
	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/feed"
	"github.com/mverhagen/memberhub/internal/keys"
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/notify"
	"github.com/mverhagen/memberhub/internal/session"
	"github.com/mverhagen/memberhub/internal/store"
	"github.com/mverhagen/memberhub/internal/suppress"
	"github.com/mverhagen/memberhub/internal/theme"
	"github.com/mverhagen/memberhub/internal/ui/feedview"
	"github.com/mverhagen/memberhub/internal/ui/softlogin"
	"github.com/mverhagen/memberhub/internal/unread"
)

// bannerSlug is the announcement slot this client surfaces above the feed.
const bannerSlug = "member-banner"

// Internal tick and channel-relay messages.
type (
	tickMsg           struct{}
	sessionChangedMsg struct{}
	unreadChangedMsg  struct{}
	queueChangedMsg   struct{}
	bannerChangedMsg  struct{}
	toastExpiredMsg   struct{ id string }
	snapshotLoadedMsg struct{ activities []model.Activity }
)

// Model is the root application model.
type Model struct {
	cfg     *model.AppConfig
	store   store.Store
	cache   *cache.Cache
	client  *api.Client
	session *session.Manager
	poller  *unread.Poller
	acc     *feed.Accumulator
	queue   *notify.Queue
	banner  *announce.Handle
	log     *zap.Logger

	keys      *keys.KeyMap
	feedView  feedview.Model
	dialog    softlogin.Model
	scheduled map[string]struct{}
	width     int
	height    int
	ready     bool
}

// New assembles the application. The queue is shared so other producers
// (e.g., the mail watcher) can be started around it. Extra logout hooks
// run alongside the session-flag reset when the member signs out.
func New(
	cfg *model.AppConfig,
	localStore store.Store,
	client *api.Client,
	queue *notify.Queue,
	log *zap.Logger,
	onLogout ...func(),
) Model {
	if log == nil {
		log = zap.NewNop()
	}

	c := cache.New()
	sessionMgr := session.NewManager(c, client)

	sessionFlags := suppress.NewSessionStore()
	sessionMgr.OnLogout(sessionFlags.Reset)
	for _, fn := range onLogout {
		sessionMgr.OnLogout(fn)
	}

	announcer := announce.NewFetcher(c, client, sessionMgr, sessionFlags, log)
	acc := feed.New(c, client, sessionMgr, cfg.Server.PageSize)
	poller := unread.New(c, client, sessionMgr, unread.Config{})

	k := keys.DefaultKeyMap()

	return Model{
		cfg:       cfg,
		store:     localStore,
		cache:     c,
		client:    client,
		session:   sessionMgr,
		poller:    poller,
		acc:       acc,
		queue:     queue,
		banner:    announcer.Handle(bannerSlug),
		log:       log,
		keys:      k,
		feedView:  feedview.New(acc, k, 80, 24),
		dialog:    softlogin.New(80, 24),
		scheduled: make(map[string]struct{}),
	}
}

// Init starts the channel relays and the render tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.feedView.Init(),
		m.loadSnapshot(),
		m.waitForFeed(),
		m.waitForSession(),
		m.waitForUnread(),
		m.waitForQueue(),
		m.waitForBanner(),
		m.tick(),
	)
}

// Update routes messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.feedView.SetSize(msg.Width, msg.Height-4)
		m.dialog.SetSize(msg.Width, msg.Height)
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		m.cache.Focus()
		return m, nil

	case tickMsg:
		// The unread gates open on their own clock; the tick keeps the
		// badge current without any message arriving.
		return m, m.tick()

	case snapshotLoadedMsg:
		m.feedView.SetOffline(msg.activities)
		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(feedview.FeedChangedMsg{})
		return m, cmd

	case feedview.FeedChangedMsg:
		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(msg)
		return m, tea.Batch(cmd, m.persistSnapshot(), m.waitForFeed())

	case sessionChangedMsg:
		// Re-deriving the feed re-checks its session gate, so pages
		// start loading as soon as the member is known.
		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(feedview.FeedChangedMsg{})
		return m, tea.Batch(cmd, m.confirmDialogCmd(), m.waitForSession())

	case unreadChangedMsg:
		return m, m.waitForUnread()

	case bannerChangedMsg:
		return m, m.waitForBanner()

	case queueChangedMsg:
		return m, tea.Batch(
			m.confirmDialogCmd(),
			m.scheduleAutoClose(),
			m.waitForQueue(),
		)

	case toastExpiredMsg:
		delete(m.scheduled, msg.id)
		m.queue.Clear(msg.id)
		return m, nil

	case softlogin.ConfirmedMsg:
		m.queue.Clear(msg.MessageID)
		m.cache.Revalidate(session.CacheKey, true)
		return m, nil

	case softlogin.DeclinedMsg:
		m.queue.Clear(msg.MessageID)
		m.session.Logout()
		return m, nil

	case tea.KeyMsg:
		if m.dialog.Active() {
			var cmd tea.Cmd
			m.dialog, cmd = m.dialog.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.DismissBanner):
			m.banner.Dismiss()
			return m, nil

		case key.Matches(msg, m.keys.DismissToast):
			_, generic := m.queue.Partition()
			if len(generic) > 0 {
				m.queue.Clear(generic[0].ID)
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(msg)
		return m, cmd
	}

	if m.dialog.Active() {
		var cmd tea.Cmd
		m.dialog, cmd = m.dialog.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.feedView, cmd = m.feedView.Update(msg)
	return m, cmd
}

// View composes banner, feed, toasts, status bar, and the dialog overlay.
func (m Model) View() string {
	if !m.ready {
		return "Starting…"
	}

	if m.dialog.Active() {
		return m.dialog.View()
	}

	sections := []string{m.bannerView()}
	sections = append(sections, m.feedView.View())
	if toasts := m.toastsView(); toasts != "" {
		sections = append(sections, toasts)
	}
	sections = append(sections, m.statusBarView())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) bannerView() string {
	announcement, _ := m.banner.Get()
	if announcement == nil {
		return ""
	}
	body := announcement.Title
	if announcement.Body != "" {
		body += " — " + announcement.Body
	}
	hint := theme.HelpStyle.Render("  (x to dismiss)")
	return theme.BannerStyle.Width(m.width - 2).Render(body + hint)
}

func (m Model) toastsView() string {
	_, generic := m.queue.Partition()
	if len(generic) == 0 {
		return ""
	}

	lines := make([]string, 0, len(generic))
	for _, msg := range generic {
		label := theme.SeverityStyle(string(msg.Severity)).Render(string(msg.Severity))
		lines = append(lines, theme.ToastStyle.Render(label+" "+msg.Title))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) statusBarView() string {
	left := "memberhub"
	if user, ok := m.session.User(); ok && user != nil {
		left += " · " + user.Name
	} else {
		left += " · signed out"
	}

	badge := ""
	if n := m.poller.Count(); n > 0 {
		badge = theme.BadgeStyle.Render(strconv.Itoa(n) + " unread")
	}

	bar := theme.StatusBarStyle.Width(m.width - lipgloss.Width(badge)).Render(left)
	return lipgloss.JoinHorizontal(lipgloss.Top, bar, badge)
}

// confirmDialogCmd opens the soft-login dialog when the interception scan
// extracted a message and a user is present. With no user the message is
// swallowed: neither dialog nor toast, until something clears it.
func (m *Model) confirmDialogCmd() tea.Cmd {
	intercepted, _ := m.queue.Partition()
	user, _ := m.session.User()

	if !notify.ShouldConfirm(intercepted, user) {
		return nil
	}
	if m.dialog.Active() && m.dialog.MessageID() == intercepted.ID {
		return nil
	}
	return m.dialog.Open(*intercepted)
}

// scheduleAutoClose arms a one-shot expiry for every auto-closing toast
// not scheduled yet.
func (m *Model) scheduleAutoClose() tea.Cmd {
	_, generic := m.queue.Partition()

	var cmds []tea.Cmd
	for _, msg := range generic {
		if msg.AutoClose <= 0 {
			continue
		}
		if _, ok := m.scheduled[msg.ID]; ok {
			continue
		}
		m.scheduled[msg.ID] = struct{}{}

		id := msg.ID
		cmds = append(cmds, tea.Tick(msg.AutoClose, func(time.Time) tea.Msg {
			return toastExpiredMsg{id: id}
		}))
	}
	return tea.Batch(cmds...)
}

// loadSnapshot reads the offline activity snapshot from the local store.
func (m Model) loadSnapshot() tea.Cmd {
	localStore := m.store
	return func() tea.Msg {
		activities, err := localStore.GetActivities(context.Background(), 100)
		if err != nil || len(activities) == 0 {
			return nil
		}
		return snapshotLoadedMsg{activities: activities}
	}
}

// persistSnapshot writes the current accumulated feed to the local store
// so the next run has something to show immediately.
func (m Model) persistSnapshot() tea.Cmd {
	state := m.acc.State()
	if len(state.Activities) == 0 {
		return nil
	}

	localStore := m.store
	log := m.log
	activities := state.Activities
	return func() tea.Msg {
		if err := localStore.SaveActivities(context.Background(), activities); err != nil {
			log.Warn("saving activity snapshot failed", zap.Error(err))
		}
		return nil
	}
}

// Channel relays: each waits for one signal and reposts itself from Update.

func (m Model) waitForFeed() tea.Cmd {
	updates := m.acc.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return feedview.FeedChangedMsg{}
	}
}

func (m Model) waitForSession() tea.Cmd {
	updates := m.session.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return sessionChangedMsg{}
	}
}

func (m Model) waitForUnread() tea.Cmd {
	updates := m.poller.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return unreadChangedMsg{}
	}
}

func (m Model) waitForQueue() tea.Cmd {
	updates := m.queue.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return queueChangedMsg{}
	}
}

func (m Model) waitForBanner() tea.Cmd {
	updates := m.banner.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return bannerChangedMsg{}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}
