// Package softlogin renders the confirmation dialog for an intercepted
// soft-login message. The dialog only exists while a message is diverted
// and a user is present; confirming or declining clears the message from
// the queue through the same path as any toast.
package softlogin

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mverhagen/memberhub/internal/notify"
	"github.com/mverhagen/memberhub/internal/theme"
)

// ConfirmedMsg is dispatched when the member confirmed staying signed in.
type ConfirmedMsg struct {
	MessageID string
}

// DeclinedMsg is dispatched when the member declined; the app signs out.
type DeclinedMsg struct {
	MessageID string
}

// formBindings holds the confirm value on the heap so huh's Value()
// pointer remains valid across Bubble Tea model copies.
type formBindings struct {
	confirmed bool
}

// Model is the soft-login confirmation dialog.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	messageID string
	title     string
	width     int
	height    int
}

// New creates an inactive dialog model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Open initializes the dialog for one intercepted message.
func (m *Model) Open(msg notify.Message) tea.Cmd {
	m.messageID = msg.ID
	m.title = msg.Title
	m.fb.confirmed = false

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Confirm it's still you").
				Description(msg.Body).
				Affirmative("Stay signed in").
				Negative("Sign out").
				Value(&m.fb.confirmed),
		),
	)
	return m.form.Init()
}

// Active reports whether a dialog is currently open.
func (m Model) Active() bool {
	return m.form != nil
}

// MessageID returns the queued message this dialog answers for.
func (m Model) MessageID() string {
	return m.messageID
}

// Update drives the form; completion dispatches the outcome message and
// deactivates the dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		id := m.messageID
		confirmed := m.fb.confirmed
		m.form = nil

		return m, func() tea.Msg {
			if confirmed {
				return ConfirmedMsg{MessageID: id}
			}
			return DeclinedMsg{MessageID: id}
		}
	}

	return m, cmd
}

// View renders the dialog centered in its panel.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	panel := lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBlue).
		Render(m.form.View())

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		panel,
	)
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
