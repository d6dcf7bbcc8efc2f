package chatview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dhowell/mailpilot/internal/chat"
	"github.com/dhowell/mailpilot/internal/keys"
	"github.com/dhowell/mailpilot/internal/theme"
)

// SendRequestedMsg asks the parent to run a conversational turn.
type SendRequestedMsg struct {
	Text string
}

// ArchiveRequestedMsg asks the parent to archive an email from a list
// message.
type ArchiveRequestedMsg struct {
	MessageID string
	EmailID   string
}

// ReplyRequestedMsg asks the parent to open the composer prefilled as a
// reply to the given email.
type ReplyRequestedMsg struct {
	Email chat.EmailSummary
}

// OpenEmailMsg asks the parent to open the email detail view.
type OpenEmailMsg struct {
	Email chat.EmailSummary
}

// AuthorizeRequestedMsg asks the parent to begin the authorization
// flow for the latest challenge.
type AuthorizeRequestedMsg struct {
	AuthURL string
}

// focusArea tracks which part of the chat panel receives key input.
type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// Model is the conversation panel: the rendered message log above a
// text input. When the latest message carries an email list, focus can
// move to it for per-email actions.
type Model struct {
	input    textarea.Model
	viewport viewport.Model
	messages []chat.Message
	keys     *keys.KeyMap

	focus    focusArea
	selected int // index into the latest list message's emails
	busy     bool

	width  int
	height int
}

// New creates the conversation panel.
func New(k *keys.KeyMap, width, height int) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask me to read, send, or manage your email..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetWidth(width - 4)
	ta.SetHeight(3)
	ta.CharLimit = 2000
	ta.Focus()

	vpHeight := height - 8
	if vpHeight < 4 {
		vpHeight = 4
	}
	vp := viewport.New(width-4, vpHeight)
	vp.Style = lipgloss.NewStyle()

	return Model{
		input:    ta,
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the panel.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// SetSize resizes the panel.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width - 4)
	vpHeight := height - 8
	if vpHeight < 4 {
		vpHeight = 4
	}
	m.viewport.Width = width - 4
	m.viewport.Height = vpHeight
	m.refreshViewport()
}

// SetMessages replaces the rendered snapshot of the conversation log.
func (m *Model) SetMessages(msgs []chat.Message) {
	m.messages = msgs

	// Keep the selection inside the (possibly shrunken) latest list.
	if list := m.latestList(); list == nil {
		m.focus = focusInput
		m.selected = 0
		m.input.Focus()
	} else if m.selected >= len(list.Emails) {
		m.selected = len(list.Emails) - 1
	}

	m.refreshViewport()
}

// SetBusy toggles the in-flight indicator and input gating.
func (m *Model) SetBusy(busy bool) {
	m.busy = busy
	m.refreshViewport()
}

// latestList returns the most recent list message that still holds
// emails, or nil.
func (m *Model) latestList() *chat.Message {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Kind == chat.KindList && len(m.messages[i].Emails) > 0 {
			return &m.messages[i]
		}
	}
	return nil
}

// latestChallenge returns the most recent authorization challenge, or nil.
func (m *Model) latestChallenge() *chat.Message {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Kind == chat.KindOAuth {
			return &m.messages[i]
		}
	}
	return nil
}

// Update handles messages for the panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	// The authorization shortcut works from either focus.
	if key.Matches(msg, m.keys.Authorize) {
		if ch := m.latestChallenge(); ch != nil && ch.Auth != nil {
			url := ch.Auth.AuthURL
			return m, func() tea.Msg { return AuthorizeRequestedMsg{AuthURL: url} }
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Focus) {
		if m.focus == focusInput && m.latestList() != nil {
			m.focus = focusList
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		m.refreshViewport()
		return m, nil
	}

	if m.focus == focusList {
		return m.handleListKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "enter" {
		if m.busy {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, func() tea.Msg { return SendRequestedMsg{Text: text} }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	list := m.latestList()
	if list == nil {
		m.focus = focusInput
		m.input.Focus()
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(list.Emails)-1 {
			m.selected++
			m.refreshViewport()
		}
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			m.refreshViewport()
		}
	case key.Matches(msg, m.keys.Archive):
		email := list.Emails[m.selected]
		msgID := list.ID
		return m, func() tea.Msg {
			return ArchiveRequestedMsg{MessageID: msgID, EmailID: email.ID}
		}
	case key.Matches(msg, m.keys.Reply):
		email := list.Emails[m.selected]
		return m, func() tea.Msg { return ReplyRequestedMsg{Email: email} }
	case key.Matches(msg, m.keys.Select):
		email := list.Emails[m.selected]
		return m, func() tea.Msg { return OpenEmailMsg{Email: email} }
	case key.Matches(msg, m.keys.Back):
		m.focus = focusInput
		m.input.Focus()
		m.refreshViewport()
	}
	return m, nil
}

// refreshViewport re-renders the conversation and scrolls to bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

// renderConversation builds the conversation display string.
func (m Model) renderConversation() string {
	if len(m.messages) == 0 {
		return theme.HelpStyle.Render(
			"Ask me to read your inbox, send an email, or look up a contact.")
	}

	var sections []string
	for i := range m.messages {
		sections = append(sections, m.renderMessage(&m.messages[i]))
	}

	if m.busy {
		sections = append(sections, theme.HelpStyle.Render("..."))
	}

	return strings.Join(sections, "\n")
}

func (m Model) renderMessage(msg *chat.Message) string {
	var label string
	if msg.Origin == chat.OriginUser {
		label = theme.UserLabelStyle.Render("You:")
	} else {
		label = theme.AssistantLabelStyle.Render("Assistant:")
	}

	switch msg.Kind {
	case chat.KindStatus:
		return theme.StatusTextStyle.Render(msg.Text) + "\n"

	case chat.KindOAuth:
		lines := []string{label, msg.Text}
		if msg.Auth != nil {
			lines = append(lines, theme.OAuthStyle.Render(
				fmt.Sprintf("[ %s ]  (press ctrl+a)", msg.Auth.ButtonText)))
		}
		return strings.Join(lines, "\n") + "\n"

	case chat.KindList:
		return label + "\n" + m.renderEmailList(msg) + "\n"

	case chat.KindAction:
		return label + "\n" + theme.AssistantLabelStyle.Render("✓ ") + msg.Text + "\n"

	default:
		return label + "\n" + msg.Text + "\n"
	}
}

// renderEmailList renders a list message with its emails, highlighting
// the selection when the list has focus.
func (m Model) renderEmailList(msg *chat.Message) string {
	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n")

	isLatest := false
	if latest := m.latestList(); latest != nil && latest.ID == msg.ID {
		isLatest = true
	}

	for i, e := range msg.Emails {
		line := fmt.Sprintf("%s — %s", e.From, e.Subject)
		if e.Subject == "" {
			line = fmt.Sprintf("%s — (no subject)", e.From)
		}

		style := theme.EmailItemStyle
		if isLatest && m.focus == focusList && i == m.selected {
			style = theme.SelectedEmailStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
		b.WriteString(theme.SnippetStyle.PaddingLeft(4).Render(truncate(e.Snippet, m.width-8)))
		b.WriteString("\n")
	}

	if isLatest && m.focus == focusList {
		b.WriteString(theme.HelpStyle.Render("enter: open · r: reply · d: archive · esc: back"))
	}
	return b.String()
}

// View renders the panel.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Conversation")

	sep := lipgloss.NewStyle().
		Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", min(m.width-6, 80)))

	return theme.PanelStyle.Width(m.width - 2).Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			title,
			m.viewport.View(),
			sep,
			m.input.View(),
		),
	)
}

func truncate(s string, width int) string {
	if width < 8 {
		width = 8
	}
	if len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}
