package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dhowell/mailpilot/internal/chat"
	"github.com/dhowell/mailpilot/internal/keys"
	"github.com/dhowell/mailpilot/internal/theme"
)

// BackMsg signals the parent to navigate back to the conversation.
type BackMsg struct{}

// ContentLoadedMsg carries the fetched, plain-text email body.
type ContentLoadedMsg struct {
	EmailID string
	Body    string
}

// ReplyMsg asks the parent to start a reply draft for the open email.
type ReplyMsg struct {
	Email chat.EmailSummary
}

// ArchiveMsg asks the parent to archive the open email.
type ArchiveMsg struct {
	Email chat.EmailSummary
}

// Model is the full email view: headers plus the rendered body in a
// scrollable viewport.
type Model struct {
	email    *chat.EmailSummary
	body     string
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(km *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     km,
		width:    width,
		height:   height,
	}
}

// Open sets the email to display and marks the body as loading until
// ContentLoadedMsg arrives.
func (m *Model) Open(email chat.EmailSummary) {
	e := email
	m.email = &e
	m.body = ""
	m.loading = true
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ContentLoadedMsg:
		if m.email == nil || msg.EmailID != m.email.ID {
			return m, nil
		}
		m.body = msg.Body
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.Reply):
			if m.email != nil {
				email := *m.email
				return m, func() tea.Msg { return ReplyMsg{Email: email} }
			}

		case key.Matches(msg, m.keys.Archive):
			if m.email != nil {
				email := *m.email
				return m, func() tea.Msg { return ArchiveMsg{Email: email} }
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.email == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No email selected")
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(theme.HelpStyle.Render("r: reply · d: archive · esc: back"))
	return b.String()
}

// renderContent builds the header block and body for the viewport.
func (m Model) renderContent() string {
	if m.email == nil {
		return ""
	}

	email := m.email
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := email.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	sections = append(sections, titleStyle.Render(subject))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	if email.From != "" {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("From:"),
			valStyle.Render(email.From),
		))
	}
	if email.Date != "" {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Date:"),
			valStyle.Render(email.Date),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", min(m.width-4, 80)))
	sections = append(sections, "")
	sections = append(sections, separator)
	sections = append(sections, "")

	switch {
	case m.loading:
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Loading message..."))
	case m.body == "":
		body := email.Snippet
		if body == "" {
			body = lipgloss.NewStyle().
				Foreground(theme.ColorGray).
				Italic(true).
				Render("No content")
		}
		sections = append(sections, body)
	default:
		sections = append(sections, wrap(m.body, min(m.width-4, 100)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// wrap soft-wraps body text to the given width, preserving blank lines.
func wrap(text string, width int) string {
	if width < 20 {
		width = 20
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.email != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
