package composer

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/dhowell/mailpilot/internal/chat"
	"github.com/dhowell/mailpilot/internal/theme"
)

// ApproveMsg signals the parent that the user approved the draft with
// these final field values.
type ApproveMsg struct {
	Recipient string
	Subject   string
	Body      string
}

// CancelMsg signals the parent that the user cancelled the draft.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's
// Value() pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	recipient string
	subject   string
	body      string
	confirm   bool
}

// Model is the review form for a pending email action.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	status string
	width  int
	height int
}

// New creates an empty composer model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the form from a pending action.
func (m *Model) Start(action chat.PendingAction) tea.Cmd {
	m.fb.recipient = action.Recipient
	m.fb.subject = action.Subject
	m.fb.body = action.Body
	m.fb.confirm = false
	m.status = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// SetStatus surfaces a short status string (e.g. the result of a
// name-to-address resolution) above the form.
func (m *Model) SetStatus(status string) {
	m.status = status
}

// Update handles messages for the composer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) handleSubmit() tea.Cmd {
	if !m.fb.confirm {
		return func() tea.Msg { return CancelMsg{} }
	}
	approve := ApproveMsg{
		Recipient: strings.TrimSpace(m.fb.recipient),
		Subject:   m.fb.subject,
		Body:      m.fb.body,
	}
	return func() tea.Msg { return approve }
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("address or contact name").
				Value(&m.fb.recipient).
				Validate(requireRecipient),
			huh.NewInput().
				Title("Subject").
				Value(&m.fb.subject),
			huh.NewText().
				Title("Body").
				Value(&m.fb.body),
			huh.NewConfirm().
				Title("Send this email?").
				Affirmative("Approve & Send").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// requireRecipient only insists on a non-empty field. A contact name
// is acceptable here: the parent resolves names to addresses on
// approval and bounces back with a status line when no address is
// found.
func requireRecipient(value string) error {
	if strings.TrimSpace(value) == "" {
		return errRecipient
	}
	return nil
}

var errRecipient = errValidation("enter an email address or a contact name")

type errValidation string

func (e errValidation) Error() string { return string(e) }

// View renders the composer.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Review Email")}
	if m.status != "" {
		parts = append(parts, theme.HelpStyle.Render(m.status))
	}
	parts = append(parts, m.form.View())

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(strings.Join(parts, "\n"))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 10 {
		h = 10
	}
	return h
}
