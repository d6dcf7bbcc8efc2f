package app

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dhowell/mailpilot/internal/backend"
	"github.com/dhowell/mailpilot/internal/chat"
	"github.com/dhowell/mailpilot/internal/history"
	"github.com/dhowell/mailpilot/internal/keys"
	"github.com/dhowell/mailpilot/internal/mailtext"
	"github.com/dhowell/mailpilot/internal/session"
	"github.com/dhowell/mailpilot/internal/ui"
	"github.com/dhowell/mailpilot/internal/ui/chatview"
	"github.com/dhowell/mailpilot/internal/ui/composer"
	"github.com/dhowell/mailpilot/internal/ui/detail"
	helpview "github.com/dhowell/mailpilot/internal/ui/help"
	loginview "github.com/dhowell/mailpilot/internal/ui/login"
)

// logChangedMsg tells the UI to re-read the conversation log.
type logChangedMsg struct{}

// turnDoneMsg carries the resolved outcome of a conversational turn.
// Outcome is nil when the call failed; the failure is already a log
// entry by then.
type turnDoneMsg struct {
	outcome chat.Outcome
}

// archiveDoneMsg signals that an archive request has resolved.
type archiveDoneMsg struct{}

// approveDoneMsg signals that an approved send has resolved.
type approveDoneMsg struct{}

// approveBlockedMsg bounces the user back to the composer because the
// recipient could not be resolved to an address.
type approveBlockedMsg struct {
	status string
}

// loginResultMsg carries the outcome of a login attempt.
type loginResultMsg struct {
	email string
	resp  *backend.LoginResponse
	err   error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewChat ViewState = iota
	ViewCompose
	ViewDetail
	ViewLogin
	ViewHelp
)

// Model is the root Bubble Tea model that manages view routing, layout,
// and the conversation core.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	logger       *slog.Logger

	log     *chat.Log
	orch    *chat.Orchestrator
	pending *chat.PendingCoordinator
	auth    *chat.AuthFlow
	client  *backend.Client
	session *session.Session

	chatView    chatview.Model
	composeView composer.Model
	detailView  detail.Model
	loginView   loginview.Model
	helpView    helpview.Model

	ready bool
	busy  bool
}

// Deps bundles the wired collaborators the root model needs.
type Deps struct {
	Client  *backend.Client
	Session *session.Session
	History *history.Store
	Consent chat.ConsentTransport
	Logger  *slog.Logger
}

// New creates the root application model and wires the conversation
// core around the given collaborators.
func New(deps Deps) Model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	km := keys.DefaultKeyMap()

	log := chat.NewLog()

	// The orchestrator only clears the stored session on 401/403; the
	// Update loop routes to the login view once the turn resolves.
	onUnauthenticated := func() {
		if err := deps.Session.Clear(); err != nil {
			logger.Warn("clearing session failed", "error", err)
		}
	}

	var recorder chat.SendRecorder
	if deps.History != nil {
		recorder = deps.History
	}
	pending := chat.NewPendingCoordinator(log, deps.Client, deps.Client, recorder, logger)
	orch := chat.NewOrchestrator(log, deps.Client, deps.Client, pending, onUnauthenticated, logger)
	auth := chat.NewAuthFlow(log, deps.Consent, logger)

	startView := ViewChat
	if !deps.Session.Authenticated() {
		startView = ViewLogin
	}

	return Model{
		currentView: startView,
		logger:      logger,
		log:         log,
		orch:        orch,
		pending:     pending,
		auth:        auth,
		client:      deps.Client,
		session:     deps.Session,
		chatView:    chatview.New(km, 80, 24),
		composeView: composer.New(80, 24),
		detailView:  detail.New(km, 80, 24),
		loginView:   loginview.New(80, 24),
		helpView:    helpview.New(km, 80, 24),
	}
}

// Init seeds the conversation with the greeting and starts watching the
// log for changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForLogChange()}
	if m.currentView == ViewLogin {
		cmds = append(cmds, m.loginView.Init())
	} else {
		cmds = append(cmds, m.chatView.Init(), m.appendGreeting())
	}
	return tea.Batch(cmds...)
}

// appendGreeting puts the assistant's opening line into the log.
func (m Model) appendGreeting() tea.Cmd {
	log := m.log
	return func() tea.Msg {
		log.AppendText(chat.OriginAssistant, chat.GreetingText)
		return nil
	}
}

// waitForLogChange blocks until the conversation log signals a change.
func (m Model) waitForLogChange() tea.Cmd {
	ch := m.log.Changed()
	return func() tea.Msg {
		<-ch
		return logChangedMsg{}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.chatView.SetSize(contentWidth, contentHeight)
		m.composeView.SetSize(contentWidth, contentHeight)
		m.detailView.SetSize(contentWidth, contentHeight)
		m.loginView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		// Forward to the active view so huh forms can size themselves.
		return m.updateActiveView(msg)

	case logChangedMsg:
		m.chatView.SetMessages(m.log.Messages())
		return m, m.waitForLogChange()

	case chatview.SendRequestedMsg:
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.chatView.SetBusy(true)
		return m, m.runTurn(msg.Text)

	case turnDoneMsg:
		m.busy = false
		m.chatView.SetBusy(false)
		if !m.session.Authenticated() {
			m.currentView = ViewLogin
			return m, m.loginView.Init()
		}
		if _, ok := msg.outcome.(chat.ActionRequest); ok {
			if action := m.pending.Current(); action != nil {
				m.previousView = m.currentView
				m.currentView = ViewCompose
				cmd := m.composeView.Start(*action)
				return m, cmd
			}
		}
		return m, nil

	case chatview.AuthorizeRequestedMsg:
		return m, m.beginAuth(msg.AuthURL)

	case chatview.ArchiveRequestedMsg:
		return m, m.runArchive(msg.MessageID, msg.EmailID)

	case archiveDoneMsg:
		return m, nil

	case chatview.ReplyRequestedMsg:
		cmd := m.startReply(msg.Email)
		return m, cmd

	case chatview.OpenEmailMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detailView.Open(msg.Email)
		return m, m.loadEmailContent(msg.Email.ID)

	case detail.BackMsg:
		m.currentView = ViewChat
		return m, nil

	case detail.ReplyMsg:
		cmd := m.startReply(msg.Email)
		return m, cmd

	case detail.ArchiveMsg:
		m.currentView = ViewChat
		if listID, ok := m.listMessageFor(msg.Email.ID); ok {
			return m, m.runArchive(listID, msg.Email.ID)
		}
		return m, nil

	case detail.ContentLoadedMsg:
		var cmd tea.Cmd
		m.detailView, cmd = m.detailView.Update(msg)
		return m, cmd

	case composer.ApproveMsg:
		return m, m.runApprove(msg)

	case composer.CancelMsg:
		m.pending.Cancel()
		m.currentView = ViewChat
		return m, nil

	case approveBlockedMsg:
		if action := m.pending.Current(); action != nil {
			cmd := m.composeView.Start(*action)
			m.composeView.SetStatus(msg.status)
			return m, cmd
		}
		m.currentView = ViewChat
		return m, nil

	case approveDoneMsg:
		m.currentView = ViewChat
		return m, nil

	case loginview.SubmitMsg:
		return m, m.runLogin(msg.Email, msg.Password)

	case loginResultMsg:
		if msg.err != nil {
			m.logger.Warn("login failed", "error", msg.err)
			cmd := m.loginView.SetError("Sign in failed. Check your credentials and try again.")
			return m, cmd
		}
		if err := m.session.SetToken(msg.resp.AccessToken); err != nil {
			m.logger.Error("storing session token failed", "error", err)
			cmd := m.loginView.SetError("Could not store the session. Try again.")
			return m, cmd
		}
		if err := m.session.SetIdentity(msg.email, msg.resp.UserName); err != nil {
			m.logger.Warn("storing identity failed", "error", err)
		}
		m.currentView = ViewChat
		cmds := []tea.Cmd{m.chatView.Init()}
		if m.log.Len() == 0 {
			cmds = append(cmds, m.appendGreeting())
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "ctrl+h":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			if m.currentView == ViewChat || m.currentView == ViewDetail {
				m.previousView = m.currentView
				m.currentView = ViewHelp
				return m, nil
			}

		case "esc":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// runTurn executes one conversational turn off the UI goroutine.
func (m Model) runTurn(text string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		outcome := orch.Send(context.Background(), text)
		return turnDoneMsg{outcome: outcome}
	}
}

// runArchive archives one email from a list message.
func (m Model) runArchive(messageID, emailID string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		orch.Archive(context.Background(), messageID, emailID)
		return archiveDoneMsg{}
	}
}

// beginAuth starts the authorization flow. A second request while one
// is active is ignored by the flow itself.
func (m Model) beginAuth(authURL string) tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		auth.Begin(context.Background(), authURL)
		return nil
	}
}

// runApprove applies the final field edits and attempts the send. When
// the recipient is a contact name it is resolved first; an unresolved
// name bounces back to the composer instead of sending.
func (m Model) runApprove(msg composer.ApproveMsg) tea.Cmd {
	pending := m.pending
	return func() tea.Msg {
		ctx := context.Background()
		pending.Edit(msg.Subject, msg.Body)
		status := pending.EditRecipient(ctx, msg.Recipient)
		if !pending.CanApprove() {
			return approveBlockedMsg{status: status}
		}
		pending.Approve(ctx)
		return approveDoneMsg{}
	}
}

// startReply opens a prefilled draft replying to the given email.
func (m *Model) startReply(email chat.EmailSummary) tea.Cmd {
	subject := email.Subject
	if subject != "" && !hasReplyPrefix(subject) {
		subject = "Re: " + subject
	}
	action := m.pending.Open(chat.ActionRequest{
		Recipient: email.From,
		Subject:   subject,
	})
	m.previousView = m.currentView
	m.currentView = ViewCompose
	return m.composeView.Start(action)
}

func hasReplyPrefix(subject string) bool {
	return len(subject) >= 3 &&
		(subject[:3] == "Re:" || subject[:3] == "RE:" || subject[:3] == "re:")
}

// loadEmailContent fetches and renders the full message body.
func (m Model) loadEmailContent(emailID string) tea.Cmd {
	client := m.client
	logger := m.logger
	return func() tea.Msg {
		resp, err := client.EmailContent(context.Background(), emailID)
		if err != nil || !resp.Success {
			if err != nil {
				logger.Warn("fetching email content failed", "email_id", emailID, "error", err)
			}
			return detail.ContentLoadedMsg{EmailID: emailID, Body: ""}
		}
		body, err := mailtext.Render(resp.EmailContent)
		if err != nil {
			logger.Warn("rendering email content failed", "email_id", emailID, "error", err)
			body = resp.EmailContent
		}
		return detail.ContentLoadedMsg{EmailID: emailID, Body: body}
	}
}

// runLogin performs the credential exchange.
func (m Model) runLogin(email, password string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		resp, err := client.Login(context.Background(), email, password)
		return loginResultMsg{email: email, resp: resp, err: err}
	}
}

// listMessageFor finds the most recent list message containing the
// given email.
func (m Model) listMessageFor(emailID string) (string, bool) {
	msgs := m.log.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind != chat.KindList {
			continue
		}
		for _, e := range msgs[i].Emails {
			if e.ID == emailID {
				return msgs[i].ID, true
			}
		}
	}
	return "", false
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	identity, _ := m.session.Identity()
	header := m.layout.RenderHeader("MailPilot", identity)
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewChat:
		return m.chatView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewLogin:
		return m.loginView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewCompose:
		return "enter submit | esc cancel"
	case ViewDetail:
		return "r reply | d archive | j/k scroll | esc back"
	case ViewLogin:
		return "enter sign in | esc quit"
	case ViewHelp:
		return "ctrl+h close help | esc back"
	default:
		if m.busy {
			return "thinking..."
		}
		if m.auth.Active() {
			return "waiting for authorization in your browser..."
		}
		return "tab focus | ctrl+a authorize | ctrl+h help | ctrl+c quit"
	}
}
