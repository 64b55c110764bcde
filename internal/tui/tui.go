// Package tui is the full-screen terminal interface built on Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/auth"
	"github.com/comigor/fastbot-go/internal/chat"
	"github.com/comigor/fastbot-go/internal/composer"
	"github.com/comigor/fastbot-go/internal/session"
)

// narrowWidth is the terminal width below which creating or selecting a
// chat closes the sidebar.
const narrowWidth = 100

const sidebarWidth = 30

type screen int

const (
	screenLogin screen = iota
	screenChat
)

// Deps are the collaborators the interface drives.
type Deps struct {
	Session *session.Store
	Chats   *chat.Store
	Form    *auth.Form
}

// Messages
type (
	// changedMsg asks for a redraw after a store changed outside Update.
	changedMsg struct{}

	opDoneMsg struct {
		op  string
		err error
	}

	authDoneMsg struct{ ok bool }
)

// Model is the root Bubble Tea model.
type Model struct {
	ctx      context.Context
	session  *session.Store
	chats    *chat.Store
	composer *composer.Controller
	form     *auth.Form

	screen        screen
	snap          chat.Snapshot
	width         int
	height        int
	sized         bool
	sidebarOpen   bool
	confirmDelete bool
	status        string // last failure, shown until dismissed
	lastCount     int    // messages rendered in the thread

	input   textarea.Model
	thread  viewport.Model
	spinner spinner.Model
	login   loginModel
}

// New creates the root model.
func New(ctx context.Context, d Deps) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Type your message... (Enter to send, Alt+Enter for a new line)"
	ta.CharLimit = 8000
	ta.ShowLineNumbers = false
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Focus()

	m := Model{
		ctx:         ctx,
		session:     d.Session,
		chats:       d.Chats,
		composer:    composer.New(d.Chats),
		form:        d.Form,
		sidebarOpen: true,
		input:       ta,
		thread:      viewport.New(80, 20),
		spinner:     s,
		login:       newLoginModel(),
	}
	m.refresh()
	return m
}

// Init loads the conversation list when a session was restored.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textarea.Blink}
	if m.screen == screenChat {
		cmds = append(cmds, m.loadCmd())
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.sized {
			m.sidebarOpen = m.width >= narrowWidth
			m.sized = true
		}
		m.layout()

	case authDoneMsg:
		m.login.sync(m.form.State())
		if msg.ok {
			m.status = ""
		}

	case opDoneMsg:
		m.handleOpDone(msg)
		m.layout()

	case changedMsg:

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.refresh()

	if m.screen == screenChat {
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleOpDone(msg opDoneMsg) {
	if msg.err == nil {
		if (msg.op == "create" || msg.op == "select") && m.width < narrowWidth {
			m.sidebarOpen = false
		}
		return
	}
	switch {
	case errors.Is(msg.err, chat.ErrSessionChanged):
		// result belonged to a session that has since ended
	case errors.Is(msg.err, api.ErrUnauthorized), errors.Is(msg.err, chat.ErrNotAuthenticated):
		m.status = "Your session has expired. Please sign in again."
	case errors.Is(msg.err, chat.ErrSendInFlight):
		m.status = "Wait for the reply before sending another message."
	default:
		m.status = fmt.Sprintf("Could not %s: %s", msg.op, api.Detail(msg.err, msg.err.Error()))
	}
}

// refresh pulls the store state into the model.
func (m *Model) refresh() {
	if m.session.Authenticated() {
		m.screen = screenChat
	} else {
		if m.screen == screenChat {
			m.login.sync(m.form.State())
		}
		m.screen = screenLogin
		m.confirmDelete = false
	}

	m.snap = m.chats.Snapshot()
	if m.composer.Disabled() {
		m.input.Blur()
	} else {
		m.input.Focus()
	}

	conv, _ := m.selected()
	m.thread.SetContent(m.renderThread(conv))
	if len(conv.Messages) != m.lastCount {
		m.thread.GotoBottom()
		m.lastCount = len(conv.Messages)
	}
}

func (m Model) selected() (chat.Conversation, bool) {
	for _, c := range m.snap.Conversations {
		if c.ID == m.snap.SelectedID {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

func (m *Model) layout() {
	mainWidth := m.mainWidth()
	m.input.SetWidth(max(mainWidth-4, 10))
	// header, composer box, status and help lines
	m.thread.Width = max(mainWidth-2, 10)
	m.thread.Height = max(m.height-m.input.Height()-8, 3)
	m.login.setWidth(min(max(m.width-10, 20), 60))
}

func (m Model) mainWidth() int {
	w := m.width
	if w == 0 {
		w = 80
	}
	if m.sidebarOpen {
		w -= sidebarWidth + 3
	}
	return w
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "load conversations", err: m.chats.LoadAll(m.ctx)}
	}
}

func (m Model) createCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.chats.CreateNew(m.ctx)
		return opDoneMsg{op: "create", err: err}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "delete", err: m.chats.Delete(m.ctx, id)}
	}
}

func (m Model) sendCmd(id, content string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "send", err: m.chats.Send(m.ctx, id, content)}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "log out", err: m.session.Logout(m.ctx)}
	}
}

// Run starts the interface and blocks until the user quits.
func Run(ctx context.Context, d Deps) error {
	p := tea.NewProgram(New(ctx, d), tea.WithAltScreen(), tea.WithContext(ctx))

	// listeners may fire inside Update, where a blocking Send would deadlock
	redraw := func() { go p.Send(changedMsg{}) }
	d.Chats.OnChange(redraw)
	d.Session.OnLogout(redraw)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
