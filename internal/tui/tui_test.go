package tui

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/auth"
	"github.com/comigor/fastbot-go/internal/chat"
	"github.com/comigor/fastbot-go/internal/config"
	"github.com/comigor/fastbot-go/internal/devserver"
	"github.com/comigor/fastbot-go/internal/kv"
	"github.com/comigor/fastbot-go/internal/session"
)

type harness struct {
	server  *devserver.Server
	session *session.Store
	chats   *chat.Store
	form    *auth.Form
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := devserver.New(devserver.Echo{}, devserver.WithBcryptCost(bcrypt.MinCost))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	sess := session.New(kv.NewMemory())
	client := api.NewClient(config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, sess)
	chats := chat.NewStore(client, sess)
	chats.Follow(sess)
	return &harness{server: s, session: sess, chats: chats, form: auth.NewForm(client, sess, nil)}
}

func (h *harness) model(width int) Model {
	m := New(context.Background(), Deps{Session: h.session, Chats: h.chats, Form: h.form})
	return update(m, tea.WindowSizeMsg{Width: width, Height: 40})
}

// update applies msg and then runs the returned command, feeding its result
// back in, the way the Bubble Tea loop would for a single command.
func update(m Model, msg tea.Msg) Model {
	next, cmd := m.Update(msg)
	m = next.(Model)
	if _, isKey := msg.(tea.KeyMsg); isKey && cmd != nil {
		if out := cmd(); out != nil {
			switch out.(type) {
			case opDoneMsg, authDoneMsg:
				return update(m, out)
			}
		}
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+d":
		return tea.KeyMsg{Type: tea.KeyCtrlD}
	case "ctrl+b":
		return tea.KeyMsg{Type: tea.KeyCtrlB}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "alt+k":
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}, Alt: true}
	case "alt+j":
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}, Alt: true}
	case "alt+enter":
		return tea.KeyMsg{Type: tea.KeyEnter, Alt: true}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *harness) signedIn(t *testing.T, width int) Model {
	t.Helper()
	m := h.model(width)
	require.Equal(t, screenLogin, m.screen)

	m = update(m, key("ctrl+s"))
	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m.login.inputs[fieldPassword].SetValue("pw")
	m.login.inputs[fieldFullName].SetValue("Ada")
	m = update(m, key("enter"))
	require.Equal(t, auth.MsgAccountCreated, h.form.State().Notice)
	require.Equal(t, "ada@example.com", m.login.inputs[fieldEmail].Value())

	m.login.inputs[fieldPassword].SetValue("pw")
	m = update(m, key("enter"))
	require.Equal(t, screenChat, m.screen, h.form.State().Error)
	return m
}

func TestLogin_MissingFieldsStaysOnLoginScreen(t *testing.T) {
	h := newHarness(t)
	m := h.model(120)

	m = update(m, key("enter"))
	require.Equal(t, screenLogin, m.screen)
	require.Equal(t, auth.MsgMissingFields, h.form.State().Error)
	require.Contains(t, m.View(), auth.MsgMissingFields)
}

func TestChat_CreateSendAndTitle(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	require.Contains(t, m.View(), "Select a conversation")

	m = update(m, key("ctrl+n"))
	require.Len(t, m.snap.Conversations, 1)
	require.True(t, m.sidebarOpen, "wide terminals keep the sidebar")

	m.input.SetValue("Hello world")
	m = update(m, key("enter"))
	require.Empty(t, m.input.Value())

	conv, ok := m.selected()
	require.True(t, ok)
	require.Equal(t, "Hello world", conv.Title)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, chat.StatusConfirmed, conv.Messages[0].Status)
	require.Contains(t, m.View(), "You said: Hello world")
}

func TestChat_BlankEnterDoesNothing(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	m = update(m, key("ctrl+n"))

	m.input.SetValue("   ")
	m = update(m, key("enter"))
	conv, _ := m.selected()
	require.Empty(t, conv.Messages)
}

func TestChat_AltEnterInsertsNewline(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	m = update(m, key("ctrl+n"))

	m.input.SetValue("line one")
	m = update(m, key("alt+enter"))
	require.Equal(t, "line one\n", m.input.Value())
	conv, _ := m.selected()
	require.Empty(t, conv.Messages)
}

func TestChat_NarrowTerminalClosesSidebarOnCreate(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 80)
	require.False(t, m.sidebarOpen)

	m = update(m, key("ctrl+b"))
	require.True(t, m.sidebarOpen)
	m = update(m, key("ctrl+n"))
	require.False(t, m.sidebarOpen)
}

func TestChat_SelectAndDeleteWithConfirmation(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	for range 3 {
		m = update(m, key("ctrl+n"))
	}
	ids := []string{m.snap.Conversations[0].ID, m.snap.Conversations[1].ID, m.snap.Conversations[2].ID}
	require.Equal(t, ids[0], m.snap.SelectedID)

	m = update(m, key("alt+j"))
	require.Equal(t, ids[1], m.snap.SelectedID)
	m = update(m, key("alt+k"))
	m = update(m, key("alt+k"))
	require.Equal(t, ids[0], m.snap.SelectedID, "selection stops at the top")

	m = update(m, key("ctrl+d"))
	require.True(t, m.confirmDelete)
	require.Contains(t, m.View(), "Delete Chat?")
	m = update(m, key("n"))
	require.False(t, m.confirmDelete)
	require.Len(t, m.snap.Conversations, 3)

	m = update(m, key("ctrl+d"))
	m = update(m, key("y"))
	require.Len(t, m.snap.Conversations, 2)
	require.Equal(t, ids[1], m.snap.SelectedID)
}

func TestChat_ExpiredSessionReturnsToLogin(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	m = update(m, key("ctrl+n"))

	h.server.Revoke(h.session.Token())
	m = update(m, key("ctrl+n"))

	require.Equal(t, screenLogin, m.screen)
	require.False(t, h.session.Authenticated())
	require.Empty(t, m.snap.Conversations)
	require.Contains(t, m.View(), "Your session has expired")
}

func TestChat_Logout(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)
	m = update(m, key("ctrl+n"))

	m = update(m, key("ctrl+o"))
	require.Equal(t, screenLogin, m.screen)
	require.Empty(t, h.chats.Snapshot().Conversations)
}

func TestChat_ResultFromEndedSessionIsSilent(t *testing.T) {
	h := newHarness(t)
	m := h.signedIn(t, 120)

	m = update(m, opDoneMsg{op: "create", err: chat.ErrSessionChanged})
	require.Empty(t, m.status)
	require.NotContains(t, m.View(), "Could not create")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "hello", truncate("hello", 10))
	require.Equal(t, "hel…", truncate("hello", 4))
	require.Equal(t, "…", truncate("hello", 1))
}
