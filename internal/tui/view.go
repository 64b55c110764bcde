package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/fastbot-go/internal/auth"
	"github.com/comigor/fastbot-go/internal/chat"
)

// View renders the TUI
func (m Model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	if m.confirmDelete {
		return m.viewConfirm()
	}

	main := m.viewMain()
	if !m.sidebarOpen {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.viewSidebar(), main)
}

func (m Model) viewSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("History") + "\n\n")

	if len(m.snap.Conversations) == 0 {
		b.WriteString(infoStyle.Render("No conversations yet") + "\n")
	}
	for _, c := range m.snap.Conversations {
		line := "  " + truncate(c.Title, sidebarWidth-2)
		style := infoStyle
		if c.ID == m.snap.SelectedID {
			line = "▶ " + truncate(c.Title, sidebarWidth-2)
			style = activeStyle
		}
		b.WriteString(style.Render(line) + "\n")
	}

	if cred, ok := m.session.Credential(); ok && cred.DisplayName != "" {
		b.WriteString("\n" + infoStyle.Render(truncate(cred.DisplayName, sidebarWidth)) + "\n")
	}

	height := m.height
	if height == 0 {
		height = 24
	}
	return sidebarStyle.Width(sidebarWidth).Height(height).Render(b.String())
}

func (m Model) viewMain() string {
	var b strings.Builder
	width := m.mainWidth()

	title := "Select a conversation"
	if conv, ok := m.selected(); ok {
		title = conv.Title
	}
	b.WriteString(titleStyle.Render(truncate(title, width-2)) + "\n\n")

	b.WriteString(m.thread.View() + "\n")

	if m.snap.Composing {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), infoStyle.Render("Assistant is typing...")))
	} else {
		b.WriteString("\n")
	}

	b.WriteString(boxStyle.Width(max(width-2, 10)).Render(m.input.View()) + "\n")

	if m.status != "" {
		b.WriteString(statusBarStyle.Render(errorStyle.Render("✗ "+m.status)+"  esc: dismiss") + "\n")
	}

	help := "enter: send │ alt+enter: newline │ ctrl+n: new │ ctrl+↑/↓: switch │ ctrl+d: delete │ ctrl+b: sidebar │ ctrl+o: log out │ ctrl+c: quit"
	b.WriteString(helpStyle.Render(truncate(help, width)))
	return b.String()
}

func (m Model) renderThread(conv chat.Conversation) string {
	if m.snap.SelectedID == "" {
		return infoStyle.Render("Start a new chat to begin (ctrl+n)")
	}
	if len(conv.Messages) == 0 {
		return infoStyle.Render("Say hello!")
	}

	wrap := lipgloss.NewStyle().Width(max(m.thread.Width-2, 10))
	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.Role == chat.RoleUser {
			b.WriteString(userLabelStyle.Render("You"))
		} else {
			b.WriteString(assistantLabelStyle.Render("Assistant"))
		}
		switch msg.Status {
		case chat.StatusPending:
			b.WriteString(" " + pendingStyle.Render("(sending)"))
		case chat.StatusFailed:
			b.WriteString(" " + errorStyle.Render("(failed to send)"))
		}
		b.WriteString("\n" + wrap.Render(msg.Content) + "\n")
	}
	return b.String()
}

func (m Model) viewConfirm() string {
	title := "this conversation"
	if conv, ok := m.selected(); ok {
		title = fmt.Sprintf("%q", conv.Title)
	}
	body := titleStyle.Render("Delete Chat?") + "\n\n" +
		fmt.Sprintf("Delete %s? This cannot be undone.", title) + "\n\n" +
		helpStyle.Render("y: delete │ n/esc: cancel")
	box := confirmStyle.Render(body)
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) viewLogin() string {
	st := m.form.State()

	heading := "Sign in to fastbot"
	if st.Mode == auth.ModeSignup {
		heading = "Create your account"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(heading) + "\n\n")
	for i := 0; i < visible(st.Mode); i++ {
		b.WriteString(m.login.inputs[i].View() + "\n")
	}
	b.WriteString("\n")

	switch {
	case st.Busy:
		b.WriteString(m.spinner.View() + " " + infoStyle.Render("Please wait...") + "\n")
	case st.Error != "":
		b.WriteString(errorStyle.Render(st.Error) + "\n")
	case st.Notice != "":
		b.WriteString(noticeStyle.Render(st.Notice) + "\n")
	case m.status != "":
		b.WriteString(errorStyle.Render(m.status) + "\n")
	default:
		b.WriteString("\n")
	}

	toggle := "ctrl+s: create an account"
	if st.Mode == auth.ModeSignup {
		toggle = "ctrl+s: back to sign in"
	}
	reveal := "ctrl+r: show password"
	if st.ShowPassword {
		reveal = "ctrl+r: hide password"
	}
	help := []string{"enter: submit", "tab: next field", toggle, reveal}
	if m.form.HasProvider() {
		help = append(help, "ctrl+g: identity provider")
	}
	help = append(help, "ctrl+c: quit")
	b.WriteString(helpStyle.Render(strings.Join(help, " │ ")))

	box := boxStyle.Render(b.String())
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
