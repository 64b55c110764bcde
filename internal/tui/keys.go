package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmDelete {
		switch msg.String() {
		case "y", "Y":
			m.confirmDelete = false
			if id := m.snap.SelectedID; id != "" {
				return m, m.deleteCmd(id)
			}
		case "n", "N", "esc":
			m.confirmDelete = false
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+n":
		return m, m.createCmd()

	case "ctrl+up", "alt+k":
		return m.selectRelative(-1)

	case "ctrl+down", "alt+j":
		return m.selectRelative(1)

	case "ctrl+d":
		if m.snap.SelectedID != "" {
			m.confirmDelete = true
		}
		return m, nil

	case "ctrl+b":
		m.sidebarOpen = !m.sidebarOpen
		m.layout()
		return m, nil

	case "ctrl+o":
		return m, m.logoutCmd()

	case "esc":
		m.status = ""
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return m, cmd

	case "alt+enter", "ctrl+j":
		if !m.composer.Disabled() {
			m.input.InsertString("\n")
		}
		return m, nil

	case "enter":
		m.composer.SetInput(m.input.Value())
		id, content, ok := m.composer.Take()
		if !ok {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		// the optimistic message is visible as soon as Send appends it
		return m, m.sendCmd(id, content)
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// selectRelative moves the selection by delta within the history list.
func (m Model) selectRelative(delta int) (tea.Model, tea.Cmd) {
	convs := m.snap.Conversations
	if len(convs) == 0 {
		return m, nil
	}
	i := 0
	for j, c := range convs {
		if c.ID == m.snap.SelectedID {
			i = j + delta
			break
		}
	}
	if i < 0 || i >= len(convs) {
		return m, nil
	}
	m.chats.Select(convs[i].ID)
	m.handleOpDone(opDoneMsg{op: "select"})
	m.refresh()
	m.layout()
	return m, nil
}
