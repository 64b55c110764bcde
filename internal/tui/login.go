package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/fastbot-go/internal/auth"
)

const (
	fieldEmail = iota
	fieldPassword
	fieldFullName
)

// loginModel holds the text inputs of the sign-in screen. The form state
// itself lives in auth.Form.
type loginModel struct {
	inputs []textinput.Model
	focus  int
}

func newLoginModel() loginModel {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email     "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password  "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	fullName := textinput.New()
	fullName.Placeholder = "Ada Lovelace"
	fullName.Prompt = "Full name "
	fullName.CharLimit = 120

	return loginModel{inputs: []textinput.Model{email, password, fullName}}
}

func (l *loginModel) setWidth(w int) {
	for i := range l.inputs {
		l.inputs[i].Width = w
	}
}

// visible is the number of inputs shown in the given mode.
func visible(mode auth.Mode) int {
	if mode == auth.ModeSignup {
		return 3
	}
	return 2
}

func (l *loginModel) fields() auth.Fields {
	return auth.Fields{
		Email:    l.inputs[fieldEmail].Value(),
		Password: l.inputs[fieldPassword].Value(),
		FullName: l.inputs[fieldFullName].Value(),
	}
}

func (l *loginModel) setFocus(i int) {
	l.focus = i
	for j := range l.inputs {
		if j == i {
			l.inputs[j].Focus()
		} else {
			l.inputs[j].Blur()
		}
	}
}

// sync copies the form's fields back into the inputs.
func (l *loginModel) sync(st auth.State) {
	l.inputs[fieldEmail].SetValue(st.Fields.Email)
	l.inputs[fieldPassword].SetValue(st.Fields.Password)
	l.inputs[fieldFullName].SetValue(st.Fields.FullName)
	l.applyReveal(st.ShowPassword)
	if l.focus >= visible(st.Mode) {
		l.setFocus(fieldEmail)
	}
}

func (l *loginModel) applyReveal(show bool) {
	if show {
		l.inputs[fieldPassword].EchoMode = textinput.EchoNormal
	} else {
		l.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.form.State()
	if st.Busy {
		return m, nil
	}
	n := visible(st.Mode)

	switch msg.String() {
	case "tab", "down":
		m.login.setFocus((m.login.focus + 1) % n)
		return m, nil

	case "shift+tab", "up":
		m.login.setFocus((m.login.focus + n - 1) % n)
		return m, nil

	case "ctrl+s":
		m.form.ToggleMode()
		m.login.sync(m.form.State())
		m.login.setFocus(fieldEmail)
		return m, nil

	case "ctrl+r":
		m.form.TogglePassword()
		m.login.applyReveal(m.form.State().ShowPassword)
		return m, nil

	case "ctrl+g":
		form := m.form
		ctx := m.ctx
		return m, func() tea.Msg {
			return authDoneMsg{ok: form.SignInWithProvider(ctx)}
		}

	case "enter":
		m.form.SetFields(m.login.fields())
		form := m.form
		ctx := m.ctx
		return m, func() tea.Msg {
			return authDoneMsg{ok: form.Submit(ctx)}
		}
	}

	var cmd tea.Cmd
	m.login.inputs[m.login.focus], cmd = m.login.inputs[m.login.focus].Update(msg)
	return m, cmd
}
