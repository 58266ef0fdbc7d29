package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ThomasJRyan/Nitrix/internal/config"
)

const (
	fieldHomeserver = iota
	fieldUsername
	fieldPassword
	fieldCount
)

var fieldLabels = [fieldCount]string{"Homeserver", "Username", "Password"}

type loginForm struct {
	inputs [fieldCount]textinput.Model
	focus  int
}

func newLoginForm(creds config.Credentials) loginForm {
	var f loginForm
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = "> "
		in.CharLimit = 256
		in.Width = 40
		f.inputs[i] = in
	}
	f.inputs[fieldHomeserver].Placeholder = "matrix.org"
	f.inputs[fieldHomeserver].SetValue(creds.Homeserver)
	f.inputs[fieldUsername].Placeholder = "alice"
	f.inputs[fieldUsername].SetValue(creds.Username)
	f.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	f.inputs[fieldPassword].EchoCharacter = '•'
	f.inputs[fieldPassword].SetValue(creds.Password)

	// Start on the first empty field.
	for i := range f.inputs {
		if f.inputs[i].Value() == "" {
			f.focus = i
			break
		}
	}
	f.inputs[f.focus].Focus()
	return f
}

func (f loginForm) credentials() config.Credentials {
	return config.Credentials{
		Homeserver: strings.TrimSpace(f.inputs[fieldHomeserver].Value()),
		Username:   strings.TrimSpace(f.inputs[fieldUsername].Value()),
		Password:   f.inputs[fieldPassword].Value(),
	}
}

func (f *loginForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + fieldCount) % fieldCount
	f.inputs[f.focus].Focus()
}

// update handles keys on the login screen. submit is true when the form
// should be sent.
func (f *loginForm) update(msg tea.KeyMsg) (cmd tea.Cmd, submit bool) {
	switch msg.String() {
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return nil, false
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return nil, false
	case "enter":
		if f.focus < fieldPassword {
			f.setFocus(f.focus + 1)
			return nil, false
		}
		return nil, true
	}

	var c tea.Cmd
	f.inputs[f.focus], c = f.inputs[f.focus].Update(msg)
	return c, false
}

func (m *Model) viewLogin() string {
	rows := []string{m.chrome.Title.Render("nitrix"), ""}
	for i, in := range m.login.inputs {
		label := fieldLabels[i]
		if i == m.login.focus {
			label = m.chrome.Selected.Render(label)
		} else {
			label = m.chrome.Muted.Render(label)
		}
		rows = append(rows, label, in.View(), "")
	}
	if m.loggingIn {
		rows = append(rows, m.chrome.Muted.Render("Logging in..."))
	} else {
		rows = append(rows, m.chrome.Footer.Render("enter: next/submit  tab: next field  ctrl+c: quit"))
	}
	form := lipgloss.JoinVertical(lipgloss.Left, rows...)
	if m.width == 0 || m.height == 0 {
		return form
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}
