package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit        key.Binding
	QuitRooms   key.Binding
	ToggleFocus key.Binding
	Up          key.Binding
	Down        key.Binding
	Select      key.Binding
	Older       key.Binding
	ScrollDown  key.Binding
	Dismiss     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:        key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		QuitRooms:   key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ToggleFocus: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
		Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Older:       key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "older")),
		ScrollDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "newer")),
		Dismiss:     key.NewBinding(key.WithKeys("enter", "esc"), key.WithHelp("enter", "ok")),
	}
}
