package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/ThomasJRyan/Nitrix/internal/tui/styles"
)

func (m *Model) viewMain() string {
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}

	header := m.renderHeader()
	messages := m.panel(m.focus == focusInput).
		Width(m.layout.MessageWidth).
		Height(m.layout.PaneHeight).
		Render(m.viewport.View())

	row := messages
	if m.layout.ShowRoomList() {
		rooms := m.panel(m.focus == focusRooms).
			Width(m.layout.RoomListWidth).
			Height(m.layout.PaneHeight).
			Render(m.renderRoomList())
		row = lipgloss.JoinHorizontal(lipgloss.Top, rooms, strings.Repeat(" ", styles.LayoutGap), messages)
	}

	input := m.panel(m.focus == focusInput).
		Width(m.layout.InputWidth).
		Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, row, input, m.renderFooter())
}

func (m *Model) renderHeader() string {
	title := "nitrix"
	if m.activeRoom != "" {
		title += " · " + m.roomName(m.activeRoom)
	}
	return m.chrome.Title.Render(truncate.StringWithTail(title, uint(maxInt(m.width, 1)), "…"))
}

func (m *Model) renderRoomList() string {
	width := m.layout.RoomListWidth
	height := m.layout.PaneHeight
	if len(m.rooms) == 0 {
		return m.chrome.Muted.Render("No rooms yet")
	}

	// Keep the cursor in the visible window.
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := start + height
	if end > len(m.rooms) {
		end = len(m.rooms)
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		room := m.rooms[i]
		mark := " "
		if room.Unseen && room.ID != m.activeRoom {
			mark = m.chrome.Unseen.Render("*")
		}
		name := truncate.StringWithTail(room.Name, uint(maxInt(width-2, 1)), "…")
		style := m.chrome.Room
		switch {
		case i == m.cursor && m.focus == focusRooms:
			style = m.chrome.Selected
		case room.ID == m.activeRoom:
			style = m.chrome.Selected.Bold(false)
		}
		lines = append(lines, mark+" "+style.Render(name))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	parts := make([]string, 0, 3)
	if m.focus == focusRooms {
		parts = append(parts, "↑/↓ select  enter open  tab messages  q quit")
	} else {
		parts = append(parts, "enter send  pgup older  tab rooms  ctrl+c quit")
	}
	if m.cursor < len(m.rooms) {
		if last := m.rooms[m.cursor].LastActivity; !last.IsZero() {
			parts = append(parts, "last activity "+humanize.Time(last))
		}
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	return m.chrome.Footer.Render(truncate.String(strings.Join(parts, "  |  "), uint(maxInt(m.width, 1))))
}

func (m *Model) viewPopup() string {
	button := m.chrome.Button.Render("[ OK ]")
	text := m.popup
	if m.width > 0 {
		text = lipgloss.NewStyle().Width(minInt(maxInt(m.width-10, 20), 60)).Render(text)
	}
	box := m.chrome.Popup.Render(lipgloss.JoinVertical(lipgloss.Center, text, "", button))
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (m *Model) panel(focused bool) lipgloss.Style {
	return styles.PanelStyle(m.theme, focused)
}
