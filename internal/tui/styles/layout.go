package styles

import "github.com/charmbracelet/lipgloss"

const (
	// LayoutGap is the space between the room list and the message pane.
	LayoutGap = 1

	minRoomListWidth = 16
	maxRoomListWidth = 32
	minMessageWidth  = 30

	// inputHeight is the message box plus its border.
	inputHeight = 3
	// chromeHeight covers the title bar and the footer.
	chromeHeight = 2
	// borderSize is one border cell on each side of a pane.
	borderSize = 2
)

// Layout holds the inner sizes of the main screen's panes.
type Layout struct {
	RoomListWidth int
	MessageWidth  int
	PaneHeight    int
	InputWidth    int
	showRoomList  bool
}

// ShowRoomList is false when the terminal is too narrow for both panes.
func (l Layout) ShowRoomList() bool { return l.showRoomList }

// ComputeLayout returns pane sizes for a terminal of width x height.
func ComputeLayout(width, height int) Layout {
	if width <= 0 || height <= 0 {
		return Layout{}
	}

	pane := maxInt(height-chromeHeight-inputHeight-borderSize, 1)
	rooms := clampInt(width/4, minRoomListWidth, maxRoomListWidth)
	message := width - rooms - LayoutGap - 2*borderSize
	show := true
	if message < minMessageWidth {
		rooms = 0
		message = width - borderSize
		show = false
	}

	return Layout{
		RoomListWidth: rooms,
		MessageWidth:  maxInt(message, 1),
		PaneHeight:    pane,
		InputWidth:    maxInt(width-borderSize, 1),
		showRoomList:  show,
	}
}

// PanelStyle returns a focused/unfocused border style for panes.
func PanelStyle(theme Theme, focused bool) lipgloss.Style {
	color := theme.Borders.InactivePane
	if focused {
		color = theme.Borders.ActivePane
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(color))
}

// ChromeStyles are the title bar, footer, room list, and popup styles.
type ChromeStyles struct {
	Title    lipgloss.Style
	Footer   lipgloss.Style
	Room     lipgloss.Style
	Selected lipgloss.Style
	Unseen   lipgloss.Style
	Muted    lipgloss.Style
	Popup    lipgloss.Style
	Button   lipgloss.Style
	Error    lipgloss.Style
}

func NewChromeStyles(theme Theme) ChromeStyles {
	return ChromeStyles{
		Title:    theme.fg(theme.Chrome.Title).Bold(true),
		Footer:   theme.fg(theme.Chrome.Footer),
		Room:     theme.fg(theme.Base.Foreground),
		Selected: theme.fg(theme.Chrome.SelectedItem).Bold(true),
		Unseen:   theme.fg(theme.Chrome.Unseen).Bold(true),
		Muted:    theme.fg(theme.Base.Muted),
		Popup: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(theme.Base.Accent)).
			Padding(1, 2),
		Button: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Base.Accent)).
			Bold(true).
			Padding(0, 1),
		Error: theme.fg(theme.Base.Error).Bold(true),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
