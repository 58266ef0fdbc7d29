package styles

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/ThomasJRyan/Nitrix/internal/matrix"
	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

// DividerLabel is drawn where the new-messages marker sits.
const DividerLabel = "NEW MESSAGES"

// DefaultTimeFormat renders e.g. "Tue 04, 09:15PM".
const DefaultTimeFormat = "Mon 02, 03:04PM"

const bodyIndent = "  "

// MessageStyles contains pre-built styles for the message pane.
type MessageStyles struct {
	Theme      Theme
	Users      *UserColorMapper
	TimeFormat string

	Timestamp lipgloss.Style
	Body      lipgloss.Style
	Malformed lipgloss.Style
	Divider   lipgloss.Style
}

// NewMessageStyles builds a reusable style set for messages. An empty
// timeFormat uses DefaultTimeFormat.
func NewMessageStyles(theme Theme, timeFormat string) MessageStyles {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return MessageStyles{
		Theme:      theme,
		Users:      NewUserColorMapper(theme),
		TimeFormat: timeFormat,
		Timestamp:  theme.fg(theme.Base.Muted),
		Body:       theme.fg(theme.Base.Foreground),
		Malformed:  theme.fg(theme.Base.Error).Italic(true),
		Divider:    theme.fg(theme.Chrome.Divider).Bold(true),
	}
}

// RenderHeader renders the sender label and the group's first timestamp.
func (s MessageStyles) RenderHeader(sender string, ts time.Time) string {
	name := s.Users.Foreground(sender).Render(matrix.Localpart(sender))
	return name + "  " + s.Timestamp.Render(ts.Local().Format(s.TimeFormat))
}

// RenderBody renders one wrapped, indented body.
func (s MessageStyles) RenderBody(line timeline.Line, width int) string {
	style := s.Body
	if line.Malformed {
		style = s.Malformed
	}
	wrapped := wrapMessageBody(line.Text, width-len(bodyIndent))
	parts := strings.Split(wrapped, "\n")
	for i, part := range parts {
		parts[i] = bodyIndent + style.Render(part)
	}
	return strings.Join(parts, "\n")
}

// RenderDivider renders the marker across width columns.
func (s MessageStyles) RenderDivider(width int) string {
	label := " " + DividerLabel + " "
	pad := width - lipgloss.Width(label)
	if pad < 2 {
		return s.Divider.Render(DividerLabel)
	}
	left := pad / 2
	return s.Divider.Render(strings.Repeat("─", left) + label + strings.Repeat("─", pad-left))
}

// RenderProjection renders a projection as the message pane's content.
// Groups are separated by a blank line.
func RenderProjection(p timeline.Projection, width int, s MessageStyles) string {
	lines := p.Lines()
	out := make([]string, 0, len(lines)+len(p.Entries))
	for i, line := range lines {
		switch line.Kind {
		case timeline.LineDivider:
			out = append(out, s.RenderDivider(width))
		case timeline.LineSender:
			if i > 0 && lines[i-1].Kind != timeline.LineDivider {
				out = append(out, "")
			}
			out = append(out, s.RenderHeader(line.Sender, line.Timestamp))
		case timeline.LineBody:
			out = append(out, s.RenderBody(line, width))
		}
	}
	return strings.Join(out, "\n")
}

func wrapMessageBody(body string, width int) string {
	if width <= 0 {
		return body
	}

	parts := strings.Split(body, "\n")
	for i := range parts {
		parts[i] = wordwrap.String(parts[i], width)
	}
	return strings.Join(parts, "\n")
}
