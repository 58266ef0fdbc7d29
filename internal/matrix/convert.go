package matrix

import (
	"strings"

	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

// ToTimeline converts a server event into the timeline's representation.
// A missing, non-string or blank body yields malformed content.
func ToTimeline(roomID string, ev Event) timeline.Event {
	if roomID == "" {
		roomID = ev.RoomID
	}
	content := timeline.MalformedContent()
	if body, ok := ev.Body(); ok {
		content = timeline.TextContent(body)
	}
	return timeline.Event{
		ID:        ev.EventID,
		RoomID:    roomID,
		Sender:    ev.Sender,
		Timestamp: timeline.FromMillis(ev.OriginServerTS),
		Content:   content,
	}
}

// ToTimelinePage converts a /messages chunk, keeping only message events
// that carry an event id.
func ToTimelinePage(roomID string, chunk []Event) []timeline.Event {
	out := make([]timeline.Event, 0, len(chunk))
	for _, ev := range chunk {
		if ev.Type != EventTypeMessage || ev.StateKey != nil || ev.EventID == "" {
			continue
		}
		out = append(out, ToTimeline(roomID, ev))
	}
	return out
}

// Localpart returns "alice" for "@alice:example.org".
func Localpart(userID string) string {
	id := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return userID
	}
	return id
}
