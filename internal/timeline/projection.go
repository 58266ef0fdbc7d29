package timeline

import "time"

// Projection is the read-only view of one room's timeline.
type Projection struct {
	RoomID    string
	Entries   []Entry
	HasUnseen bool
}

type LineKind int

const (
	LineSender LineKind = iota
	LineBody
	LineDivider
)

// Line is one row the render boundary draws.
type Line struct {
	Kind      LineKind
	Sender    string
	Text      string
	EventID   string
	Timestamp time.Time
	Malformed bool
}

// Lines expands groups into a sender label followed by one line per body,
// and the marker into a single divider.
func (p Projection) Lines() []Line {
	out := make([]Line, 0, len(p.Entries)*2)
	for _, entry := range p.Entries {
		if entry.Kind == EntryMarker {
			out = append(out, Line{Kind: LineDivider})
			continue
		}
		g := entry.Group
		first := g.First()
		out = append(out, Line{Kind: LineSender, Sender: g.Sender, Timestamp: first.Timestamp})
		for _, ev := range g.Events {
			out = append(out, Line{
				Kind:      LineBody,
				Sender:    ev.Sender,
				Text:      ev.Content.Display(),
				EventID:   ev.ID,
				Timestamp: ev.Timestamp,
				Malformed: ev.Content.Malformed(),
			})
		}
	}
	return out
}

// EventIDs flattens the projection into display order.
func (p Projection) EventIDs() []string {
	out := make([]string, 0)
	for _, entry := range p.Entries {
		if entry.Kind == EntryGroup {
			out = append(out, entry.Group.EventIDs()...)
		}
	}
	return out
}

// Groups returns only the message groups, in order.
func (p Projection) Groups() []*Group {
	out := make([]*Group, 0, len(p.Entries))
	for _, entry := range p.Entries {
		if entry.Kind == EntryGroup {
			out = append(out, entry.Group)
		}
	}
	return out
}

// MarkerCount is zero or one.
func (p Projection) MarkerCount() int {
	n := 0
	for _, entry := range p.Entries {
		if entry.Kind == EntryMarker {
			n++
		}
	}
	return n
}

// MarkerIndex returns the marker's entry index, or -1.
func (p Projection) MarkerIndex() int {
	for i, entry := range p.Entries {
		if entry.Kind == EntryMarker {
			return i
		}
	}
	return -1
}
