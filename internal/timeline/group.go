package timeline

import "time"

// GroupWindow is the largest gap between two consecutive messages of one
// sender that still renders them as a single block.
const GroupWindow = 300 * time.Second

// Group is a run of consecutive events from one sender.
type Group struct {
	Sender string
	Events []Event
}

func newGroup(ev Event) *Group {
	return &Group{Sender: ev.Sender, Events: []Event{ev}}
}

func (g *Group) First() Event { return g.Events[0] }

func (g *Group) Last() Event { return g.Events[len(g.Events)-1] }

// EventIDs returns member ids in display order.
func (g *Group) EventIDs() []string {
	out := make([]string, 0, len(g.Events))
	for _, ev := range g.Events {
		out = append(out, ev.ID)
	}
	return out
}

func (g *Group) clone() *Group {
	return &Group{Sender: g.Sender, Events: append([]Event(nil), g.Events...)}
}

// extends reports whether ev may join g. Callers must already know that no
// marker sits between g and ev.
func (g *Group) extends(ev Event) bool {
	if g == nil || len(g.Events) == 0 {
		return false
	}
	if g.Sender != ev.Sender {
		return false
	}
	return ev.Timestamp.Sub(g.Last().Timestamp) <= GroupWindow
}

type EntryKind int

const (
	EntryGroup EntryKind = iota
	EntryMarker
)

// Entry is one timeline row: a message group or the new-messages marker.
type Entry struct {
	Kind  EntryKind
	Group *Group
}

func groupEntry(g *Group) Entry { return Entry{Kind: EntryGroup, Group: g} }

func markerEntry() Entry { return Entry{Kind: EntryMarker} }

func (e Entry) IsMarker() bool { return e.Kind == EntryMarker }

// appendEvent applies the grouping policy to the tail of entries.
func appendEvent(entries []Entry, ev Event) []Entry {
	if n := len(entries); n > 0 {
		last := entries[n-1]
		if last.Kind == EntryGroup && last.Group.extends(ev) {
			last.Group.Events = append(last.Group.Events, ev)
			return entries
		}
	}
	return append(entries, groupEntry(newGroup(ev)))
}

// buildEntries groups events (already in order) and places the marker
// immediately before the event with id markerBefore, if any.
func buildEntries(events []Event, markerBefore string) []Entry {
	entries := make([]Entry, 0, len(events)/2+1)
	for _, ev := range events {
		if markerBefore != "" && ev.ID == markerBefore {
			entries = append(entries, markerEntry())
		}
		entries = appendEvent(entries, ev)
	}
	return entries
}
