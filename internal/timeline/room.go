package timeline

import (
	"sort"
	"sync"
)

// room is the per-room state. All fields are guarded by mu.
type room struct {
	id string

	mu      sync.RWMutex
	events  []Event // raw list, ordered by (timestamp, seq)
	ids     map[string]struct{}
	entries []Entry

	hasUnseen    bool
	markerBefore string // id of the event the marker sits before; empty = no marker

	backfillStarted bool
	backfillDone    bool
}

func newRoom(id string) *room {
	return &room{
		id:  id,
		ids: make(map[string]struct{}),
	}
}

func (r *room) hasLocked(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// eventLocked returns the stored event with the given id.
func (r *room) eventLocked(id string) (Event, bool) {
	if id == "" || !r.hasLocked(id) {
		return Event{}, false
	}
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].ID == id {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// insertLocked places ev by order key and keeps entries current. Returns
// true when the event landed at the tail.
func (r *room) insertLocked(ev Event) bool {
	r.ids[ev.ID] = struct{}{}

	idx := sort.Search(len(r.events), func(i int) bool {
		return ev.Before(r.events[i])
	})
	if idx == len(r.events) {
		r.events = append(r.events, ev)
		if r.markerBefore == ev.ID {
			r.entries = append(r.entries, markerEntry())
		}
		r.entries = appendEvent(r.entries, ev)
		return true
	}

	r.events = append(r.events, Event{})
	copy(r.events[idx+1:], r.events[idx:])
	r.events[idx] = ev
	r.rebuildLocked()
	return false
}

func (r *room) rebuildLocked() {
	r.entries = buildEntries(r.events, r.markerBefore)
}

func (r *room) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Kind == EntryGroup {
			out = append(out, groupEntry(entry.Group.clone()))
			continue
		}
		out = append(out, entry)
	}
	return out
}
