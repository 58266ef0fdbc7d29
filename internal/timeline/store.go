package timeline

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// HistoryPageSize is how many prior messages are fetched on first access.
const HistoryPageSize = 25

// Notifier receives signals from the store. Calls happen after the room's
// lock is released and must not block.
type Notifier interface {
	// RoomActivity flags a non-active room as having new activity.
	RoomActivity(roomID string)
	// Refresh asks the render boundary to re-read the room's projection.
	Refresh(roomID string)
}

// Source identifies where an ingested event came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceHistory Source = "history"
)

// Outcome is the result of offering one event to the store.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Observer is told about every ingest decision.
type Observer interface {
	ObserveIngest(source Source, outcome Outcome, malformed bool)
	ObserveUnseen(rooms int)
}

type IngestResult struct {
	Duplicate bool
	// Rejected is true when the event had no id and was not stored.
	Rejected bool
	// Unseen is true when the event marked its room as unseen.
	Unseen bool
	// MarkerPlaced is true when this event received the new-messages marker.
	MarkerPlaced bool
}

type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store owns every room's timeline state.
type Store struct {
	roomsMu sync.RWMutex
	rooms   map[string]*room

	viewMu     sync.RWMutex
	activeRoom string
	focused    bool

	liveSeq     atomic.Int64
	backfillSeq atomic.Int64

	notifier Notifier
	observer Observer
	logger   zerolog.Logger
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms:    make(map[string]*room),
		notifier: nopNotifier{},
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) room(id string) *room {
	s.roomsMu.RLock()
	r := s.rooms[id]
	s.roomsMu.RUnlock()
	if r != nil {
		return r
	}

	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if r = s.rooms[id]; r == nil {
		r = newRoom(id)
		s.rooms[id] = r
	}
	return r
}

func (s *Store) lookup(id string) *room {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return s.rooms[id]
}

func (s *Store) view() (active string, focused bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.activeRoom, s.focused
}

// IngestLive accepts one newly-arrived event. Re-delivery of a known event
// id is a silent no-op.
func (s *Store) IngestLive(ev Event) IngestResult {
	ev.RoomID = strings.TrimSpace(ev.RoomID)
	if ev.ID == "" {
		s.observer.ObserveIngest(SourceLive, OutcomeRejected, ev.Content.Malformed())
		s.logger.Warn().Str("room_id", ev.RoomID).Str("sender", ev.Sender).Msg("dropped live event without id")
		return IngestResult{Rejected: true}
	}
	r := s.room(ev.RoomID)

	r.mu.Lock()
	if r.hasLocked(ev.ID) {
		r.mu.Unlock()
		s.observer.ObserveIngest(SourceLive, OutcomeDuplicate, ev.Content.Malformed())
		s.logger.Debug().Str("room_id", ev.RoomID).Str("event_id", ev.ID).Msg("dropped duplicate live event")
		return IngestResult{Duplicate: true}
	}

	ev.seq = s.liveSeq.Add(1)
	active, focused := s.view()
	isActive := active == ev.RoomID

	res := IngestResult{}
	if !isActive || !focused {
		res.Unseen = true
		if !r.hasUnseen {
			s.logger.Debug().Str("room_id", ev.RoomID).Msg("room has unseen activity")
		}
		r.hasUnseen = true
		if anchor, ok := r.eventLocked(r.markerBefore); !ok || ev.Before(anchor) {
			r.markerBefore = ev.ID
			res.MarkerPlaced = true
		}
	}
	r.insertLocked(ev)
	r.mu.Unlock()

	s.observer.ObserveIngest(SourceLive, OutcomeAccepted, ev.Content.Malformed())
	if res.Unseen {
		s.observer.ObserveUnseen(len(s.UnseenRooms()))
	}
	if isActive {
		s.notifier.Refresh(ev.RoomID)
	} else {
		s.notifier.RoomActivity(ev.RoomID)
	}
	return res
}

// IngestHistoryPage merges a page of older events. Pages arrive
// newest-first. Events already present are skipped. With insertBeforeLive,
// events sharing a timestamp with an already-ingested event sort before it.
// Returns the number of events added.
func (s *Store) IngestHistoryPage(roomID string, events []Event, insertBeforeLive bool) int {
	roomID = strings.TrimSpace(roomID)
	r := s.room(roomID)

	chronological := make([]Event, len(events))
	for i := range events {
		chronological[len(events)-1-i] = events[i]
	}

	var base int64
	if insertBeforeLive && len(chronological) > 0 {
		base = -s.backfillSeq.Add(int64(len(chronological)))
	}

	added := 0
	dupes := 0
	rejected := 0
	r.mu.Lock()
	for i, ev := range chronological {
		ev.RoomID = roomID
		if ev.ID == "" {
			rejected++
			continue
		}
		if r.hasLocked(ev.ID) {
			dupes++
			continue
		}
		if insertBeforeLive {
			ev.seq = base + int64(i)
		} else {
			ev.seq = s.liveSeq.Add(1)
		}
		r.insertLocked(ev)
		added++
		s.observer.ObserveIngest(SourceHistory, OutcomeAccepted, ev.Content.Malformed())
	}
	r.mu.Unlock()

	for i := 0; i < dupes; i++ {
		s.observer.ObserveIngest(SourceHistory, OutcomeDuplicate, false)
	}
	for i := 0; i < rejected; i++ {
		s.observer.ObserveIngest(SourceHistory, OutcomeRejected, false)
	}
	if dupes > 0 {
		s.logger.Debug().Str("room_id", roomID).Int("duplicates", dupes).Msg("skipped known history events")
	}
	if rejected > 0 {
		s.logger.Warn().Str("room_id", roomID).Int("rejected", rejected).Msg("dropped history events without id")
	}
	if added > 0 {
		if active, _ := s.view(); active == roomID {
			s.notifier.Refresh(roomID)
		}
	}
	return added
}

// BeginBackfill reports whether the caller should fetch the room's first
// history page. It returns true at most once until EndBackfill reports a
// failure.
func (s *Store) BeginBackfill(roomID string) bool {
	r := s.room(strings.TrimSpace(roomID))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backfillStarted {
		return false
	}
	r.backfillStarted = true
	return true
}

// EndBackfill completes a BeginBackfill. A non-nil err re-arms the guard so
// the next access retries.
func (s *Store) EndBackfill(roomID string, err error) {
	r := s.room(strings.TrimSpace(roomID))
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.backfillStarted = false
		return
	}
	r.backfillDone = true
}

// BackfillDone reports whether the room's first history page was loaded.
func (s *Store) BackfillDone(roomID string) bool {
	r := s.lookup(strings.TrimSpace(roomID))
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backfillDone
}

// SwitchActiveRoom makes roomID the visible room. Its marker is removed,
// its unseen flag cleared, and its timeline rebuilt from the raw list.
func (s *Store) SwitchActiveRoom(roomID string) {
	roomID = strings.TrimSpace(roomID)
	s.viewMu.Lock()
	s.activeRoom = roomID
	s.viewMu.Unlock()

	if roomID == "" {
		return
	}
	r := s.room(roomID)
	r.mu.Lock()
	r.markerBefore = ""
	r.hasUnseen = false
	r.rebuildLocked()
	r.mu.Unlock()

	s.observer.ObserveUnseen(len(s.UnseenRooms()))
	s.notifier.Refresh(roomID)
}

// SetFocus records whether the active room's input has user focus. Regaining
// focus clears the active room's unseen flag; its marker stays until the
// next switch.
func (s *Store) SetFocus(focused bool) {
	s.viewMu.Lock()
	s.focused = focused
	active := s.activeRoom
	s.viewMu.Unlock()

	if !focused || active == "" {
		return
	}
	r := s.lookup(active)
	if r == nil {
		return
	}
	r.mu.Lock()
	cleared := r.hasUnseen
	r.hasUnseen = false
	r.mu.Unlock()
	if cleared {
		s.observer.ObserveUnseen(len(s.UnseenRooms()))
		s.notifier.Refresh(active)
	}
}

func (s *Store) Focused() bool {
	_, focused := s.view()
	return focused
}

func (s *Store) ActiveRoom() string {
	active, _ := s.view()
	return active
}

// Projection returns a snapshot of the room's timeline. Unknown rooms yield
// an empty projection and are not created.
func (s *Store) Projection(roomID string) Projection {
	roomID = strings.TrimSpace(roomID)
	p := Projection{RoomID: roomID}
	r := s.lookup(roomID)
	if r == nil {
		return p
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p.Entries = r.snapshotLocked()
	p.HasUnseen = r.hasUnseen
	return p
}

func (s *Store) HasUnseen(roomID string) bool {
	r := s.lookup(strings.TrimSpace(roomID))
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasUnseen
}

// UnseenRooms lists rooms with unseen activity, sorted by id.
func (s *Store) UnseenRooms() []string {
	out := make([]string, 0)
	for _, r := range s.allRooms() {
		r.mu.RLock()
		unseen := r.hasUnseen
		r.mu.RUnlock()
		if unseen {
			out = append(out, r.id)
		}
	}
	sort.Strings(out)
	return out
}

// Rooms lists every room the store has state for, sorted by id.
func (s *Store) Rooms() []string {
	rooms := s.allRooms()
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of events held for a room.
func (s *Store) Len(roomID string) int {
	r := s.lookup(strings.TrimSpace(roomID))
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Latest returns the newest event of a room.
func (s *Store) Latest(roomID string) (Event, bool) {
	r := s.lookup(strings.TrimSpace(roomID))
	if r == nil {
		return Event{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func (s *Store) allRooms() []*room {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	out := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) RoomActivity(string) {}
func (nopNotifier) Refresh(string)      {}

type nopObserver struct{}

func (nopObserver) ObserveIngest(Source, Outcome, bool) {}
func (nopObserver) ObserveUnseen(int)                   {}
