// Package session connects a logged-in Matrix session to the timeline store:
// live sync intake, first-access history, older pages, sending, and the
// room directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ThomasJRyan/Nitrix/internal/matrix"
	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

var (
	// ErrHistoryFetch wraps failures loading a history page.
	ErrHistoryFetch = errors.New("history fetch failed")
	// ErrSend wraps failures sending a message.
	ErrSend = errors.New("send failed")
	// ErrEmptyMessage is returned for a blank message body.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoRoom is returned when no room is selected.
	ErrNoRoom = errors.New("no room selected")
)

// hydrateLimit is how many cached events per room are loaded at startup.
const hydrateLimit = 50

// nameLookups bounds concurrent room-name requests.
const nameLookups = 4

// MatrixSession is the part of *matrix.Session the controller uses.
type MatrixSession interface {
	matrix.Syncable
	UserID() string
	RoomMessages(ctx context.Context, roomID string, options matrix.RoomMessagesOptions) (*matrix.RoomMessagesResponse, error)
	SendMessage(ctx context.Context, roomID, body string) (string, error)
	JoinedRooms(ctx context.Context) ([]string, error)
	RoomName(ctx context.Context, roomID string) (string, error)
}

// EventCache persists events between runs. *cache.Cache implements it.
type EventCache interface {
	Put(ctx context.Context, ev timeline.Event) error
	PutMany(ctx context.Context, events []timeline.Event) error
	Recent(ctx context.Context, roomID string, limit int) ([]timeline.Event, error)
	Rooms(ctx context.Context) ([]string, error)
	SetPrevBatch(ctx context.Context, roomID, token string) error
	PrevBatch(ctx context.Context, roomID string) (string, error)
	SetRoomName(ctx context.Context, roomID, name string) error
	RoomName(ctx context.Context, roomID string) (string, error)
}

// Alerter raises out-of-band notifications. *notify.Desktop implements it.
type Alerter interface {
	Message(roomID, title, body string) bool
	Reset(roomID string)
}

// Config wires a Controller.
type Config struct {
	Session MatrixSession
	Store   *timeline.Store
	// Cache is optional.
	Cache EventCache
	// Alerter is optional.
	Alerter Alerter
	Syncer  matrix.SyncerConfig
	Logger  zerolog.Logger
}

// Room is one entry of the room directory.
type Room struct {
	ID           string
	Name         string
	Unseen       bool
	LastActivity time.Time
}

// Controller owns the background sync and the network side of the store.
type Controller struct {
	session MatrixSession
	store   *timeline.Store
	cache   EventCache
	alerter Alerter
	syncer  *matrix.Syncer
	logger  zerolog.Logger

	mu        sync.Mutex
	names     map[string]string
	tokens    map[string]string
	exhausted map[string]bool
	loading   map[string]bool
}

// New creates a controller. Session and Store are required.
func New(cfg Config) (*Controller, error) {
	if cfg.Session == nil {
		return nil, errors.New("session: matrix session is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: timeline store is required")
	}
	cfg.Syncer.Logger = cfg.Logger.With().Str("component", "sync").Logger()
	return &Controller{
		session:   cfg.Session,
		store:     cfg.Store,
		cache:     cfg.Cache,
		alerter:   cfg.Alerter,
		syncer:    matrix.NewSyncer(cfg.Session, cfg.Syncer),
		logger:    cfg.Logger,
		names:     make(map[string]string),
		tokens:    make(map[string]string),
		exhausted: make(map[string]bool),
		loading:   make(map[string]bool),
	}, nil
}

// Store returns the timeline store the controller feeds.
func (c *Controller) Store() *timeline.Store {
	return c.store
}

// Ready is closed after the first sync completes.
func (c *Controller) Ready() <-chan struct{} {
	return c.syncer.Ready()
}

// Start runs the sync loop in the background. The channel yields the loop's
// error once it stops.
func (c *Controller) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := c.syncer.Run(ctx, c)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("sync loop stopped")
		}
		done <- err
	}()
	return done
}

// HandleEvent is the raw intake for one live event.
func (c *Controller) HandleEvent(roomID string, ev matrix.Event) {
	tev := matrix.ToTimeline(roomID, ev)
	if c.cache != nil && tev.ID != "" {
		if err := c.cache.Put(context.Background(), tev); err != nil {
			c.logger.Warn().Err(err).Str("room_id", roomID).Msg("cache write failed")
		}
	}

	res := c.store.IngestLive(tev)
	if res.Duplicate || res.Rejected || !res.Unseen || c.alerter == nil {
		return
	}
	if tev.Sender == c.session.UserID() {
		return
	}
	title := matrix.Localpart(tev.Sender)
	if name := c.cachedName(roomID); name != "" && name != roomID {
		title = name + " · " + title
	}
	c.alerter.Message(roomID, title, tev.Content.Display())
}

// Hydrate loads cached events into the store. Returns the number of events
// added.
func (c *Controller) Hydrate(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	rooms, err := c.cache.Rooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: hydrate: %w", err)
	}
	total := 0
	for _, roomID := range rooms {
		events, err := c.cache.Recent(ctx, roomID, hydrateLimit)
		if err != nil {
			return total, fmt.Errorf("session: hydrate %s: %w", roomID, err)
		}
		total += c.store.IngestHistoryPage(roomID, events, true)
		if name, err := c.cache.RoomName(ctx, roomID); err == nil && name != "" {
			c.setName(roomID, name)
		}
	}
	c.logger.Debug().Int("rooms", len(rooms)).Int("events", total).Msg("hydrated timelines from cache")
	return total, nil
}

// OpenRoom makes roomID the active room.
func (c *Controller) OpenRoom(roomID string) {
	c.store.SwitchActiveRoom(roomID)
	if c.alerter != nil {
		c.alerter.Reset(roomID)
	}
}

// LoadHistory fetches the room's first history page, once per room. Later
// calls return (0, nil) until a fetch fails.
func (c *Controller) LoadHistory(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		return 0, ErrNoRoom
	}
	if !c.store.BeginBackfill(roomID) {
		return 0, nil
	}
	n, err := c.fetchPage(ctx, roomID, c.syncer.NextBatch())
	c.store.EndBackfill(roomID, err)
	return n, err
}

// LoadOlder fetches the page before the oldest one loaded so far.
func (c *Controller) LoadOlder(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		return 0, ErrNoRoom
	}
	if !c.store.BackfillDone(roomID) {
		return c.LoadHistory(ctx, roomID)
	}

	c.mu.Lock()
	if c.exhausted[roomID] || c.loading[roomID] {
		c.mu.Unlock()
		return 0, nil
	}
	token := c.tokens[roomID]
	c.loading[roomID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.loading, roomID)
		c.mu.Unlock()
	}()

	if token == "" && c.cache != nil {
		if stored, err := c.cache.PrevBatch(ctx, roomID); err == nil {
			token = stored
		}
	}
	if token == "" {
		return 0, nil
	}
	return c.fetchPage(ctx, roomID, token)
}

// HistoryExhausted reports whether the start of the room was reached.
func (c *Controller) HistoryExhausted(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted[roomID]
}

func (c *Controller) fetchPage(ctx context.Context, roomID, from string) (int, error) {
	logger := c.logger.With().Str("room_id", roomID).Logger()

	resp, err := c.session.RoomMessages(ctx, roomID, matrix.RoomMessagesOptions{
		From:      from,
		Direction: "b",
		Limit:     timeline.HistoryPageSize,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("history page failed")
		return 0, fmt.Errorf("%w: %s: %w", ErrHistoryFetch, roomID, err)
	}

	events := matrix.ToTimelinePage(roomID, resp.Chunk)
	added := c.store.IngestHistoryPage(roomID, events, true)

	c.mu.Lock()
	c.tokens[roomID] = resp.End
	if resp.End == "" || len(resp.Chunk) == 0 {
		c.exhausted[roomID] = true
	}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.PutMany(ctx, events); err != nil {
			logger.Warn().Err(err).Msg("cache write failed")
		}
		if resp.End != "" {
			if err := c.cache.SetPrevBatch(ctx, roomID, resp.End); err != nil {
				logger.Warn().Err(err).Msg("cache token write failed")
			}
		}
	}

	logger.Debug().Int("fetched", len(resp.Chunk)).Int("added", added).Msg("loaded history page")
	return added, nil
}

// Send posts a text message to roomID.
func (c *Controller) Send(ctx context.Context, roomID, body string) (string, error) {
	if roomID == "" {
		return "", ErrNoRoom
	}
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyMessage
	}
	eventID, err := c.session.SendMessage(ctx, roomID, body)
	if err != nil {
		c.logger.Warn().Err(err).Str("room_id", roomID).Msg("send failed")
		return "", fmt.Errorf("%w: %w", ErrSend, err)
	}
	return eventID, nil
}

// Rooms lists joined rooms with display names, sorted by name.
func (c *Controller) Rooms(ctx context.Context) ([]Room, error) {
	ids, err := c.session.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list rooms: %w", err)
	}

	names := make([]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nameLookups)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			names[i] = c.resolveName(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	rooms := make([]Room, 0, len(ids))
	for i, id := range ids {
		room := Room{ID: id, Name: names[i], Unseen: c.store.HasUnseen(id)}
		if latest, ok := c.store.Latest(id); ok {
			room.LastActivity = latest.Timestamp
		}
		rooms = append(rooms, room)
	}
	SortRooms(rooms)
	return rooms, nil
}

// RoomsFromStore builds the directory without network access, for use
// before the first sync or when the homeserver is unreachable.
func (c *Controller) RoomsFromStore() []Room {
	ids := c.store.Rooms()
	rooms := make([]Room, 0, len(ids))
	for _, id := range ids {
		name := c.cachedName(id)
		if name == "" {
			name = id
		}
		room := Room{ID: id, Name: name, Unseen: c.store.HasUnseen(id)}
		if latest, ok := c.store.Latest(id); ok {
			room.LastActivity = latest.Timestamp
		}
		rooms = append(rooms, room)
	}
	SortRooms(rooms)
	return rooms
}

// SortRooms orders by case-insensitive name, then id.
func SortRooms(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := strings.ToLower(rooms[i].Name), strings.ToLower(rooms[j].Name)
		if a != b {
			return a < b
		}
		return rooms[i].ID < rooms[j].ID
	})
}

func (c *Controller) resolveName(ctx context.Context, roomID string) string {
	name, err := c.session.RoomName(ctx, roomID)
	if err != nil {
		c.logger.Debug().Err(err).Str("room_id", roomID).Msg("room name lookup failed")
		if cached := c.cachedName(roomID); cached != "" {
			return cached
		}
		return roomID
	}
	c.setName(roomID, name)
	if c.cache != nil {
		if err := c.cache.SetRoomName(ctx, roomID, name); err != nil {
			c.logger.Debug().Err(err).Str("room_id", roomID).Msg("cache room name failed")
		}
	}
	return name
}

func (c *Controller) cachedName(roomID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[roomID]
}

func (c *Controller) setName(roomID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[roomID] = name
}
