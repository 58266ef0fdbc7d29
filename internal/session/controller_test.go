package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ThomasJRyan/Nitrix/internal/cache"
	"github.com/ThomasJRyan/Nitrix/internal/matrix"
	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

type fakeSession struct {
	mu       sync.Mutex
	userID   string
	pages    map[string][]*matrix.RoomMessagesResponse
	requests []matrix.RoomMessagesOptions
	pageErr  error
	sent     []string
	sendErr  error
	joined   []string
	names    map[string]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		userID: "@me:example.org",
		pages:  make(map[string][]*matrix.RoomMessagesResponse),
		names:  make(map[string]string),
	}
}

func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) Sync(ctx context.Context, _ matrix.SyncOptions) (*matrix.SyncResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSession) RoomMessages(_ context.Context, roomID string, opts matrix.RoomMessagesOptions) (*matrix.RoomMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, opts)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	pages := f.pages[roomID]
	if len(pages) == 0 {
		return &matrix.RoomMessagesResponse{}, nil
	}
	f.pages[roomID] = pages[1:]
	return pages[0], nil
}

func (f *fakeSession) SendMessage(_ context.Context, _ string, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, body)
	return "$sent", nil
}

func (f *fakeSession) JoinedRooms(context.Context) ([]string, error) {
	return f.joined, nil
}

func (f *fakeSession) RoomName(_ context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[roomID]
	if !ok {
		return "", errors.New("lookup failed")
	}
	return name, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	resets []string
}

func (a *fakeAlerter) Message(_ string, title, body string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	a.bodies = append(a.bodies, body)
	return true
}

func (a *fakeAlerter) Reset(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets = append(a.resets, roomID)
}

func serverEvent(id, sender string, secs int64, body string) matrix.Event {
	return matrix.Event{
		EventID:        id,
		Type:           matrix.EventTypeMessage,
		Sender:         sender,
		OriginServerTS: secs * 1000,
		Content:        map[string]any{"msgtype": "m.text", "body": body},
	}
}

func newController(t *testing.T, sess *fakeSession, withCache bool) (*Controller, *fakeAlerter, *cache.Cache) {
	t.Helper()
	alerter := &fakeAlerter{}
	cfg := Config{
		Session: sess,
		Store:   timeline.NewStore(),
		Alerter: alerter,
		Logger:  zerolog.Nop(),
	}
	var c *cache.Cache
	if withCache {
		var err error
		c, err = cache.OpenInMemory(zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		cfg.Cache = c
	}
	ctrl, err := New(cfg)
	require.NoError(t, err)
	return ctrl, alerter, c
}

func TestNewRequiresSessionAndStore(t *testing.T) {
	_, err := New(Config{Store: timeline.NewStore()})
	require.Error(t, err)
	_, err = New(Config{Session: newFakeSession()})
	require.Error(t, err)
}

func TestHandleEventAlertsForUnseenRooms(t *testing.T) {
	sess := newFakeSession()
	ctrl, alerter, _ := newController(t, sess, false)
	ctrl.OpenRoom("!a")
	ctrl.Store().SetFocus(true)

	ctrl.HandleEvent("!a", serverEvent("$1", "@bob:example.org", 10, "in view"))
	ctrl.HandleEvent("!b", serverEvent("$2", "@bob:example.org", 11, "elsewhere"))
	ctrl.HandleEvent("!b", serverEvent("$2", "@bob:example.org", 11, "elsewhere"))
	ctrl.HandleEvent("!b", serverEvent("$3", "@me:example.org", 12, "from me"))

	require.Equal(t, []string{"bob"}, alerter.titles)
	require.Equal(t, []string{"elsewhere"}, alerter.bodies)
	require.Equal(t, []string{"!a"}, alerter.resets)
	require.True(t, ctrl.Store().HasUnseen("!b"))
	require.False(t, ctrl.Store().HasUnseen("!a"))
}

func TestHandleEventWritesCache(t *testing.T) {
	sess := newFakeSession()
	ctrl, _, c := newController(t, sess, true)

	ctrl.HandleEvent("!a", serverEvent("$1", "@bob:example.org", 10, "hi"))

	events, err := c.Recent(context.Background(), "!a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "$1", events[0].ID)
}

func TestHandleEventDropsEventsWithoutID(t *testing.T) {
	sess := newFakeSession()
	ctrl, alerter, c := newController(t, sess, true)

	ctrl.HandleEvent("!b", serverEvent("", "@bob:example.org", 10, "no id"))

	require.Empty(t, alerter.titles)
	require.False(t, ctrl.Store().HasUnseen("!b"))
	require.Equal(t, 0, ctrl.Store().Len("!b"))
	events, err := c.Recent(context.Background(), "!b", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLoadHistoryRunsOnce(t *testing.T) {
	sess := newFakeSession()
	sess.pages["!a"] = []*matrix.RoomMessagesResponse{{
		End: "t1",
		Chunk: []matrix.Event{
			serverEvent("$3", "@bob:example.org", 30, "three"),
			serverEvent("$2", "@bob:example.org", 20, "two"),
		},
	}}
	ctrl, _, _ := newController(t, sess, false)
	ctx := context.Background()

	n, err := ctrl.LoadHistory(ctx, "!a")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = ctrl.LoadHistory(ctx, "!a")
	require.NoError(t, err)
	require.Zero(t, n)

	require.Len(t, sess.requests, 1)
	require.Equal(t, "b", sess.requests[0].Direction)
	require.Equal(t, timeline.HistoryPageSize, sess.requests[0].Limit)
	require.Equal(t, []string{"$2", "$3"}, ctrl.Store().Projection("!a").EventIDs())
	require.False(t, ctrl.Store().HasUnseen("!a"))
}

func TestLoadHistoryRetriesAfterFailure(t *testing.T) {
	sess := newFakeSession()
	sess.pageErr = errors.New("boom")
	ctrl, _, _ := newController(t, sess, false)
	ctx := context.Background()

	_, err := ctrl.LoadHistory(ctx, "!a")
	require.ErrorIs(t, err, ErrHistoryFetch)
	require.False(t, ctrl.Store().BackfillDone("!a"))

	sess.pageErr = nil
	sess.pages["!a"] = []*matrix.RoomMessagesResponse{{
		End:   "t1",
		Chunk: []matrix.Event{serverEvent("$1", "@bob:example.org", 1, "one")},
	}}
	n, err := ctrl.LoadHistory(ctx, "!a")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, ctrl.Store().BackfillDone("!a"))
}

func TestLoadOlderFollowsEndToken(t *testing.T) {
	sess := newFakeSession()
	sess.pages["!a"] = []*matrix.RoomMessagesResponse{
		{End: "t1", Chunk: []matrix.Event{serverEvent("$2", "@bob:example.org", 20, "two")}},
		{End: "t2", Chunk: []matrix.Event{serverEvent("$1", "@bob:example.org", 10, "one")}},
		{End: "", Chunk: nil},
	}
	ctrl, _, c := newController(t, sess, true)
	ctx := context.Background()

	// before the first page LoadOlder falls through to LoadHistory
	n, err := ctrl.LoadOlder(ctx, "!a")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = ctrl.LoadOlder(ctx, "!a")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "t1", sess.requests[1].From)

	token, err := c.PrevBatch(ctx, "!a")
	require.NoError(t, err)
	require.Equal(t, "t2", token)

	n, err = ctrl.LoadOlder(ctx, "!a")
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, ctrl.HistoryExhausted("!a"))

	n, err = ctrl.LoadOlder(ctx, "!a")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, sess.requests, 3)

	require.Equal(t, []string{"$1", "$2"}, ctrl.Store().Projection("!a").EventIDs())
}

func TestHydrateFromCache(t *testing.T) {
	sess := newFakeSession()
	ctrl, _, c := newController(t, sess, true)
	ctx := context.Background()

	require.NoError(t, c.PutMany(ctx, []timeline.Event{
		{ID: "$1", RoomID: "!a", Sender: "@bob:x", Timestamp: time.Unix(10, 0), Content: timeline.TextContent("one")},
		{ID: "$2", RoomID: "!a", Sender: "@bob:x", Timestamp: time.Unix(20, 0), Content: timeline.TextContent("two")},
	}))
	require.NoError(t, c.SetRoomName(ctx, "!a", "Lobby"))

	n, err := ctrl.Hydrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"$1", "$2"}, ctrl.Store().Projection("!a").EventIDs())
	require.False(t, ctrl.Store().HasUnseen("!a"))

	rooms := ctrl.RoomsFromStore()
	require.Len(t, rooms, 1)
	require.Equal(t, "Lobby", rooms[0].Name)
	require.Equal(t, time.Unix(20, 0).UTC(), rooms[0].LastActivity)
}

func TestHydrateWithoutCache(t *testing.T) {
	ctrl, _, _ := newController(t, newFakeSession(), false)
	n, err := ctrl.Hydrate(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSend(t *testing.T) {
	sess := newFakeSession()
	ctrl, _, _ := newController(t, sess, false)
	ctx := context.Background()

	_, err := ctrl.Send(ctx, "!a", "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, err = ctrl.Send(ctx, "", "hi")
	require.ErrorIs(t, err, ErrNoRoom)

	id, err := ctrl.Send(ctx, "!a", "hi")
	require.NoError(t, err)
	require.Equal(t, "$sent", id)
	require.Equal(t, []string{"hi"}, sess.sent)

	sess.sendErr = errors.New("offline")
	_, err = ctrl.Send(ctx, "!a", "again")
	require.ErrorIs(t, err, ErrSend)
}

func TestRoomsSortedByName(t *testing.T) {
	sess := newFakeSession()
	sess.joined = []string{"!c", "!a", "!b"}
	sess.names["!a"] = "zeta"
	sess.names["!b"] = "Alpha"
	ctrl, _, c := newController(t, sess, true)
	ctrl.HandleEvent("!a", serverEvent("$1", "@bob:x", 5, "hi"))

	rooms, err := ctrl.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	require.Equal(t, []string{"!c", "!b", "!a"}, []string{rooms[0].ID, rooms[1].ID, rooms[2].ID})
	require.Equal(t, "!c", rooms[0].Name)
	require.Equal(t, "Alpha", rooms[1].Name)
	require.True(t, rooms[2].Unseen)
	require.Equal(t, time.Unix(5, 0).UTC(), rooms[2].LastActivity)

	name, err := c.RoomName(context.Background(), "!b")
	require.NoError(t, err)
	require.Equal(t, "Alpha", name)
}

func TestStartStopsOnCancel(t *testing.T) {
	ctrl, _, _ := newController(t, newFakeSession(), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := ctrl.Start(ctx)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not stop")
	}
}
