package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

var base = time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenInMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func event(room, id string, secs int, body string) timeline.Event {
	return timeline.Event{
		ID:        id,
		RoomID:    room,
		Sender:    "@alice:local",
		Timestamp: base.Add(time.Duration(secs) * time.Second),
		Content:   timeline.TextContent(body),
	}
}

func TestPutIsIdempotentAndRecentIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	require.NoError(t, c.Put(ctx, event("!r", "$1", 10, "one")))
	require.NoError(t, c.Put(ctx, event("!r", "$3", 30, "three")))
	require.NoError(t, c.Put(ctx, event("!r", "$2", 20, "two")))
	require.NoError(t, c.Put(ctx, event("!r", "$2", 20, "two again")))
	require.NoError(t, c.Put(ctx, event("!other", "$x", 5, "x")))

	got, err := c.Recent(ctx, "!r", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "$3", got[0].ID)
	require.Equal(t, "$2", got[1].ID)
	require.Equal(t, "two", got[1].Content.Display())
	require.Equal(t, "$1", got[2].ID)
	require.Equal(t, "!r", got[2].RoomID)
	require.True(t, got[2].Timestamp.Equal(base.Add(10*time.Second)))

	limited, err := c.Recent(ctx, "!r", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "$3", limited[0].ID)
}

func TestMalformedSurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	ev := event("!r", "$bad", 0, "")
	require.True(t, ev.Content.Malformed())
	require.NoError(t, c.Put(ctx, ev))

	got, err := c.Recent(ctx, "!r", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Content.Malformed())
	require.Equal(t, timeline.MalformedPlaceholder, got[0].Content.Display())
}

func TestRoomMetadata(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	token, err := c.PrevBatch(ctx, "!r")
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, c.SetPrevBatch(ctx, "!r", "t1"))
	require.NoError(t, c.SetRoomName(ctx, "!r", "General"))
	require.NoError(t, c.SetPrevBatch(ctx, "!r", "t2"))

	token, err = c.PrevBatch(ctx, "!r")
	require.NoError(t, err)
	require.Equal(t, "t2", token)

	name, err := c.RoomName(ctx, "!r")
	require.NoError(t, err)
	require.Equal(t, "General", name)

	require.NoError(t, c.Put(ctx, event("!a", "$1", 0, "x")))
	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"!a", "!r"}, rooms)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(ctx, event("!r", string(rune('a'+i)), i, "x")))
	}
	require.NoError(t, c.Put(ctx, event("!s", "z", 0, "x")))

	deleted, err := c.Prune(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	got, err := c.Recent(ctx, "!r", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "e", got[0].ID)

	other, err := c.Recent(ctx, "!s", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	c, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Put(context.Background(), event("!r", "$1", 0, "x")))
	require.NoError(t, c.Close())

	again, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer again.Close()
	got, err := again.Recent(context.Background(), "!r", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
