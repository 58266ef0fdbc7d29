package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomMessages(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		require.Equal(t, "/_matrix/client/v3/rooms/!room1:local/messages", r.URL.Path)
		require.Equal(t, "b", r.URL.Query().Get("dir"))
		require.Equal(t, "25", r.URL.Query().Get("limit"))
		require.Equal(t, "s42", r.URL.Query().Get("from"))

		writeJSON(w, RoomMessagesResponse{
			Start: "s42",
			End:   "t10",
			Chunk: []Event{
				{EventID: "$2", Type: EventTypeMessage, Sender: "@a:local", OriginServerTS: 2000, Content: map[string]any{"body": "second"}},
				{EventID: "$1", Type: EventTypeMessage, Sender: "@a:local", OriginServerTS: 1000, Content: map[string]any{"body": "first"}},
			},
		})
	}))

	response, err := session.RoomMessages(context.Background(), "!room1:local", RoomMessagesOptions{From: "s42", Limit: 25})
	require.NoError(t, err)
	require.Equal(t, "t10", response.End)
	require.Len(t, response.Chunk, 2)
	require.Equal(t, "$2", response.Chunk[0].EventID)
}

func TestSendMessageUsesUniqueTransactionIDs(t *testing.T) {
	seen := make(map[string]bool)
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		require.Equal(t, http.MethodPut, r.Method)
		prefix := "/_matrix/client/v3/rooms/!room1:local/send/m.room.message/"
		require.True(t, strings.HasPrefix(r.URL.Path, prefix), r.URL.Path)
		txn := strings.TrimPrefix(r.URL.Path, prefix)
		require.True(t, strings.HasPrefix(txn, "nitrix-"))
		require.False(t, seen[txn])
		seen[txn] = true

		var content MessageContent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&content))
		require.Equal(t, "m.text", content.MsgType)
		require.Equal(t, "hello", content.Body)

		writeJSON(w, SendEventResponse{EventID: "$sent"})
	}))

	for i := 0; i < 2; i++ {
		eventID, err := session.SendMessage(context.Background(), "!room1:local", "hello")
		require.NoError(t, err)
		require.Equal(t, "$sent", eventID)
	}
	require.Len(t, seen, 2)
}

func TestSendMessageWithTxnReusesTransactionID(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		writeJSON(w, SendEventResponse{EventID: "$sent"})
	}))

	txn := NewTransactionID()
	for i := 0; i < 2; i++ {
		eventID, err := session.SendMessageWithTxn(context.Background(), "!room1:local", txn, "hello")
		require.NoError(t, err)
		require.Equal(t, "$sent", eventID)
	}
	mu.Lock()
	require.Len(t, paths, 2)
	require.Equal(t, paths[0], paths[1])
	require.True(t, strings.HasSuffix(paths[0], "/"+txn), paths[0])
	mu.Unlock()

	_, err := session.SendMessageWithTxn(context.Background(), "!room1:local", " ", "hello")
	require.Error(t, err)
}

func TestJoinedRooms(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		require.Equal(t, "/_matrix/client/v3/joined_rooms", r.URL.Path)
		writeJSON(w, JoinedRoomsResponse{JoinedRooms: []string{"!a:local", "!b:local"}})
	}))

	rooms, err := session.JoinedRooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"!a:local", "!b:local"}, rooms)
}

func TestRoomNameFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		named bool
		alias bool
		want  string
	}{
		{name: "explicit name", named: true, alias: true, want: "General"},
		{name: "canonical alias", alias: true, want: "#general:local"},
		{name: "room id", want: "!room1:local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/_matrix/client/v3/rooms/!room1:local/state/m.room.name/":
					if tt.named {
						writeJSON(w, map[string]string{"name": "General"})
						return
					}
				case "/_matrix/client/v3/rooms/!room1:local/state/m.room.canonical_alias/":
					if tt.alias {
						writeJSON(w, map[string]string{"alias": "#general:local"})
						return
					}
				}
				writeError(w, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			}))

			name, err := session.RoomName(context.Background(), "!room1:local")
			require.NoError(t, err)
			require.Equal(t, tt.want, name)
		})
	}
}

func TestRoomNameForbiddenIsAnError(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "not in room")
	}))

	_, err := session.RoomName(context.Background(), "!room1:local")
	require.True(t, IsError(err, ErrCodeForbidden))
}

func TestLogout(t *testing.T) {
	called := false
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		require.Equal(t, "/_matrix/client/v3/logout", r.URL.Path)
		called = true
		writeJSON(w, map[string]any{})
	}))

	require.NoError(t, session.Logout(context.Background()))
	require.True(t, called)
}
