package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ThomasJRyan/Nitrix/internal/testutil"
)

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Error{Code: code, Message: message})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return client
}

func newTestSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	return newTestClient(t, handler).SessionFromToken("@test:local", "test-token")
}

func requireAuth(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "bare host", url: "matrix.org", want: "https://matrix.org"},
		{name: "trailing slash", url: "http://localhost:8008/", want: "http://localhost:8008"},
		{name: "empty", url: "  ", wantErr: true},
		{name: "bad scheme", url: "ftp://example.org", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
		{name: "no host trailing slashes", url: "https:///", wantErr: true},
		{name: "port only", url: "http://:8008", wantErr: true},
		{name: "bare host with path", url: "matrix.example.org/", want: "https://matrix.example.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ClientConfig{HomeserverURL: tt.url})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, client.BaseURL())
		})
	}
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/_matrix/client/v3/login", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))

		var body LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "m.login.password", body.Type)
		require.Equal(t, "alice", body.Identifier.User)
		require.Equal(t, "secret", body.Password)
		require.Equal(t, "Nitrix", body.DeviceID)

		writeJSON(w, AuthResponse{UserID: "@alice:local", AccessToken: "tok", DeviceID: "Nitrix"})
	}))

	session, err := client.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "@alice:local", session.UserID())
	require.Equal(t, "Nitrix", session.DeviceID())
}

func TestLoginForbidden(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "Invalid password")
	}))

	_, err := client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	require.True(t, IsError(err, ErrCodeForbidden))

	var matrixErr *Error
	require.ErrorAs(t, err, &matrixErr)
	require.Equal(t, http.StatusForbidden, matrixErr.StatusCode)
	require.Contains(t, err.Error(), "Invalid password")
}

func TestLoginRequiresCredentials(t *testing.T) {
	client, err := NewClient(ClientConfig{HomeserverURL: "https://example.org"})
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "", "pw")
	require.Error(t, err)
	_, err = client.Login(context.Background(), "alice", "")
	require.Error(t, err)
}

func TestNonJSONErrorIsRedacted(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream said Bearer abcdefghijklmnopqrstuvwxyz"))
	}))

	_, err := session.JoinedRooms(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
	require.False(t, strings.Contains(err.Error(), "abcdefghijklmnop"))
}
