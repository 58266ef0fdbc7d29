package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Session is an authenticated connection for one user.
type Session struct {
	client      *Client
	accessToken string
	userID      string
	deviceID    string
}

func (c *Client) newSession(userID, accessToken, deviceID string) *Session {
	return &Session{
		client:      c,
		accessToken: accessToken,
		userID:      userID,
		deviceID:    deviceID,
	}
}

// UserID returns the fully-qualified user id.
func (s *Session) UserID() string {
	return s.userID
}

// DeviceID returns the device the session belongs to.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Sync performs one /sync request. Leave options.Since empty for the
// initial sync.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("matrix: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// RoomMessages fetches a page of room history.
func (s *Session) RoomMessages(ctx context.Context, roomID string, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("matrix: room messages for %q failed: %w", roomID, err)
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse messages response: %w", err)
	}
	return &response, nil
}

// NewTransactionID returns a client transaction id for a send.
func NewTransactionID() string {
	return "nitrix-" + uuid.NewString()
}

// SendMessage sends a plain text message and returns its event id. Every
// call uses a new transaction id, so a repeated call posts a second message.
// Use SendMessageWithTxn to retry a send the server may already have seen.
func (s *Session) SendMessage(ctx context.Context, roomID, body string) (string, error) {
	return s.sendMessage(ctx, roomID, NewTransactionID(), NewTextMessage(body))
}

// SendMessageWithTxn sends a plain text message under the given transaction
// id. The server returns the original event id for a repeated id.
func (s *Session) SendMessageWithTxn(ctx context.Context, roomID, transactionID, body string) (string, error) {
	if strings.TrimSpace(transactionID) == "" {
		return "", errors.New("matrix: transaction id is required")
	}
	return s.sendMessage(ctx, roomID, transactionID, NewTextMessage(body))
}

func (s *Session) sendMessage(ctx context.Context, roomID, transactionID string, content MessageContent) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID),
		url.PathEscape(EventTypeMessage),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: send message to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// JoinedRooms returns the ids of rooms the user has joined.
func (s *Session) JoinedRooms(ctx context.Context) ([]string, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: joined rooms failed: %w", err)
	}

	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// RoomName returns the room's display name: m.room.name, then the
// canonical alias, then the room id itself.
func (s *Session) RoomName(ctx context.Context, roomID string) (string, error) {
	var name roomNameContent
	err := s.stateEvent(ctx, roomID, "m.room.name", &name)
	switch {
	case err == nil && name.Name != "":
		return name.Name, nil
	case err != nil && !IsError(err, ErrCodeNotFound):
		return "", err
	}

	var alias canonicalAliasContent
	err = s.stateEvent(ctx, roomID, "m.room.canonical_alias", &alias)
	switch {
	case err == nil && alias.Alias != "":
		return alias.Alias, nil
	case err != nil && !IsError(err, ErrCodeNotFound):
		return "", err
	}
	return roomID, nil
}

func (s *Session) stateEvent(ctx context.Context, roomID, eventType string, into any) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/",
		url.PathEscape(roomID),
		url.PathEscape(eventType),
	)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("matrix: get %s in %q failed: %w", eventType, roomID, err)
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("matrix: failed to parse %s: %w", eventType, err)
	}
	return nil
}

// Logout invalidates the access token.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, struct{}{}, nil)
	if err != nil {
		return fmt.Errorf("matrix: logout failed: %w", err)
	}
	return nil
}
