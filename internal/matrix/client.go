// Package matrix is a small client for the Matrix client-server API. It
// covers the endpoints nitrix needs: password login, /sync, room history,
// sending text messages and the room directory.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ThomasJRyan/Nitrix/internal/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver. A bare host gets
	// https:// prepended.
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// DeviceID names the device on login. Defaults to "Nitrix".
	DeviceID string
}

// Client is an unauthenticated Matrix client, shared across Sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	deviceID   string
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(config.HomeserverURL)
	if raw == "" {
		return nil, errors.New("matrix: homeserver URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("matrix: invalid homeserver URL %q: %w", config.HomeserverURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
		return nil, fmt.Errorf("matrix: invalid homeserver URL %q", config.HomeserverURL)
	}
	raw = strings.TrimRight(raw, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	deviceID := config.DeviceID
	if deviceID == "" {
		deviceID = "Nitrix"
	}

	return &Client{
		baseURL:    raw,
		httpClient: httpClient,
		logger:     config.Logger,
		deviceID:   deviceID,
	}, nil
}

// BaseURL returns the normalized homeserver URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login authenticates with username and password.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("matrix: username is required for login")
	}
	if password == "" {
		return nil, errors.New("matrix: password is required for login")
	}

	request := LoginRequest{
		Type:                     "m.login.password",
		Identifier:               UserIdentifier{Type: "m.id.user", User: username},
		Password:                 password,
		DeviceID:                 c.deviceID,
		InitialDeviceDisplayName: "Nitrix",
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", "", request, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: login failed: %w", err)
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse login response: %w", err)
	}
	if auth.AccessToken == "" {
		return nil, errors.New("matrix: login response has no access token")
	}

	c.logger.Info().
		Str("user_id", auth.UserID).
		Str("device_id", auth.DeviceID).
		Msg("logged in to matrix")

	return c.newSession(auth.UserID, auth.AccessToken, auth.DeviceID), nil
}

// SessionFromToken creates a Session from an existing access token. The
// token is not validated; the first call fails if it is invalid.
func (c *Client) SessionFromToken(userID, accessToken string) *Session {
	return c.newSession(userID, accessToken, c.deviceID)
}

// doRequest performs a request and returns the response body. Non-2xx
// responses become *Error. An empty token sends no Authorization header.
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr Error
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, logging.Redact(string(responseBody)))
	}
	matrixErr.StatusCode = response.StatusCode
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", response.StatusCode).
		Str("errcode", matrixErr.Code).
		Msg("homeserver returned error")
	return nil, &matrixErr
}
