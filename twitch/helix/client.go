// Package helix provides a client for the Twitch Helix API endpoints the bot uses
package helix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"golang.org/x/oauth2"
)

const (
	baseURL     = "https://api.twitch.tv/helix"
	validateURL = "https://id.twitch.tv/oauth2/validate"
)

// APIError is a non 2xx response from Twitch.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Client is a Twitch Helix API client. The bearer token is read from the token
// source on every request so refreshed tokens are picked up automatically.
type Client struct {
	httpClient  *http.Client
	clientID    string
	tokens      oauth2.TokenSource
	baseURL     string
	validateURL string
	logger      *logging.Logger

	mu               sync.RWMutex
	broadcasterID    string
	broadcasterLogin string
	botUserID        string
	botLogin         string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different Helix root, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithValidateURL overrides the token validation endpoint.
func WithValidateURL(u string) Option {
	return func(c *Client) {
		c.validateURL = u
	}
}

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Twitch Helix API client
func NewClient(clientID string, tokens oauth2.TokenSource, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		clientID:    clientID,
		tokens:      tokens,
		baseURL:     baseURL,
		validateURL: validateURL,
		logger:      logger.WithComponent("helix"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) accessToken() (string, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	return tok.AccessToken, nil
}

// doRequest performs an HTTP request to the Twitch API
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("making Twitch API request", "method", method, "endpoint", endpoint)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Twitch API error", "status", resp.StatusCode, "body", string(respBody))
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// ValidateResponse is the body of a successful token validation.
type ValidateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// ValidateToken asks Twitch who the current token belongs to.
func (c *Client) ValidateToken(ctx context.Context) (*ValidateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+token)

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp ValidateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse validate response: %w", err)
	}
	if resp.UserID == "" {
		return nil, errors.New("token is not bound to a user")
	}
	return &resp, nil
}

// GetUsers retrieves user information by login name
func (c *Client) GetUsers(ctx context.Context, logins []string) ([]byte, error) {
	query := url.Values{}
	for _, login := range logins {
		query.Add("login", login)
	}

	return c.doRequest(ctx, http.MethodGet, "/users", query, nil)
}

// UserResponse represents the response from the Get Users endpoint
type UserResponse struct {
	Data []UserData `json:"data"`
}

// UserData represents a user from the Twitch API
type UserData struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// GetUserIDByLogin retrieves a user's ID by their login name
func (c *Client) GetUserIDByLogin(ctx context.Context, login string) (string, error) {
	respBody, err := c.GetUsers(ctx, []string{login})
	if err != nil {
		return "", err
	}

	var resp UserResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse user response: %w", err)
	}

	if len(resp.Data) == 0 {
		return "", fmt.Errorf("user not found: %s", login)
	}

	return resp.Data[0].ID, nil
}

// ResolveIdentity looks up the bot account behind the token and the
// broadcaster of channel. An empty channel means the bot's own channel.
func (c *Client) ResolveIdentity(ctx context.Context, channel string) error {
	me, err := c.ValidateToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to validate token: %w", err)
	}

	broadcasterID, broadcasterLogin := me.UserID, me.Login
	if channel != "" && channel != me.Login {
		broadcasterID, err = c.GetUserIDByLogin(ctx, channel)
		if err != nil {
			return fmt.Errorf("failed to get broadcaster ID: %w", err)
		}
		broadcasterLogin = channel
	}

	c.mu.Lock()
	c.botUserID = me.UserID
	c.botLogin = me.Login
	c.broadcasterID = broadcasterID
	c.broadcasterLogin = broadcasterLogin
	c.mu.Unlock()

	c.logger.Info("resolved twitch identity",
		"bot", me.Login,
		"botUserID", me.UserID,
		"channel", broadcasterLogin,
		"broadcasterID", broadcasterID,
	)
	return nil
}

// BroadcasterID is the channel the bot listens to.
func (c *Client) BroadcasterID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broadcasterID
}

// ChannelLogin is the login of the channel the bot listens to.
func (c *Client) ChannelLogin() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broadcasterLogin
}

// BotUserID is the account the bot sends as.
func (c *Client) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserID
}

// BotLogin is the login of the account the bot sends as.
func (c *Client) BotLogin() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botLogin
}
