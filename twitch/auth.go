package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"golang.org/x/oauth2"
	twitchoauth "golang.org/x/oauth2/twitch"
)

const (
	deviceAuthURL = "https://id.twitch.tv/oauth2/device"

	deviceGrantType     = "urn:ietf:params:oauth:grant-type:device_code"
	defaultPollInterval = 5 * time.Second
	slowDownIncrement   = 5 * time.Second
)

// Reasons reported by AuthorizationError.
const (
	ReasonExpired = "expired"
	ReasonDenied  = "denied"
	ReasonInvalid = "invalid_device_code"
	ReasonFailed  = "failed"
)

var (
	errAuthorizationPending = errors.New("authorization_pending")
	errSlowDown             = errors.New("slow_down")
)

// AuthorizationError means the device flow did not produce a token. It is
// fatal to startup.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err == nil {
		return "twitch authorization " + e.Reason
	}
	return fmt.Sprintf("twitch authorization %s: %v", e.Reason, e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// DeviceFlow runs the OAuth device authorization grant against Twitch. No
// client secret or redirect listener is needed.
type DeviceFlow struct {
	conf         *oauth2.Config
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *logging.Logger
}

// DeviceFlowOption configures a DeviceFlow.
type DeviceFlowOption func(*DeviceFlow)

// WithEndpoints replaces the Twitch id endpoints, used by tests.
func WithEndpoints(deviceURL, tokenURL string) DeviceFlowOption {
	return func(f *DeviceFlow) {
		f.conf.Endpoint.DeviceAuthURL = deviceURL
		f.conf.Endpoint.TokenURL = tokenURL
	}
}

// WithPollInterval overrides the interval Twitch asks for.
func WithPollInterval(d time.Duration) DeviceFlowOption {
	return func(f *DeviceFlow) {
		f.pollInterval = d
	}
}

// WithDeviceHTTPClient replaces the http client used for every id request.
func WithDeviceHTTPClient(hc *http.Client) DeviceFlowOption {
	return func(f *DeviceFlow) {
		f.httpClient = hc
	}
}

// NewDeviceFlow creates a device flow for the public client clientID.
func NewDeviceFlow(clientID string, scopes []string, logger *logging.Logger, opts ...DeviceFlowOption) *DeviceFlow {
	if logger == nil {
		logger = logging.Default()
	}
	endpoint := twitchoauth.Endpoint
	endpoint.DeviceAuthURL = deviceAuthURL
	// twitch wants client_id in the form body and rejects basic auth
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	f := &DeviceFlow{
		conf: &oauth2.Config{
			ClientID: clientID,
			Scopes:   scopes,
			Endpoint: endpoint,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *DeviceFlow) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// DeviceCode requests a device code and the URL the operator must visit.
func (f *DeviceFlow) DeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	// twitch reads the space separated scope list from "scopes"
	da, err := f.conf.DeviceAuth(f.withClient(ctx),
		oauth2.SetAuthURLParam("scopes", strings.Join(f.conf.Scopes, " ")))
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	return da, nil
}

// PollForAuthorization polls the token endpoint until the operator approves
// the device code. Expiry and denial are reported as *AuthorizationError.
func (f *DeviceFlow) PollForAuthorization(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	if !da.Expiry.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, da.Expiry)
		defer cancel()
	}

	interval := time.Duration(da.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if f.pollInterval > 0 {
		interval = f.pollInterval
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &AuthorizationError{Reason: ReasonExpired, Err: errors.New("device code expired before it was approved")}
			}
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		tok, err := f.exchange(ctx, da.DeviceCode)
		switch {
		case err == nil:
			f.logger.Info("device code approved", "expiry", tok.Expiry)
			return tok, nil
		case ctx.Err() != nil:
			continue
		case errors.Is(err, errAuthorizationPending):
			f.logger.Debug("waiting for device code approval")
		case errors.Is(err, errSlowDown):
			interval += slowDownIncrement
		default:
			return nil, err
		}
	}
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// twitch error bodies carry the reason in message, not the RFC 8628 error field.
type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (f *DeviceFlow) exchange(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	form := url.Values{
		"client_id":   {f.conf.ClientID},
		"scopes":      {strings.Join(f.conf.Scopes, " ")},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.conf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// transient, keep polling until the code expires
		f.logger.Warn("device token request failed", "error", err.Error())
		return nil, errAuthorizationPending
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyTokenError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthorizationError{Reason: ReasonFailed, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &AuthorizationError{Reason: ReasonFailed, Err: errors.New("token response has no access_token")}
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(map[string]interface{}{"scope": tr.Scope}), nil
}

func classifyTokenError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	reason := er.Message
	if er.Error != "" && reason == "" {
		reason = er.Error
	}

	switch strings.ToLower(reason) {
	case "authorization_pending":
		return errAuthorizationPending
	case "slow_down":
		return errSlowDown
	case "access_denied":
		return &AuthorizationError{Reason: ReasonDenied, Err: errors.New(reason)}
	case "expired_token":
		return &AuthorizationError{Reason: ReasonExpired, Err: errors.New(reason)}
	case "invalid device code":
		return &AuthorizationError{Reason: ReasonInvalid, Err: errors.New(reason)}
	}
	if status >= http.StatusInternalServerError {
		return errAuthorizationPending
	}
	return &AuthorizationError{Reason: ReasonFailed, Err: fmt.Errorf("status %d: %s", status, string(body))}
}

// TokenSource returns a source that refreshes tok with its refresh token when
// it expires. ctx must outlive the returned source.
func (f *DeviceFlow) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return f.conf.TokenSource(f.withClient(ctx), tok)
}
