// Package twitch drives the bot's lifecycle: device code authorization,
// connecting to Twitch and listening for channel events.
package twitch

import (
	"context"
	"sync"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/twitch/eventsub"
	"github.com/Soypete/twitch-event-bot/types"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// State is a step of the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthorizing     State = "authorizing"
	StateConnected       State = "connected"
	StateListening       State = "listening"
	StateStopped         State = "stopped"
	StateFailed          State = "failed"
)

var errNotAuthorized = errors.New("session is not authorized yet")

// Authorizer obtains and refreshes the bot's user token. *DeviceFlow
// implements it.
type Authorizer interface {
	DeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error)
	PollForAuthorization(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// Feed delivers channel events. *eventsub.Client implements it.
type Feed interface {
	On(kind types.Kind, h eventsub.Handler)
	Start(ctx context.Context) error
	Close() error
}

// Hook runs once the session holds a token, before any handler is registered.
type Hook func(ctx context.Context) error

// Session walks Unauthenticated -> Authorizing -> Connected -> Listening ->
// Stopped. Authorization or connection failures end in Failed. A Session is
// also the token source for every Twitch client, so refreshed tokens reach
// them without rewiring.
type Session struct {
	auth        Authorizer
	feed        Feed
	handler     eventsub.Handler
	onConnected []Hook
	logger      *logging.Logger

	mu          sync.RWMutex
	state       State
	tokens      oauth2.TokenSource
	token       *oauth2.Token
	refreshedAt time.Time
}

// NewSession wires the session. handler receives every event from feed.
func NewSession(auth Authorizer, feed Feed, handler eventsub.Handler, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		auth:    auth,
		feed:    feed,
		handler: handler,
		state:   StateUnauthenticated,
		logger:  logger.WithComponent("session"),
	}
}

// OnConnected adds a hook that runs in the Connected state. A failing hook
// moves the session to Failed.
func (s *Session) OnConnected(h Hook) {
	s.onConnected = append(s.onConnected, h)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.logger.Info("session state changed", "from", prev, "to", st)
}

func (s *Session) fail(err error) error {
	s.setState(StateFailed)
	s.logger.Error("session failed", "error", err.Error())
	return err
}

// Run authorizes, connects and listens until ctx is cancelled. It returns an
// *AuthorizationError when the operator never approves the device code.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateAuthorizing)

	da, err := s.auth.DeviceCode(ctx)
	if err != nil {
		return s.fail(&AuthorizationError{Reason: ReasonFailed, Err: err})
	}
	s.logger.Info("authorize the bot by visiting the verification url",
		"url", da.VerificationURI,
		"code", da.UserCode,
		"expiresAt", da.Expiry,
	)

	tok, err := s.auth.PollForAuthorization(ctx, da)
	if err != nil {
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return nil
		}
		var authErr *AuthorizationError
		if !errors.As(err, &authErr) {
			err = &AuthorizationError{Reason: ReasonFailed, Err: err}
		}
		return s.fail(err)
	}

	s.mu.Lock()
	s.tokens = s.auth.TokenSource(ctx, tok)
	s.token = tok
	s.refreshedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateConnected)

	for _, hook := range s.onConnected {
		if err := hook(ctx); err != nil {
			return s.fail(errors.Wrap(err, "failed to connect to twitch"))
		}
	}

	for _, kind := range types.AllKinds() {
		s.feed.On(kind, s.handler)
	}

	s.setState(StateListening)
	s.logger.Info("bot is ready")

	err = s.feed.Start(ctx)
	if cerr := s.feed.Close(); cerr != nil {
		s.logger.Warn("failed to close event feed", "error", cerr.Error())
	}
	s.setState(StateStopped)
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "event feed stopped")
	}
	return nil
}

// Token implements oauth2.TokenSource. It fails until the device code has
// been approved.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	ts := s.tokens
	s.mu.RUnlock()
	if ts == nil {
		return nil, errNotAuthorized
	}

	tok, err := ts.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh token")
	}

	s.mu.Lock()
	if s.token == nil || s.token.AccessToken != tok.AccessToken {
		s.refreshedAt = time.Now()
		s.logger.Info("token refreshed", "expiry", tok.Expiry)
	}
	s.token = tok
	s.mu.Unlock()
	return tok, nil
}
