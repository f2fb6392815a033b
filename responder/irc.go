package responder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
	v2 "github.com/gempir/go-twitch-irc/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

var errIRCNotConnected = errors.New("irc client is not connected")

// ircClient is the subset of the go-twitch-irc client used here.
type ircClient interface {
	Join(channels ...string)
	Say(channel, text string)
	OnConnect(callback func())
	Connect() error
	Disconnect() error
}

// IRCSender sends chat messages over Twitch IRC. It must be connected with
// Connect before SendMessage succeeds. When the connection ends on its own,
// usually a rejected login after the token rotated, the client is rebuilt with
// a fresh token from the source.
type IRCSender struct {
	tokens    oauth2.TokenSource
	newClient func(username, oauth string) ircClient
	retryWait time.Duration
	connected atomic.Bool
	logger    *logging.Logger

	mu          sync.Mutex
	ctx         context.Context
	client      ircClient
	accessToken string
	botLogin    string
	channel     string
}

// NewIRCSender creates an IRC sender that authenticates with tokens.
func NewIRCSender(tokens oauth2.TokenSource, logger *logging.Logger) *IRCSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &IRCSender{
		tokens: tokens,
		newClient: func(username, oauth string) ircClient {
			return v2.NewClient(username, oauth)
		},
		retryWait: 5 * time.Second,
		logger:    logger.WithComponent("irc"),
	}
}

// Connect joins channel as botLogin. The IRC connection runs until ctx is done.
func (s *IRCSender) Connect(ctx context.Context, botLogin, channel string) error {
	tok, err := s.tokens.Token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctx = ctx
	s.botLogin = botLogin
	s.channel = channel
	s.dialLocked(tok.AccessToken)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		c := s.client
		s.mu.Unlock()
		if err := c.Disconnect(); err != nil {
			s.logger.Debug("error disconnecting twitch IRC client", "error", err.Error())
		}
	}()
	return nil
}

// dialLocked starts a new client logged in with accessToken. Caller holds s.mu.
func (s *IRCSender) dialLocked(accessToken string) {
	channel := s.channel
	c := s.newClient(s.botLogin, "oauth:"+accessToken)
	c.Join(channel)
	c.OnConnect(func() {
		s.mu.Lock()
		current := s.client == c
		s.mu.Unlock()
		if !current {
			return
		}
		s.connected.Store(true)
		metrics.TwitchConnectionCount.Add(1)
		s.logger.Info("connection to twitch IRC established", "channel", channel)
	})
	s.client = c
	s.accessToken = accessToken
	go s.run(c)
}

func (s *IRCSender) run(c ircClient) {
	// long running, returns on disconnect or a rejected login
	err := c.Connect()
	if err != nil && !errors.Is(err, v2.ErrClientDisconnected) {
		s.logger.Error("twitch IRC connection ended", "error", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != c {
		return
	}
	s.connected.Store(false)
	if s.ctx.Err() != nil {
		return
	}
	go s.redial(c)
}

// redial replaces the failed client once a token is available.
func (s *IRCSender) redial(failed ircClient) {
	b := retry.WithCappedDuration(time.Minute, retry.NewExponential(s.retryWait))
	err := retry.Do(s.ctx, b, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryWait):
		}
		tok, err := s.tokens.Token()
		if err != nil {
			s.logger.Warn("failed to get token for twitch IRC", "error", err.Error())
			return retry.RetryableError(err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.client != failed || ctx.Err() != nil {
			return nil
		}
		if tok.AccessToken != s.accessToken {
			s.logger.Info("reconnecting to twitch IRC with a refreshed token")
		} else {
			s.logger.Info("reconnecting to twitch IRC")
		}
		s.dialLocked(tok.AccessToken)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("gave up reconnecting to twitch IRC", "error", err.Error())
	}
}

func (s *IRCSender) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	c, channel := s.client, s.channel
	s.mu.Unlock()
	if c == nil || !s.connected.Load() {
		return &DeliveryError{Transport: "irc", Err: errIRCNotConnected}
	}
	c.Say(channel, text)
	return nil
}
