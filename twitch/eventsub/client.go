// Package eventsub receives Twitch EventSub notifications over a websocket
// session and hands them to registered handlers as types.Event values.
package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
	"github.com/Soypete/twitch-event-bot/twitch/helix"
	"github.com/Soypete/twitch-event-bot/types"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

const (
	defaultURL = "wss://eventsub.wss.twitch.tv/ws"

	welcomeWait      = 10 * time.Second
	writeWait        = 10 * time.Second
	keepaliveGrace   = 5 * time.Second
	defaultKeepalive = 10 * time.Second

	defaultBackoffBase = time.Second
	defaultBackoffCap  = 2 * time.Minute
	initialDialRetries = 5
)

var errClosed = errors.New("eventsub client closed")

// Subscriber creates subscriptions for the resolved broadcaster and bot account.
// *helix.Client implements it.
type Subscriber interface {
	CreateEventSubSubscription(ctx context.Context, req helix.CreateSubscriptionRequest) (*helix.Subscription, error)
	BroadcasterID() string
	BotUserID() string
}

// Handler receives one validated event. It must not block for long; the read
// loop waits for it.
type Handler func(ctx context.Context, ev types.Event)

// Client owns one EventSub websocket session at a time.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	api         Subscriber
	logger      *logging.Logger
	backoffBase time.Duration
	backoffCap  time.Duration

	mu       sync.Mutex
	handlers map[types.Kind]Handler
	conn     *websocket.Conn
	closed   bool

	seen *recentIDs
}

// Option configures a Client.
type Option func(*Client)

// WithURL points the client at a different websocket endpoint, used by tests.
func WithURL(u string) Option {
	return func(c *Client) {
		c.url = u
	}
}

// WithBackoff sets the reconnect backoff base and cap.
func WithBackoff(base, limit time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffCap = limit
	}
}

// NewClient creates an EventSub client. Subscriptions are created through api
// once the session is welcomed.
func NewClient(api Subscriber, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		url:         defaultURL,
		dialer:      websocket.DefaultDialer,
		api:         api,
		logger:      logger.WithComponent("eventsub"),
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		handlers:    make(map[types.Kind]Handler),
		seen:        newRecentIDs(1000),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers h for kind. Only kinds with a handler are subscribed.
func (c *Client) On(kind types.Kind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = h
}

func (c *Client) handler(kind types.Kind) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[kind]
	return h, ok
}

func (c *Client) registeredKinds() []types.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]types.Kind, 0, len(c.handlers))
	for _, k := range types.AllKinds() {
		if _, ok := c.handlers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// reconnectRequest is returned by the read loop when Twitch asks the client
// to move to a new session url.
type reconnectRequest struct {
	url string
}

func (r *reconnectRequest) Error() string {
	return "session reconnect requested"
}

// Start connects, subscribes and reads notifications until ctx is done. A
// dropped connection is re-established with capped exponential backoff and
// the subscriptions are created again on the new session.
func (c *Client) Start(ctx context.Context) error {
	b := retry.WithMaxRetries(initialDialRetries, c.backoff())
	var (
		conn      *websocket.Conn
		keepalive time.Duration
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var sess *session
		var err error
		conn, sess, err = c.connect(ctx, c.url)
		if errors.Is(err, errClosed) {
			return err
		}
		if err != nil {
			c.logger.Warn("failed to connect to eventsub", "error", err.Error())
			return retry.RetryableError(err)
		}
		keepalive = keepaliveTimeout(sess)
		c.subscribe(ctx, sess.ID)
		return nil
	})
	if errors.Is(err, errClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start eventsub session: %w", err)
	}

	for {
		err := c.readLoop(ctx, conn, keepalive)
		if ctx.Err() != nil {
			c.closeConn(conn)
			return nil
		}

		var rr *reconnectRequest
		if errors.As(err, &rr) {
			c.logger.Info("twitch requested session reconnect")
			next, sess, err := c.connect(ctx, rr.url)
			if err == nil {
				// subscriptions carry over to the new session
				c.closeConn(conn)
				conn, keepalive = next, keepaliveTimeout(sess)
				continue
			}
			c.logger.Warn("failed to follow reconnect url", "error", err.Error())
		} else {
			c.logger.Warn("eventsub connection lost", "error", err.Error())
		}

		c.closeConn(conn)
		conn, keepalive, err = c.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errClosed) {
				return nil
			}
			return err
		}
	}
}

// reconnect dials a fresh session and subscribes again. It retries until ctx
// is done.
func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, time.Duration, error) {
	var (
		conn      *websocket.Conn
		keepalive time.Duration
	)
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var sess *session
		var err error
		conn, sess, err = c.connect(ctx, c.url)
		if errors.Is(err, errClosed) {
			return err
		}
		if err != nil {
			c.logger.Warn("eventsub reconnect failed", "error", err.Error())
			return retry.RetryableError(err)
		}
		keepalive = keepaliveTimeout(sess)
		c.subscribe(ctx, sess.ID)
		return nil
	})
	return conn, keepalive, err
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.backoffBase)
	b = retry.WithCappedDuration(c.backoffCap, b)
	return retry.WithJitterPercent(10, b)
}

// connect dials url and waits for the session_welcome message.
func (c *Client) connect(ctx context.Context, url string) (*websocket.Conn, *session, error) {
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(welcomeWait)); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to read welcome message: %w", err)
	}

	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to parse welcome message: %w", err)
	}
	if msg.Metadata.MessageType != messageWelcome {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("expected %s, got %s", messageWelcome, msg.Metadata.MessageType)
	}
	var p sessionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to parse welcome payload: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, nil, errClosed
	}
	c.conn = conn
	c.mu.Unlock()

	metrics.TwitchConnectionCount.Add(1)
	c.logger.Info("eventsub session established", "sessionID", p.Session.ID, "keepalive", p.Session.KeepaliveTimeoutSeconds)
	return conn, &p.Session, nil
}

func keepaliveTimeout(s *session) time.Duration {
	d := time.Duration(s.KeepaliveTimeoutSeconds) * time.Second
	if d <= 0 {
		d = defaultKeepalive
	}
	return d + keepaliveGrace
}

// subscribe creates one subscription per registered kind. Failures are logged
// and skipped so one missing scope does not silence every other event.
func (c *Client) subscribe(ctx context.Context, sessionID string) {
	broadcasterID, botUserID := c.api.BroadcasterID(), c.api.BotUserID()
	for _, kind := range c.registeredKinds() {
		sub := subscriptions[kind]
		_, err := c.api.CreateEventSubSubscription(ctx, helix.CreateSubscriptionRequest{
			Type:      sub.Type,
			Version:   sub.Version,
			Condition: sub.condition(broadcasterID, botUserID),
			Transport: helix.Transport{Method: "websocket", SessionID: sessionID},
		})
		if err != nil {
			c.logger.Error("failed to subscribe", "type", sub.Type, "error", err.Error())
			continue
		}
		c.logger.Debug("subscribed", "type", sub.Type, "version", sub.Version)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, keepalive time.Duration) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(keepalive))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(keepalive)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("failed to parse eventsub message", "error", err.Error())
			continue
		}

		switch msg.Metadata.MessageType {
		case messageKeepalive:
		case messageNotification:
			c.handleNotification(ctx, msg)
		case messageReconnect:
			var p sessionPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Session.ReconnectURL == "" {
				c.logger.Warn("invalid session_reconnect message")
				continue
			}
			return &reconnectRequest{url: p.Session.ReconnectURL}
		case messageRevocation:
			var p notificationPayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil {
				c.logger.Warn("subscription revoked", "type", p.Subscription.Type, "status", p.Subscription.Status)
			}
		default:
			c.logger.Debug("ignoring eventsub message", "type", msg.Metadata.MessageType)
		}
	}
}

func (c *Client) handleNotification(ctx context.Context, msg message) {
	if !c.seen.add(msg.Metadata.MessageID) {
		c.logger.Debug("duplicate notification", "messageID", msg.Metadata.MessageID)
		return
	}

	var p notificationPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.logger.Warn("failed to parse notification", "error", err.Error())
		return
	}
	subType := p.Subscription.Type
	if subType == "" {
		subType = msg.Metadata.SubscriptionType
	}

	ev, err := DecodeEvent(subType, p.Event)
	if err != nil {
		c.logger.Warn("rejected notification", "type", subType, "error", err.Error())
		return
	}

	metrics.TwitchEventReceivedCount.Add(1)
	metrics.EventsReceived.WithLabelValues(string(ev.Kind())).Inc()

	h, ok := c.handler(ev.Kind())
	if !ok {
		c.logger.Debug("no handler registered", "kind", ev.Kind())
		return
	}
	h(ctx, ev)
}

func (c *Client) closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

// Close releases the current connection. Start returns once its context is
// cancelled.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.closed = true
	c.conn = nil
	c.mu.Unlock()
	c.closeConn(conn)
	return nil
}

// recentIDs remembers the last n message ids. Twitch may redeliver a
// notification, most often around a session reconnect.
type recentIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{
		ids:   make(map[string]struct{}, n),
		order: make([]string, n),
	}
}

// add records id and reports whether it was new. Empty ids are always new.
func (r *recentIDs) add(id string) bool {
	if id == "" {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	if old := r.order[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.order[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % len(r.order)
	return true
}
