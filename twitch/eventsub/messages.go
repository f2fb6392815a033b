package eventsub

import (
	"encoding/json"
	"time"
)

// websocket message types
const (
	messageWelcome      = "session_welcome"
	messageKeepalive    = "session_keepalive"
	messageNotification = "notification"
	messageReconnect    = "session_reconnect"
	messageRevocation   = "revocation"
)

type metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type"`
	SubscriptionVersion string    `json:"subscription_version"`
}

// message is any frame received on the eventsub websocket.
type message struct {
	Metadata metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type session struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

// sessionPayload is the payload of welcome and reconnect messages.
type sessionPayload struct {
	Session session `json:"session"`
}

type subscriptionInfo struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

// notificationPayload is the payload of notification and revocation messages.
type notificationPayload struct {
	Subscription subscriptionInfo `json:"subscription"`
	Event        json.RawMessage  `json:"event"`
}
