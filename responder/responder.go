// Package responder posts model replies to the channel chat.
package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/Soypete/twitch-event-bot/ai"
	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
)

// Sender delivers one chat message to the channel.
type Sender interface {
	SendMessage(ctx context.Context, text string) error
}

// DeliveryError is returned by a Sender when the message did not reach chat.
type DeliveryError struct {
	Transport string
	Reason    string
	Err       error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s delivery failed", e.Transport)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Responder cleans up replies and hands them to a Sender. Failures are logged
// and never returned.
type Responder struct {
	sender    Sender
	maxLength int
	logger    *logging.Logger
}

// New builds a Responder. maxLength caps replies in characters; zero disables the cap.
func New(sender Sender, maxLength int, logger *logging.Logger) *Responder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{
		sender:    sender,
		maxLength: maxLength,
		logger:    logger.WithComponent("responder"),
	}
}

// Prepare applies the cleanup Send performs before delivery.
func (r *Responder) Prepare(text string) string {
	return ai.Sanitize(text, r.maxLength)
}

// Send posts text to chat. It reports whether the message was delivered.
func (r *Responder) Send(ctx context.Context, text string) bool {
	msg := r.Prepare(text)
	if msg == "" {
		r.logger.Warn("reply empty after cleanup, not sending")
		return false
	}

	if err := r.sender.SendMessage(ctx, msg); err != nil {
		metrics.TwitchMessageFailedCount.Add(1)
		var de *DeliveryError
		if errors.As(err, &de) {
			r.logger.Error("failed to send message", "transport", de.Transport, "reason", de.Reason, "error", err.Error())
		} else {
			r.logger.Error("failed to send message", "error", err.Error())
		}
		return false
	}

	// Don't log the actual response content to protect privacy
	r.logger.Debug("sent reply to chat", "responseLength", len(msg))
	metrics.TwitchMessageSentCount.Add(1)
	return true
}
