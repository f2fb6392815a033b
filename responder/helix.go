package responder

import (
	"context"

	"github.com/Soypete/twitch-event-bot/twitch/helix"
)

// ChatAPI is the part of the Helix client HelixSender needs.
type ChatAPI interface {
	SendChatMessage(ctx context.Context, message string) (*helix.SendChatMessageResult, error)
}

// HelixSender sends chat messages through the Helix "Send Chat Message" endpoint.
type HelixSender struct {
	api ChatAPI
}

func NewHelixSender(api ChatAPI) *HelixSender {
	return &HelixSender{api: api}
}

func (s *HelixSender) SendMessage(ctx context.Context, text string) error {
	res, err := s.api.SendChatMessage(ctx, text)
	if err != nil {
		return &DeliveryError{Transport: "helix", Err: err}
	}
	if !res.IsSent {
		return &DeliveryError{Transport: "helix", Reason: res.DropReason}
	}
	return nil
}
