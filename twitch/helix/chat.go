package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SendChatMessageRequest represents the request body for sending a chat message
type SendChatMessageRequest struct {
	BroadcasterID string `json:"broadcaster_id"`
	SenderID      string `json:"sender_id"`
	Message       string `json:"message"`
}

// SendChatMessageResult reports whether Twitch accepted the message.
type SendChatMessageResult struct {
	MessageID  string
	IsSent     bool
	DropReason string
}

type sendChatMessageResponse struct {
	Data []struct {
		MessageID  string `json:"message_id"`
		IsSent     bool   `json:"is_sent"`
		DropReason *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"drop_reason"`
	} `json:"data"`
}

// SendChatMessage posts message to the broadcaster's chat as the bot account.
// ResolveIdentity must have been called first.
func (c *Client) SendChatMessage(ctx context.Context, message string) (*SendChatMessageResult, error) {
	broadcasterID, senderID := c.BroadcasterID(), c.BotUserID()
	if broadcasterID == "" || senderID == "" {
		return nil, errors.New("chat identity not resolved")
	}

	body := SendChatMessageRequest{
		BroadcasterID: broadcasterID,
		SenderID:      senderID,
		Message:       message,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/chat/messages", nil, body)
	if err != nil {
		return nil, err
	}

	var resp sendChatMessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse chat message response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty chat message response")
	}

	d := resp.Data[0]
	res := &SendChatMessageResult{MessageID: d.MessageID, IsSent: d.IsSent}
	if d.DropReason != nil {
		res.DropReason = d.DropReason.Code
		if d.DropReason.Message != "" {
			res.DropReason += ": " + d.DropReason.Message
		}
	}
	return res, nil
}
