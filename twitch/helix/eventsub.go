package helix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Transport is the delivery method of an EventSub subscription.
type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateSubscriptionRequest is the body of Create EventSub Subscription.
type CreateSubscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
}

// Subscription is one created EventSub subscription.
type Subscription struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Cost    int    `json:"cost"`
}

type subscriptionResponse struct {
	Data []Subscription `json:"data"`
}

// CreateEventSubSubscription subscribes the websocket session in req.Transport
// to one event type.
func (c *Client) CreateEventSubSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/eventsub/subscriptions", nil, req)
	if err != nil {
		return nil, err
	}

	var resp subscriptionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse subscription response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no subscription returned for %s", req.Type)
	}
	return &resp.Data[0], nil
}
