package eventsub

import (
	"encoding/json"
	"fmt"

	"github.com/Soypete/twitch-event-bot/types"
)

// Payloads below only carry the fields the bot reads. Nullable user fields
// decode to "" when Twitch sends null.

type chatMessagePayload struct {
	ChatterUserName string `json:"chatter_user_name"`
	Message         struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sharedChatPayload struct {
	BroadcasterUserName     string `json:"broadcaster_user_name"`
	HostBroadcasterUserName string `json:"host_broadcaster_user_name"`
}

// host returns the channel hosting the shared session.
func (p sharedChatPayload) host() string {
	if p.HostBroadcasterUserName != "" {
		return p.HostBroadcasterUserName
	}
	return p.BroadcasterUserName
}

type cheerPayload struct {
	IsAnonymous bool   `json:"is_anonymous"`
	UserName    string `json:"user_name"`
	Bits        *int   `json:"bits"`
}

func (p cheerPayload) missing() error { return requireCount("bits", p.Bits) }

type userPayload struct {
	UserName string `json:"user_name"`
}

type giftPayload struct {
	UserName    string `json:"user_name"`
	IsAnonymous bool   `json:"is_anonymous"`
	Total       *int   `json:"total"`
	Tier        string `json:"tier"`
}

func (p giftPayload) missing() error { return requireCount("total", p.Total) }

type subscriptionMessagePayload struct {
	UserName string `json:"user_name"`
	Message  struct {
		Text string `json:"text"`
	} `json:"message"`
}

type titlePayload struct {
	Title string `json:"title"`
}

type raidPayload struct {
	FromBroadcasterUserName string `json:"from_broadcaster_user_name"`
	Viewers                 *int   `json:"viewers"`
}

func (p raidPayload) missing() error { return requireCount("viewers", p.Viewers) }

// countChecker is implemented by payloads with numeric fields that must be
// present. A zero value cannot tell an absent count from a real 0.
type countChecker interface {
	missing() error
}

func requireCount(field string, v *int) error {
	if v == nil {
		return fmt.Errorf("%w: %s", types.ErrMissingField, field)
	}
	return nil
}

// deref is only called after countChecker passed.
func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

type decodeFunc func(raw json.RawMessage) (types.Event, error)

func decodeAs[P any](build func(P) types.Event) decodeFunc {
	return func(raw json.RawMessage) (types.Event, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		if c, ok := any(p).(countChecker); ok {
			if err := c.missing(); err != nil {
				return nil, err
			}
		}
		return build(p), nil
	}
}

var decoders = map[types.Kind]decodeFunc{
	types.KindChatMessage: decodeAs(func(p chatMessagePayload) types.Event {
		return types.ChatMessage{ChatterUserName: p.ChatterUserName, Text: p.Message.Text}
	}),
	types.KindChatClear: decodeAs(func(struct{}) types.Event {
		return types.ChatClear{}
	}),
	types.KindSharedChatBegin: decodeAs(func(p sharedChatPayload) types.Event {
		return types.SharedChatBegin{BroadcasterUserName: p.host()}
	}),
	types.KindSharedChatEnd: decodeAs(func(p sharedChatPayload) types.Event {
		return types.SharedChatEnd{BroadcasterUserName: p.host()}
	}),
	types.KindCheer: decodeAs(func(p cheerPayload) types.Event {
		return types.Cheer{UserName: p.UserName, IsAnonymous: p.IsAnonymous, Bits: deref(p.Bits)}
	}),
	types.KindFollow: decodeAs(func(p userPayload) types.Event {
		return types.Follow{UserName: p.UserName}
	}),
	types.KindSubscribe: decodeAs(func(p userPayload) types.Event {
		return types.Subscribe{UserName: p.UserName}
	}),
	types.KindSubscriptionEnd: decodeAs(func(p userPayload) types.Event {
		return types.SubscriptionEnd{UserName: p.UserName}
	}),
	types.KindSubscriptionGift: decodeAs(func(p giftPayload) types.Event {
		return types.SubscriptionGift{UserName: p.UserName, IsAnonymous: p.IsAnonymous, Total: deref(p.Total), Tier: p.Tier}
	}),
	types.KindSubscriptionMessage: decodeAs(func(p subscriptionMessagePayload) types.Event {
		return types.SubscriptionMessage{UserName: p.UserName, Message: p.Message.Text}
	}),
	types.KindPollBegin: decodeAs(func(p titlePayload) types.Event {
		return types.PollBegin{Title: p.Title}
	}),
	types.KindPollEnd: decodeAs(func(p titlePayload) types.Event {
		return types.PollEnd{Title: p.Title}
	}),
	types.KindPredictionBegin: decodeAs(func(p titlePayload) types.Event {
		return types.PredictionBegin{Title: p.Title}
	}),
	types.KindPredictionEnd: decodeAs(func(p titlePayload) types.Event {
		return types.PredictionEnd{Title: p.Title}
	}),
	types.KindHypeTrainBegin: decodeAs(func(struct{}) types.Event {
		return types.HypeTrainBegin{}
	}),
	types.KindHypeTrainEnd: decodeAs(func(struct{}) types.Event {
		return types.HypeTrainEnd{}
	}),
	types.KindRaid: decodeAs(func(p raidPayload) types.Event {
		return types.Raid{FromBroadcasterUserName: p.FromBroadcasterUserName, Viewers: deref(p.Viewers)}
	}),
}

// DecodeEvent turns the event object of a notification into a validated
// types.Event. Unknown subscription types and payloads missing required
// fields are errors.
func DecodeEvent(subscriptionType string, raw json.RawMessage) (types.Event, error) {
	kind, ok := kindForType(subscriptionType)
	if !ok {
		return nil, fmt.Errorf("unsupported subscription type %q", subscriptionType)
	}
	ev, err := decoders[kind](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", subscriptionType, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
