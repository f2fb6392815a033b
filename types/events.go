// Package types holds the event payloads the bot reacts to. Every supported
// Twitch notification is one concrete struct implementing Event.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies an event variant.
type Kind string

const (
	KindChatMessage         Kind = "chat_message"
	KindChatClear           Kind = "chat_clear"
	KindSharedChatBegin     Kind = "shared_chat_begin"
	KindSharedChatEnd       Kind = "shared_chat_end"
	KindCheer               Kind = "cheer"
	KindFollow              Kind = "follow"
	KindSubscribe           Kind = "subscribe"
	KindSubscriptionEnd     Kind = "subscription_end"
	KindSubscriptionGift    Kind = "subscription_gift"
	KindSubscriptionMessage Kind = "subscription_message"
	KindPollBegin           Kind = "poll_begin"
	KindPollEnd             Kind = "poll_end"
	KindPredictionBegin     Kind = "prediction_begin"
	KindPredictionEnd       Kind = "prediction_end"
	KindHypeTrainBegin      Kind = "hype_train_begin"
	KindHypeTrainEnd        Kind = "hype_train_end"
	KindRaid                Kind = "raid"
)

// AllKinds returns every supported kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindChatMessage,
		KindChatClear,
		KindSharedChatBegin,
		KindSharedChatEnd,
		KindCheer,
		KindFollow,
		KindSubscribe,
		KindSubscriptionEnd,
		KindSubscriptionGift,
		KindSubscriptionMessage,
		KindPollBegin,
		KindPollEnd,
		KindPredictionBegin,
		KindPredictionEnd,
		KindHypeTrainBegin,
		KindHypeTrainEnd,
		KindRaid,
	}
}

// Event is a closed union: only the structs in this file implement it.
type Event interface {
	Kind() Kind
	// Validate reports a missing or malformed required field.
	Validate() error
	sealed()
}

// ErrMissingField is wrapped by every Validate failure.
var ErrMissingField = errors.New("missing required field")

func required(kind Kind, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s: %w: %s", kind, ErrMissingField, field)
	}
	return nil
}

// ChatMessage is a message posted in the channel chat.
type ChatMessage struct {
	ChatterUserName string
	Text            string
}

// ChatClear is sent when a moderator clears the chat.
type ChatClear struct{}

// SharedChatBegin is sent when the channel joins a shared chat session.
type SharedChatBegin struct {
	BroadcasterUserName string
}

// SharedChatEnd is sent when the shared chat session ends.
type SharedChatEnd struct {
	BroadcasterUserName string
}

// Cheer carries a bits cheer. UserName is empty for anonymous cheers.
type Cheer struct {
	UserName    string
	IsAnonymous bool
	Bits        int
}

// Follow is a new follower.
type Follow struct {
	UserName string
}

// Subscribe is a new subscription.
type Subscribe struct {
	UserName string
}

// SubscriptionEnd is an expired subscription.
type SubscriptionEnd struct {
	UserName string
}

// SubscriptionGift is a batch of gifted subs. UserName is empty when anonymous.
type SubscriptionGift struct {
	UserName    string
	IsAnonymous bool
	Total       int
	Tier        string
}

// SubscriptionMessage is a resubscription with an attached chat message.
type SubscriptionMessage struct {
	UserName string
	Message  string
}

// PollBegin is a poll that just started.
type PollBegin struct {
	Title string
}

// PollEnd is a poll that just ended.
type PollEnd struct {
	Title string
}

// PredictionBegin is a prediction that just started.
type PredictionBegin struct {
	Title string
}

// PredictionEnd is a prediction that just ended.
type PredictionEnd struct {
	Title string
}

// HypeTrainBegin marks the start of a hype train.
type HypeTrainBegin struct{}

// HypeTrainEnd marks the end of a hype train.
type HypeTrainEnd struct{}

// Raid is an incoming raid from another broadcaster.
type Raid struct {
	FromBroadcasterUserName string
	Viewers                 int
}

func (ChatMessage) Kind() Kind         { return KindChatMessage }
func (ChatClear) Kind() Kind           { return KindChatClear }
func (SharedChatBegin) Kind() Kind     { return KindSharedChatBegin }
func (SharedChatEnd) Kind() Kind       { return KindSharedChatEnd }
func (Cheer) Kind() Kind               { return KindCheer }
func (Follow) Kind() Kind              { return KindFollow }
func (Subscribe) Kind() Kind           { return KindSubscribe }
func (SubscriptionEnd) Kind() Kind     { return KindSubscriptionEnd }
func (SubscriptionGift) Kind() Kind    { return KindSubscriptionGift }
func (SubscriptionMessage) Kind() Kind { return KindSubscriptionMessage }
func (PollBegin) Kind() Kind           { return KindPollBegin }
func (PollEnd) Kind() Kind             { return KindPollEnd }
func (PredictionBegin) Kind() Kind     { return KindPredictionBegin }
func (PredictionEnd) Kind() Kind       { return KindPredictionEnd }
func (HypeTrainBegin) Kind() Kind      { return KindHypeTrainBegin }
func (HypeTrainEnd) Kind() Kind        { return KindHypeTrainEnd }
func (Raid) Kind() Kind                { return KindRaid }

func (ChatMessage) sealed()         {}
func (ChatClear) sealed()           {}
func (SharedChatBegin) sealed()     {}
func (SharedChatEnd) sealed()       {}
func (Cheer) sealed()               {}
func (Follow) sealed()              {}
func (Subscribe) sealed()           {}
func (SubscriptionEnd) sealed()     {}
func (SubscriptionGift) sealed()    {}
func (SubscriptionMessage) sealed() {}
func (PollBegin) sealed()           {}
func (PollEnd) sealed()             {}
func (PredictionBegin) sealed()     {}
func (PredictionEnd) sealed()       {}
func (HypeTrainBegin) sealed()      {}
func (HypeTrainEnd) sealed()        {}
func (Raid) sealed()                {}

func (e ChatMessage) Validate() error {
	return required(e.Kind(), "chatter_user_name", e.ChatterUserName)
}

func (ChatClear) Validate() error { return nil }

func (e SharedChatBegin) Validate() error {
	return required(e.Kind(), "broadcaster_user_name", e.BroadcasterUserName)
}

func (e SharedChatEnd) Validate() error {
	return required(e.Kind(), "broadcaster_user_name", e.BroadcasterUserName)
}

func (e Cheer) Validate() error {
	if !e.IsAnonymous {
		if err := required(e.Kind(), "user_name", e.UserName); err != nil {
			return err
		}
	}
	if e.Bits <= 0 {
		return fmt.Errorf("%s: bits must be positive, got %d", e.Kind(), e.Bits)
	}
	return nil
}

func (e Follow) Validate() error {
	return required(e.Kind(), "user_name", e.UserName)
}

func (e Subscribe) Validate() error {
	return required(e.Kind(), "user_name", e.UserName)
}

func (e SubscriptionEnd) Validate() error {
	return required(e.Kind(), "user_name", e.UserName)
}

func (e SubscriptionGift) Validate() error {
	if !e.IsAnonymous {
		if err := required(e.Kind(), "user_name", e.UserName); err != nil {
			return err
		}
	}
	if e.Total <= 0 {
		return fmt.Errorf("%s: total must be positive, got %d", e.Kind(), e.Total)
	}
	return required(e.Kind(), "tier", e.Tier)
}

func (e SubscriptionMessage) Validate() error {
	return required(e.Kind(), "user_name", e.UserName)
}

func (e PollBegin) Validate() error {
	return required(e.Kind(), "title", e.Title)
}

func (e PollEnd) Validate() error {
	return required(e.Kind(), "title", e.Title)
}

func (e PredictionBegin) Validate() error {
	return required(e.Kind(), "title", e.Title)
}

func (e PredictionEnd) Validate() error {
	return required(e.Kind(), "title", e.Title)
}

func (HypeTrainBegin) Validate() error { return nil }

func (HypeTrainEnd) Validate() error { return nil }

func (e Raid) Validate() error {
	if err := required(e.Kind(), "from_broadcaster_user_name", e.FromBroadcasterUserName); err != nil {
		return err
	}
	if e.Viewers < 0 {
		return fmt.Errorf("%s: viewers must not be negative, got %d", e.Kind(), e.Viewers)
	}
	return nil
}
