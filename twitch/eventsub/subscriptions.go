package eventsub

import "github.com/Soypete/twitch-event-bot/types"

// subscription maps an event kind to the Twitch subscription that delivers it.
type subscription struct {
	Type      string
	Version   string
	condition func(broadcasterID, botUserID string) map[string]string
}

func broadcasterOnly(broadcasterID, _ string) map[string]string {
	return map[string]string{"broadcaster_user_id": broadcasterID}
}

func broadcasterAndUser(broadcasterID, botUserID string) map[string]string {
	return map[string]string{
		"broadcaster_user_id": broadcasterID,
		"user_id":             botUserID,
	}
}

func broadcasterAndModerator(broadcasterID, botUserID string) map[string]string {
	return map[string]string{
		"broadcaster_user_id": broadcasterID,
		"moderator_user_id":   botUserID,
	}
}

func raidTarget(broadcasterID, _ string) map[string]string {
	return map[string]string{"to_broadcaster_user_id": broadcasterID}
}

var subscriptions = map[types.Kind]subscription{
	types.KindChatMessage:         {Type: "channel.chat.message", Version: "1", condition: broadcasterAndUser},
	types.KindChatClear:           {Type: "channel.chat.clear", Version: "1", condition: broadcasterAndUser},
	types.KindSharedChatBegin:     {Type: "channel.shared_chat.begin", Version: "1", condition: broadcasterOnly},
	types.KindSharedChatEnd:       {Type: "channel.shared_chat.end", Version: "1", condition: broadcasterOnly},
	types.KindCheer:               {Type: "channel.cheer", Version: "1", condition: broadcasterOnly},
	types.KindFollow:              {Type: "channel.follow", Version: "2", condition: broadcasterAndModerator},
	types.KindSubscribe:           {Type: "channel.subscribe", Version: "1", condition: broadcasterOnly},
	types.KindSubscriptionEnd:     {Type: "channel.subscription.end", Version: "1", condition: broadcasterOnly},
	types.KindSubscriptionGift:    {Type: "channel.subscription.gift", Version: "1", condition: broadcasterOnly},
	types.KindSubscriptionMessage: {Type: "channel.subscription.message", Version: "1", condition: broadcasterOnly},
	types.KindPollBegin:           {Type: "channel.poll.begin", Version: "1", condition: broadcasterOnly},
	types.KindPollEnd:             {Type: "channel.poll.end", Version: "1", condition: broadcasterOnly},
	types.KindPredictionBegin:     {Type: "channel.prediction.begin", Version: "1", condition: broadcasterOnly},
	types.KindPredictionEnd:       {Type: "channel.prediction.end", Version: "1", condition: broadcasterOnly},
	types.KindHypeTrainBegin:      {Type: "channel.hype_train.begin", Version: "2", condition: broadcasterOnly},
	types.KindHypeTrainEnd:        {Type: "channel.hype_train.end", Version: "2", condition: broadcasterOnly},
	types.KindRaid:                {Type: "channel.raid", Version: "1", condition: raidTarget},
}

var kindsByType = func() map[string]types.Kind {
	m := make(map[string]types.Kind, len(subscriptions))
	for kind, sub := range subscriptions {
		m[sub.Type] = kind
	}
	return m
}()

func kindForType(subscriptionType string) (types.Kind, bool) {
	k, ok := kindsByType[subscriptionType]
	return k, ok
}

// SubscriptionType returns the Twitch subscription type for kind.
func SubscriptionType(kind types.Kind) (string, bool) {
	sub, ok := subscriptions[kind]
	return sub.Type, ok
}
