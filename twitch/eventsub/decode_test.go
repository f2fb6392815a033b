package eventsub

import (
	"encoding/json"
	"testing"

	"github.com/Soypete/twitch-event-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		subType string
		raw     string
		want    types.Event
		wantErr bool
	}{
		{
			name:    "chat message",
			subType: "channel.chat.message",
			raw:     `{"chatter_user_name":"Ada","message":{"text":"!ask what time is it","fragments":[]}}`,
			want:    types.ChatMessage{ChatterUserName: "Ada", Text: "!ask what time is it"},
		},
		{
			name:    "chat clear",
			subType: "channel.chat.clear",
			raw:     `{"broadcaster_user_id":"1","broadcaster_user_name":"soypetetech"}`,
			want:    types.ChatClear{},
		},
		{
			name:    "shared chat begin uses host",
			subType: "channel.shared_chat.begin",
			raw:     `{"broadcaster_user_name":"soypetetech","host_broadcaster_user_name":"otherchannel"}`,
			want:    types.SharedChatBegin{BroadcasterUserName: "otherchannel"},
		},
		{
			name:    "shared chat end without host",
			subType: "channel.shared_chat.end",
			raw:     `{"broadcaster_user_name":"soypetetech"}`,
			want:    types.SharedChatEnd{BroadcasterUserName: "soypetetech"},
		},
		{
			name:    "anonymous cheer",
			subType: "channel.cheer",
			raw:     `{"is_anonymous":true,"user_name":null,"bits":50}`,
			want:    types.Cheer{IsAnonymous: true, Bits: 50},
		},
		{
			name:    "cheer with zero bits",
			subType: "channel.cheer",
			raw:     `{"is_anonymous":false,"user_name":"Ada","bits":0}`,
			wantErr: true,
		},
		{
			name:    "follow",
			subType: "channel.follow",
			raw:     `{"user_name":"Ada","followed_at":"2023-07-15T18:16:11.17106713Z"}`,
			want:    types.Follow{UserName: "Ada"},
		},
		{
			name:    "follow missing user",
			subType: "channel.follow",
			raw:     `{}`,
			wantErr: true,
		},
		{
			name:    "gift",
			subType: "channel.subscription.gift",
			raw:     `{"user_name":"Ada","total":5,"tier":"1000","is_anonymous":false}`,
			want:    types.SubscriptionGift{UserName: "Ada", Total: 5, Tier: "1000"},
		},
		{
			name:    "resub message",
			subType: "channel.subscription.message",
			raw:     `{"user_name":"Ada","message":{"text":"two years!"},"cumulative_months":24}`,
			want:    types.SubscriptionMessage{UserName: "Ada", Message: "two years!"},
		},
		{
			name:    "prediction end",
			subType: "channel.prediction.end",
			raw:     `{"title":"Will the build pass?","status":"resolved"}`,
			want:    types.PredictionEnd{Title: "Will the build pass?"},
		},
		{
			name:    "hype train begin",
			subType: "channel.hype_train.begin",
			raw:     `{"level":2,"total":700}`,
			want:    types.HypeTrainBegin{},
		},
		{
			name:    "raid",
			subType: "channel.raid",
			raw:     `{"from_broadcaster_user_name":"Grace","viewers":42}`,
			want:    types.Raid{FromBroadcasterUserName: "Grace", Viewers: 42},
		},
		{
			name:    "raid from an empty channel",
			subType: "channel.raid",
			raw:     `{"from_broadcaster_user_name":"Grace","viewers":0}`,
			want:    types.Raid{FromBroadcasterUserName: "Grace"},
		},
		{
			name:    "raid without viewers",
			subType: "channel.raid",
			raw:     `{"from_broadcaster_user_name":"Foo"}`,
			wantErr: true,
		},
		{
			name:    "cheer without bits",
			subType: "channel.cheer",
			raw:     `{"is_anonymous":false,"user_name":"Ada"}`,
			wantErr: true,
		},
		{
			name:    "gift without total",
			subType: "channel.subscription.gift",
			raw:     `{"user_name":"Ada","tier":"1000","is_anonymous":false}`,
			wantErr: true,
		},
		{
			name:    "wrong field type",
			subType: "channel.raid",
			raw:     `{"from_broadcaster_user_name":"Grace","viewers":"many"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			subType: "channel.ban",
			raw:     `{}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(tt.subType, json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, ev)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeEventMissingCount(t *testing.T) {
	_, err := DecodeEvent("channel.raid", json.RawMessage(`{"from_broadcaster_user_name":"Foo"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingField)
	assert.Contains(t, err.Error(), "viewers")
}

func TestEveryKindHasSubscriptionAndDecoder(t *testing.T) {
	for _, kind := range types.AllKinds() {
		sub, ok := subscriptions[kind]
		require.True(t, ok, "no subscription for %s", kind)
		_, ok = decoders[kind]
		require.True(t, ok, "no decoder for %s", kind)

		got, ok := kindForType(sub.Type)
		require.True(t, ok)
		assert.Equal(t, kind, got)
	}
}

func TestSubscriptionConditions(t *testing.T) {
	assert.Equal(t, map[string]string{"to_broadcaster_user_id": "b"}, subscriptions[types.KindRaid].condition("b", "u"))
	assert.Equal(t, map[string]string{"broadcaster_user_id": "b", "moderator_user_id": "u"}, subscriptions[types.KindFollow].condition("b", "u"))
	assert.Equal(t, map[string]string{"broadcaster_user_id": "b", "user_id": "u"}, subscriptions[types.KindChatMessage].condition("b", "u"))
	assert.Equal(t, "2", subscriptions[types.KindFollow].Version)
}

func TestRecentIDs(t *testing.T) {
	r := newRecentIDs(2)
	assert.True(t, r.add("a"))
	assert.False(t, r.add("a"))
	assert.True(t, r.add("b"))
	assert.True(t, r.add("c"), "evicts a")
	assert.True(t, r.add("a"))
	assert.False(t, r.add("c"))
	assert.True(t, r.add(""))
	assert.True(t, r.add(""))
}
