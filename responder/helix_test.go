package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/Soypete/twitch-event-bot/twitch/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatAPI struct {
	result *helix.SendChatMessageResult
	err    error
	got    string
}

func (f *fakeChatAPI) SendChatMessage(ctx context.Context, message string) (*helix.SendChatMessageResult, error) {
	f.got = message
	return f.result, f.err
}

func TestHelixSender(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		api := &fakeChatAPI{result: &helix.SendChatMessageResult{MessageID: "abc", IsSent: true}}
		err := NewHelixSender(api).SendMessage(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", api.got)
	})

	t.Run("dropped by twitch", func(t *testing.T) {
		api := &fakeChatAPI{result: &helix.SendChatMessageResult{IsSent: false, DropReason: "msg_rejected"}}
		err := NewHelixSender(api).SendMessage(context.Background(), "hello")

		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "msg_rejected", de.Reason)
	})

	t.Run("request failed", func(t *testing.T) {
		api := &fakeChatAPI{err: errors.New("API error: status 403")}
		err := NewHelixSender(api).SendMessage(context.Background(), "hello")

		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "helix", de.Transport)
	})
}
