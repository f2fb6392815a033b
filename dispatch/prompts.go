package dispatch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Soypete/twitch-event-bot/types"
)

// Rule renders the prompt for one event. ok is false when the event should
// not get a reply.
type Rule func(ev types.Event) (prompt string, ok bool)

const anonymousName = "Someone"

// nameOrSomeone hides the user behind "Someone" for anonymous events.
func nameOrSomeone(name string, anonymous bool) string {
	if anonymous || strings.TrimSpace(name) == "" {
		return anonymousName
	}
	return name
}

// rule adapts a typed render function. Events of any other type are skipped.
func rule[E types.Event](render func(E) string) Rule {
	return func(ev types.Event) (string, bool) {
		e, ok := ev.(E)
		if !ok {
			return "", false
		}
		return render(e), true
	}
}

// askQuestion returns the question in text when it starts with prefix
// followed by whitespace. "!asking" is not a request.
func askQuestion(text, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", false
	}
	rest := text[len(prefix):]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return "", false
	}
	q := strings.TrimSpace(rest)
	return q, q != ""
}

// Rules returns the prompt rule of every supported kind. prefix gates which
// chat messages are questions for the model.
func Rules(prefix string) map[types.Kind]Rule {
	return map[types.Kind]Rule{
		types.KindChatMessage: func(ev types.Event) (string, bool) {
			e, ok := ev.(types.ChatMessage)
			if !ok {
				return "", false
			}
			q, ok := askQuestion(e.Text, prefix)
			if !ok {
				return "", false
			}
			return e.ChatterUserName + ": " + q, true
		},
		types.KindChatClear: rule(func(types.ChatClear) string {
			return "Someone has cleared the chat. Make a joke or do something random."
		}),
		types.KindSharedChatBegin: rule(func(e types.SharedChatBegin) string {
			return fmt.Sprintf("The chat is now shared with %s.", e.BroadcasterUserName)
		}),
		types.KindSharedChatEnd: rule(func(e types.SharedChatEnd) string {
			return fmt.Sprintf("The chat is no longer shared with %s.", e.BroadcasterUserName)
		}),
		types.KindCheer: rule(func(e types.Cheer) string {
			return fmt.Sprintf("%s has cheered %d bits!", nameOrSomeone(e.UserName, e.IsAnonymous), e.Bits)
		}),
		types.KindFollow: rule(func(e types.Follow) string {
			return fmt.Sprintf("%s has followed the channel!", e.UserName)
		}),
		types.KindSubscribe: rule(func(e types.Subscribe) string {
			return fmt.Sprintf("%s has subscribed to the channel!", e.UserName)
		}),
		types.KindSubscriptionEnd: rule(func(e types.SubscriptionEnd) string {
			return fmt.Sprintf("%s's subscription has expired.", e.UserName)
		}),
		types.KindSubscriptionGift: rule(func(e types.SubscriptionGift) string {
			return fmt.Sprintf("%s gifted %d subs at tier %s!", nameOrSomeone(e.UserName, e.IsAnonymous), e.Total, e.Tier)
		}),
		types.KindSubscriptionMessage: rule(func(e types.SubscriptionMessage) string {
			return fmt.Sprintf("%s resubscribed: %s", e.UserName, e.Message)
		}),
		types.KindPollBegin: rule(func(e types.PollBegin) string {
			return "A poll has started: " + e.Title
		}),
		types.KindPollEnd: rule(func(e types.PollEnd) string {
			return "The poll has ended: " + e.Title
		}),
		types.KindPredictionBegin: rule(func(e types.PredictionBegin) string {
			return "A prediction has started: " + e.Title
		}),
		types.KindPredictionEnd: rule(func(e types.PredictionEnd) string {
			return "The prediction has ended: " + e.Title
		}),
		types.KindHypeTrainBegin: rule(func(types.HypeTrainBegin) string {
			return "The hype train has started!"
		}),
		types.KindHypeTrainEnd: rule(func(types.HypeTrainEnd) string {
			return "The hype train has ended."
		}),
		types.KindRaid: rule(func(e types.Raid) string {
			return fmt.Sprintf("%s has raided the channel with %d viewers!", e.FromBroadcasterUserName, e.Viewers)
		}),
	}
}
