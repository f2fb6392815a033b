package types

import (
	"errors"
	"testing"
)

func TestAllKindsUnique(t *testing.T) {
	seen := map[Kind]bool{}
	for _, k := range AllKinds() {
		if seen[k] {
			t.Fatalf("kind %q listed twice", k)
		}
		seen[k] = true
	}
	if len(seen) != 17 {
		t.Errorf("AllKinds() returned %d kinds, want 17", len(seen))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		event       Event
		wantErr     bool
		wantMissing bool
	}{
		{
			name:  "chat message",
			event: ChatMessage{ChatterUserName: "Ada", Text: "!ask hi"},
		},
		{
			name:        "chat message without chatter",
			event:       ChatMessage{Text: "hi"},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:  "anonymous cheer without name",
			event: Cheer{IsAnonymous: true, Bits: 50},
		},
		{
			name:        "named cheer without name",
			event:       Cheer{Bits: 50},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:    "cheer with zero bits",
			event:   Cheer{UserName: "Ada"},
			wantErr: true,
		},
		{
			name:  "anonymous gift",
			event: SubscriptionGift{IsAnonymous: true, Total: 5, Tier: "1000"},
		},
		{
			name:        "gift without tier",
			event:       SubscriptionGift{UserName: "Ada", Total: 5},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:        "poll without title",
			event:       PollBegin{Title: "   "},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:  "raid",
			event: Raid{FromBroadcasterUserName: "Foo", Viewers: 42},
		},
		{
			name:    "raid with negative viewers",
			event:   Raid{FromBroadcasterUserName: "Foo", Viewers: -1},
			wantErr: true,
		},
		{
			name:  "chat clear has no fields",
			event: ChatClear{},
		},
		{
			name:  "hype train end has no fields",
			event: HypeTrainEnd{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMissing && !errors.Is(err, ErrMissingField) {
				t.Errorf("Validate() error = %v, want ErrMissingField", err)
			}
		})
	}
}
