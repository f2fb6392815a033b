package main

import (
	"testing"

	"github.com/Soypete/twitch-event-bot/keepalive"
	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "actual",
			want:         "actual",
		},
		{
			name:         "returns default when env not set",
			key:          "UNSET_KEY",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue int
		envValue     string
		want         int
	}{
		{name: "returns parsed int when valid", defaultValue: 42, envValue: "100", want: 100},
		{name: "returns default when not set", defaultValue: 42, want: 42},
		{name: "returns default when invalid int", defaultValue: 42, envValue: "not-a-number", want: 42},
		{name: "handles zero value", defaultValue: 42, envValue: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHECK_INTERVAL", tt.envValue)
			assert.Equal(t, tt.want, getEnvInt("CHECK_INTERVAL", tt.defaultValue))
		})
	}
}

func TestTargets(t *testing.T) {
	tests := []struct {
		name   string
		botURL string
		llmURL string
		want   []keepalive.Target
	}{
		{
			name:   "bot only",
			botURL: "http://localhost:6060/",
			want: []keepalive.Target{
				{Name: "Twitch Event Bot", HealthURL: "http://localhost:6060/healthz", AuthHealthURL: "http://localhost:6060/healthz/auth"},
			},
		},
		{
			name:   "with llama.cpp",
			botURL: "http://bot:6060",
			llmURL: "http://127.0.0.1:8080/v1",
			want: []keepalive.Target{
				{Name: "Twitch Event Bot", HealthURL: "http://bot:6060/healthz", AuthHealthURL: "http://bot:6060/healthz/auth"},
				{Name: "llama.cpp", HealthURL: "http://127.0.0.1:8080/health"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targets(tt.botURL, tt.llmURL))
		})
	}
}
