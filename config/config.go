// Package config loads the bot configuration from defaults, an optional YAML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"

	TransportHelix = "helix"
	TransportIRC   = "irc"
)

// DefaultScopes are the OAuth scopes needed for every subscribed event and for
// sending chat messages through Helix.
var DefaultScopes = []string{
	"user:read:chat",
	"bits:read",
	"moderator:read:followers",
	"channel:read:subscriptions",
	"channel:read:polls",
	"channel:read:predictions",
	"channel:read:hype_train",
	"moderator:read:shoutouts",
	"user:write:chat",
}

// ircScopes are added when chat is sent over IRC instead of Helix.
var ircScopes = []string{"chat:read", "chat:edit"}

// Config holds everything the bot needs at startup.
type Config struct {
	ClientID string `yaml:"client_id"`

	// Channel is the login of the channel to join. Empty means the channel of
	// the authorized account.
	Channel string `yaml:"channel"`

	// CommandPrefix gates which chat messages are sent to the model.
	CommandPrefix string `yaml:"command_prefix"`

	Scopes []string `yaml:"scopes"`

	// ChatTransport is either "helix" or "irc".
	ChatTransport string `yaml:"chat_transport"`

	// MaxReplyLength is the hard cap, in characters, applied before sending.
	MaxReplyLength int `yaml:"max_reply_length"`

	MetricsAddr string `yaml:"metrics_addr"`

	// PostgresURL enables the audit log when set.
	PostgresURL string `yaml:"postgres_url"`

	LogLevel string `yaml:"log_level"`

	AI AIConfig `yaml:"ai"`
}

// AIConfig configures the completion backend and the reply worker pool.
type AIConfig struct {
	// Backend is either "ollama" or "openai" (any OpenAI compatible server such as llama.cpp).
	Backend     string        `yaml:"backend"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`

	// Workers bounds the number of concurrent completion calls.
	Workers int `yaml:"workers"`
	// QueueSize bounds the events waiting for a worker.
	QueueSize int `yaml:"queue_size"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		CommandPrefix:  "!ask",
		Scopes:         append([]string(nil), DefaultScopes...),
		ChatTransport:  TransportHelix,
		MaxReplyLength: 500,
		MetricsAddr:    ":6060",
		LogLevel:       "info",
		AI: AIConfig{
			Backend:     BackendOllama,
			Timeout:     30 * time.Second,
			Temperature: 0.8,
			Workers:     4,
			QueueSize:   100,
		},
	}
}

// Override adjusts the loaded configuration before it is validated. Command
// line flags are applied this way.
type Override func(*Config)

// WithModel overrides the model name when m is not empty.
func WithModel(m string) Override {
	return func(c *Config) {
		if m != "" {
			c.AI.Model = m
		}
	}
}

// WithLogLevel overrides the log level when level is not empty.
func WithLogLevel(level string) Override {
	return func(c *Config) {
		if level != "" {
			c.LogLevel = level
		}
	}
}

// Load builds the configuration. path may be empty, in which case only the
// defaults, .env and the environment are used. overrides win over everything.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional, real environment variables always win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()
	for _, o := range overrides {
		o(cfg)
	}

	if cfg.ChatTransport == TransportIRC {
		cfg.Scopes = appendMissing(cfg.Scopes, ircScopes...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ClientID, "CLIENT_ID")
	setString(&c.AI.Model, "AI_MODEL")
	setString(&c.AI.Backend, "LLM_BACKEND")
	setString(&c.AI.BaseURL, "LLAMA_CPP_PATH")
	setString(&c.AI.BaseURL, "LLM_BASE_URL")
	setString(&c.Channel, "TWITCH_CHANNEL")
	setString(&c.PostgresURL, "POSTGRES_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.MetricsAddr, "METRICS_ADDR")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func appendMissing(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, have := range list {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("client id is required (CLIENT_ID)")
	}
	if c.AI.Model == "" {
		return errors.New("ai model is required (AI_MODEL)")
	}
	if c.CommandPrefix == "" {
		return errors.New("command_prefix must not be empty")
	}
	switch c.AI.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("unknown ai backend %q", c.AI.Backend)
	}
	if c.AI.Backend == BackendOpenAI && c.AI.BaseURL == "" {
		return errors.New("ai base_url is required for the openai backend (LLM_BASE_URL)")
	}
	switch c.ChatTransport {
	case TransportHelix, TransportIRC:
	default:
		return fmt.Errorf("unknown chat transport %q", c.ChatTransport)
	}
	if c.AI.Timeout <= 0 {
		return errors.New("ai timeout must be positive")
	}
	if c.AI.Workers <= 0 {
		return errors.New("ai workers must be positive")
	}
	if c.AI.QueueSize <= 0 {
		return errors.New("ai queue_size must be positive")
	}
	if c.MaxReplyLength <= 0 {
		return errors.New("max_reply_length must be positive")
	}
	if len(c.Scopes) == 0 {
		return errors.New("at least one oauth scope is required")
	}
	return nil
}
