// package eventchat is the langchaingo backed completion client that turns event
// prompts into chat replies.
package eventchat

import (
	"fmt"
	"strings"
	"time"

	"github.com/Soypete/twitch-event-bot/ai"
	"github.com/Soypete/twitch-event-bot/config"
	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client is a client for a locally hosted model. The persona, model and
// timeout are fixed at construction.
type Client struct {
	llm         llms.Model
	modelName   string
	persona     string
	timeout     time.Duration
	temperature float64
	logger      *logging.Logger
}

// Setup creates the completion client for the configured backend.
func Setup(cfg config.AIConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("eventchat")

	logger.Info("setting up event chat LLM client", "backend", cfg.Backend, "model", cfg.Model, "path", cfg.BaseURL)

	var (
		llm llms.Model
		err error
	)
	switch cfg.Backend {
	case config.BackendOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	case config.BackendOpenAI:
		// we are not actually connecting to openai, llama.cpp and vllm serve the same api spec
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		llm, err = openai.New(
			openai.WithBaseURL(baseURL),
			openai.WithModel(cfg.Model),
			openai.WithToken("none"),
		)
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.Backend)
	}
	if err != nil {
		logger.Error("failed to create LLM", "backend", cfg.Backend, "error", err.Error())
		return nil, fmt.Errorf("failed to create %s LLM: %w", cfg.Backend, err)
	}

	return newClient(llm, cfg.Model, cfg.Timeout, cfg.Temperature, logger), nil
}

func newClient(llm llms.Model, modelName string, timeout time.Duration, temperature float64, logger *logging.Logger) *Client {
	return &Client{
		llm:         llm,
		modelName:   modelName,
		persona:     ai.Persona,
		timeout:     timeout,
		temperature: temperature,
		logger:      logger,
	}
}

// ModelName returns the model every completion is sent to.
func (c *Client) ModelName() string {
	return c.modelName
}
