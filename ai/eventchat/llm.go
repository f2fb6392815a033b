package eventchat

import (
	"context"
	"errors"
	"time"

	"github.com/Soypete/twitch-event-bot/ai"
	"github.com/Soypete/twitch-event-bot/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var errNoChoices = errors.New("model returned no choices")

// Complete sends the persona and userMessage as a two turn prompt and returns
// the model's reply verbatim. Every failure is an *ai.InferenceError.
func (c *Client) Complete(ctx context.Context, userMessage string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, c.persona),
		llms.TextParts(schema.ChatMessageTypeHuman, userMessage),
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithCandidateCount(1),
		llms.WithTemperature(c.temperature),
	)
	metrics.LLMGenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FailedLLMGenCount.Add(1)
		c.logger.Debug("llm call failed", "model", c.modelName, "error", err.Error())
		return "", &ai.InferenceError{Model: c.modelName, Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		metrics.FailedLLMGenCount.Add(1)
		return "", &ai.InferenceError{Model: c.modelName, Err: errNoChoices}
	}

	content := resp.Choices[0].Content
	if content == "" {
		metrics.EmptyLLMResponseCount.Add(1)
	} else {
		metrics.SuccessfulLLMGenCount.Add(1)
	}
	return content, nil
}
