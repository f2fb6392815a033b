// package ai defines the persona and the completion contract the bot uses to turn
// channel events into chat replies.
package ai

import (
	"context"
	"fmt"
)

// Persona is the system prompt sent with every completion request.
const Persona = "You are a Twitch bot that responds to specific events with engaging, concise, and fun messages. " +
	"When given an input message, rephrase or enhance it with random variations while keeping the meaning intact. " +
	"If the message includes a user's name, always mention the name with an @ prefix. " +
	"Your responses must be Twitch-friendly, no longer than 500 characters, and entertaining. " +
	"Do not discuss the bot, its limitations, or how it works."

// Completer turns a single user message into the model's reply.
type Completer interface {
	Complete(ctx context.Context, userMessage string) (string, error)
}

// InferenceError is returned when the model backend cannot produce a reply.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for model %s: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
