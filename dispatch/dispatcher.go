// Package dispatch turns channel events into prompts, asks the model for a
// reply and hands the reply to the responder.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/Soypete/twitch-event-bot/ai"
	"github.com/Soypete/twitch-event-bot/database"
	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
	"github.com/Soypete/twitch-event-bot/types"
	"github.com/google/uuid"
)

// Replier posts a reply to chat and reports whether it was delivered.
// *responder.Responder implements it.
type Replier interface {
	Send(ctx context.Context, text string) bool
}

// Dispatcher handles one event at a time. It is safe for concurrent use.
type Dispatcher struct {
	completer ai.Completer
	replier   Replier
	rules     map[types.Kind]Rule
	store     database.EventWriter
	modelName string
	logger    *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStore records events and reply attempts in store.
func WithStore(store database.EventWriter) Option {
	return func(d *Dispatcher) {
		d.store = store
	}
}

// WithModelName labels audit rows with the model that produced the reply.
func WithModelName(name string) Option {
	return func(d *Dispatcher) {
		d.modelName = name
	}
}

// New builds a dispatcher with the rule set for prefix.
func New(completer ai.Completer, replier Replier, prefix string, logger *logging.Logger, opts ...Option) (*Dispatcher, error) {
	return newDispatcher(completer, replier, Rules(prefix), logger, opts...)
}

func newDispatcher(completer ai.Completer, replier Replier, rules map[types.Kind]Rule, logger *logging.Logger, opts ...Option) (*Dispatcher, error) {
	if completer == nil {
		return nil, errors.New("dispatcher needs a completer")
	}
	if replier == nil {
		return nil, errors.New("dispatcher needs a replier")
	}
	for _, kind := range types.AllKinds() {
		if rules[kind] == nil {
			return nil, fmt.Errorf("no prompt rule for event kind %s", kind)
		}
	}
	if logger == nil {
		logger = logging.Default()
	}

	d := &Dispatcher{
		completer: completer,
		replier:   replier,
		rules:     rules,
		logger:    logger.WithComponent("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name identifies the dispatcher as a queue consumer.
func (d *Dispatcher) Name() string {
	return "dispatcher"
}

// ProcessEvent implements messagequeue.Consumer.
func (d *Dispatcher) ProcessEvent(ctx context.Context, ev types.Event) {
	d.Handle(ctx, ev)
}

// Handle renders the prompt for ev, completes it and sends the reply. Errors
// are logged and end handling of this event only.
func (d *Dispatcher) Handle(ctx context.Context, ev types.Event) {
	kind := ev.Kind()
	eventID, recorded := d.recordEvent(ctx, ev)
	logger := d.logger.WithFields(map[string]interface{}{
		"kind":    kind,
		"eventID": eventID.String(),
	})

	prompt, ok := d.rules[kind](ev)
	if !ok {
		metrics.EventReplies.WithLabelValues(string(kind), "ignored").Inc()
		logger.Debug("event does not need a reply")
		return
	}

	reply, err := d.completer.Complete(ctx, prompt)
	if err != nil {
		metrics.EventReplies.WithLabelValues(string(kind), database.OutcomeInferenceError).Inc()
		var ie *ai.InferenceError
		if errors.As(err, &ie) {
			logger.Error("model failed to reply, dropping event", "model", ie.Model, "error", err.Error())
		} else {
			logger.Error("failed to generate reply, dropping event", "error", err.Error())
		}
		if recorded {
			d.recordResponse(ctx, eventID, prompt, "", database.OutcomeInferenceError)
		}
		return
	}

	outcome := database.OutcomeReplied
	if !d.replier.Send(ctx, reply) {
		outcome = database.OutcomeNotSent
	}
	metrics.EventReplies.WithLabelValues(string(kind), outcome).Inc()
	logger.Debug("event handled", "outcome", outcome, "replyLength", len(reply))
	if recorded {
		d.recordResponse(ctx, eventID, prompt, reply, outcome)
	}
}

// recordEvent stores ev when an audit log is configured. Without one, or when
// the write fails, a fresh id is returned so log lines can still be correlated.
func (d *Dispatcher) recordEvent(ctx context.Context, ev types.Event) (uuid.UUID, bool) {
	if d.store == nil {
		return uuid.New(), false
	}
	id, err := d.store.InsertEvent(ctx, ev)
	if err != nil {
		d.logger.Warn("failed to record event", "kind", ev.Kind(), "error", err.Error())
		return uuid.New(), false
	}
	return id, true
}

func (d *Dispatcher) recordResponse(ctx context.Context, eventID uuid.UUID, prompt, reply, outcome string) {
	err := d.store.InsertResponse(ctx, database.BotResponse{
		EventID:   eventID,
		ModelName: d.modelName,
		Prompt:    prompt,
		Response:  reply,
		Outcome:   outcome,
	})
	if err != nil {
		d.logger.Warn("failed to record response", "eventID", eventID.String(), "error", err.Error())
	}
}
