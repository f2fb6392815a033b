package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Soypete/twitch-event-bot/types"
	"github.com/google/uuid"
)

// Response outcomes stored with every reply attempt.
const (
	OutcomeReplied        = "replied"
	OutcomeInferenceError = "inference_error"
	OutcomeNotSent        = "not_sent"
)

// EventWriter records events and the replies generated for them.
type EventWriter interface {
	InsertEvent(ctx context.Context, ev types.Event) (uuid.UUID, error)
	InsertResponse(ctx context.Context, resp BotResponse) error
}

// TwitchEvent is one row of the twitch_event table.
type TwitchEvent struct {
	UUID      uuid.UUID `db:"uuid"`
	Kind      string    `db:"kind"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// BotResponse is one reply attempt for an event.
type BotResponse struct {
	EventID   uuid.UUID `db:"event_id"`
	ModelName string    `db:"model_name"`
	Prompt    string    `db:"prompt"`
	Response  string    `db:"response"`
	Outcome   string    `db:"outcome"`
}

// InsertEvent stores ev and returns its id.
func (p *Postgres) InsertEvent(ctx context.Context, ev types.Event) (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error generating UUID: %w", err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error encoding %s event: %w", ev.Kind(), err)
	}

	row := TwitchEvent{
		UUID:      id,
		Kind:      string(ev.Kind()),
		Payload:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	query := "INSERT INTO twitch_event (uuid, kind, payload, created_at) VALUES (:uuid, :kind, :payload, :created_at)"
	if _, err := p.connections.NamedExecContext(ctx, query, row); err != nil {
		p.logger.Error("error inserting event", "error", err.Error(), "kind", ev.Kind())
		return uuid.UUID{}, fmt.Errorf("error inserting event: %w", err)
	}

	p.logger.Debug("event inserted", "eventID", id, "kind", ev.Kind())
	return id, nil
}

// InsertResponse stores one reply attempt.
func (p *Postgres) InsertResponse(ctx context.Context, resp BotResponse) error {
	query := "INSERT INTO bot_response (event_id, model_name, prompt, response, outcome) VALUES (:event_id, :model_name, :prompt, :response, :outcome)"
	if _, err := p.connections.NamedExecContext(ctx, query, resp); err != nil {
		p.logger.Error("error inserting response", "error", err.Error(), "eventID", resp.EventID)
		return fmt.Errorf("error inserting response: %w", err)
	}
	return nil
}

// CountEventsByKind returns how many events of each kind were recorded since t.
func (p *Postgres) CountEventsByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	query := "SELECT kind, count(*) AS total FROM twitch_event WHERE created_at >= $1 GROUP BY kind"
	rows, err := p.connections.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var total int
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("error scanning event counts: %w", err)
		}
		counts[kind] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error scanning event counts: %w", err)
	}
	return counts, nil
}
