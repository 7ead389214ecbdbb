// Package change defines the change notifications published after store
// writes and consumed by the broadcast coordinator.
package change

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cory-johannsen/tepache/internal/pubsub"
)

// Topic carries every change of every game session. A single stream keeps
// one game's changes in write order regardless of their Kind.
const Topic = "changes"

// Topics returns every change stream the coordinator subscribes to.
func Topics() []string {
	return []string{Topic}
}

// Kind names the event carried by a Change.
type Kind string

const (
	GameSessionStarted   Kind = "game_session.started"
	GameSessionEnded     Kind = "game_session.ended"
	PlayerSessionJoined  Kind = "player_session.joined"
	PlayerSessionRenamed Kind = "player_session.renamed"
	PlayerSessionActive  Kind = "player_session.active"
	CaptureRecorded      Kind = "capture.recorded"
)

// Change is the envelope published on a topic and forwarded verbatim to
// connected clients of GameSessionURN.
type Change struct {
	Kind           Kind            `json:"kind"`
	GameSessionURN string          `json:"gameSessionUrn"`
	At             time.Time       `json:"at"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Decode parses a published payload.
func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decoding change: %w", err)
	}
	if c.GameSessionURN == "" {
		return Change{}, fmt.Errorf("decoding change: missing gameSessionUrn")
	}
	return c, nil
}

// Notifier publishes changes. Implementations must preserve call order.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, gameSessionURN string, data any) error
}

// Publisher is a Notifier encoding changes as JSON onto a pubsub.Broker.
type Publisher struct {
	broker pubsub.Broker
	now    func() time.Time
}

// NewPublisher creates a Publisher on broker.
//
// Precondition: broker must be non-nil.
func NewPublisher(broker pubsub.Broker) *Publisher {
	return &Publisher{broker: broker, now: time.Now}
}

// Notify encodes data inside a Change envelope and publishes it on Topic.
func (p *Publisher) Notify(ctx context.Context, kind Kind, gameSessionURN string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s data: %w", kind, err)
	}
	payload, err := json.Marshal(Change{
		Kind:           kind,
		GameSessionURN: gameSessionURN,
		At:             p.now().UTC(),
		Data:           raw,
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", kind, err)
	}
	return p.broker.Publish(ctx, Topic, payload)
}

// Discard is a Notifier that drops every change.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Kind, string, any) error { return nil }
