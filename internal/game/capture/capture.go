// Package capture ingests player captures (answers, button presses) from the
// direct socket channel and the SMS gateway, resolving each to a game session
// and player session before recording it.
package capture

import (
	"context"
	"time"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// Channel is the transport a capture arrived on.
type Channel string

const (
	ChannelDirect Channel = "direct"
	ChannelSMS    Channel = "sms"
)

// Capture is one recorded input. Captures are immutable once stored.
type Capture struct {
	URN              string  `json:"urn"`
	GameSessionURN   string  `json:"gameSessionUrn"`
	PlayerSessionURN string  `json:"playerSessionUrn"`
	Payload          string  `json:"payload"`
	Channel          Channel `json:"channel"`
	// ExternalID is the gateway's message id for SMS captures. It is recorded
	// but not used for deduplication.
	ExternalID string    `json:"externalId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Validate checks the record before it reaches a store.
func (c Capture) Validate() error {
	switch {
	case !urn.Valid(c.URN):
		return apperr.Validation("capture urn %q is malformed", c.URN)
	case !urn.Valid(c.GameSessionURN):
		return apperr.Validation("capture game session urn %q is malformed", c.GameSessionURN)
	case !urn.Valid(c.PlayerSessionURN):
		return apperr.Validation("capture player session urn %q is malformed", c.PlayerSessionURN)
	case c.Payload == "":
		return apperr.Validation("capture payload is required")
	case c.Channel != ChannelDirect && c.Channel != ChannelSMS:
		return apperr.Validation("capture channel %q is unknown", c.Channel)
	case c.ReceivedAt.IsZero():
		return apperr.Validation("capture receivedAt is required")
	}
	return nil
}

// Store persists captures.
type Store interface {
	CreateCapture(ctx context.Context, c Capture) error
	// ListCaptures returns the captures of gameSessionURN ordered by receipt time.
	ListCaptures(ctx context.Context, gameSessionURN string) ([]Capture, error)
}
