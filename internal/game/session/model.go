// Package session owns the game-session and player-session lifecycles:
// creation, rename, heartbeat, lookup, and the derived presence state.
package session

import (
	"strings"
	"time"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// GameStatus is the lifecycle state of a GameSession.
type GameStatus string

const (
	StatusActive GameStatus = "active"
	StatusEnded  GameStatus = "ended"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	return s == StatusActive || s == StatusEnded
}

// GameSession groups the player sessions and captures of one game instance.
type GameSession struct {
	URN string `json:"urn"`
	// GameURN references the game definition being played. Optional.
	GameURN   string     `json:"gameUrn,omitempty"`
	Status    GameStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Validate checks the record before it reaches a store.
func (g GameSession) Validate() error {
	if !urn.Valid(g.URN) {
		return apperr.Validation("game session urn %q is malformed", g.URN)
	}
	if g.GameURN != "" && !urn.Valid(g.GameURN) {
		return apperr.Validation("game urn %q is malformed", g.GameURN)
	}
	if !g.Status.Valid() {
		return apperr.Validation("game session status %q is unknown", g.Status)
	}
	if g.CreatedAt.IsZero() {
		return apperr.Validation("game session createdAt is required")
	}
	return nil
}

// PublicPlayerSession is the projection of a PlayerSession broadcast to every
// client of its game. It omits the owner's uid.
type PublicPlayerSession struct {
	ID             string    `json:"id"`
	URN            string    `json:"urn"`
	Name           string    `json:"name"`
	GameSessionURN string    `json:"gameSessionUrn"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Public returns the broadcast projection of p.
func (p PlayerSession) Public() PublicPlayerSession {
	return PublicPlayerSession{
		ID:             p.ID,
		URN:            p.URN,
		Name:           p.Name,
		GameSessionURN: p.GameSessionURN,
		CreatedAt:      p.CreatedAt,
		LastActivityAt: p.LastActivityAt,
	}
}

// NormalizeName trims name and rejects it when nothing remains.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	return name, nil
}

// PlayerSession is one player's participation record within a GameSession.
type PlayerSession struct {
	// ID is the store document id.
	ID             string    `json:"id"`
	URN            string    `json:"urn"`
	Name           string    `json:"name"`
	UID            string    `json:"uid"`
	GameSessionURN string    `json:"gameSessionUrn"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Validate checks the record before it reaches a store.
func (p PlayerSession) Validate() error {
	switch {
	case p.ID == "":
		return apperr.Validation("player session id is required")
	case !urn.Valid(p.URN):
		return apperr.Validation("player session urn %q is malformed", p.URN)
	case !urn.Valid(p.GameSessionURN):
		return apperr.Validation("game session urn %q is malformed", p.GameSessionURN)
	case p.UID == "":
		return apperr.Validation("uid is required")
	case strings.TrimSpace(p.Name) == "":
		return apperr.Validation("name is required")
	case p.CreatedAt.IsZero() || p.LastActivityAt.IsZero():
		return apperr.Validation("player session timestamps are required")
	}
	return nil
}
