package session

import (
	"context"
	"time"
)

// GameSessionStore persists game sessions.
//
// Missing records are reported as apperr.ErrNotFound; other failures wrap apperr.ErrStorage.
type GameSessionStore interface {
	CreateGameSession(ctx context.Context, g GameSession) error
	GetGameSession(ctx context.Context, urn string) (GameSession, error)
	// LatestGameSessionByStatus returns the most recently created session in status.
	LatestGameSessionByStatus(ctx context.Context, status GameStatus) (GameSession, error)
	UpdateGameSessionStatus(ctx context.Context, urn string, status GameStatus) error
}

// PlayerSessionStore persists player sessions.
//
// Missing records are reported as apperr.ErrNotFound; other failures wrap apperr.ErrStorage.
type PlayerSessionStore interface {
	CreatePlayerSession(ctx context.Context, p PlayerSession) error
	GetPlayerSession(ctx context.Context, id string) (PlayerSession, error)
	GetPlayerSessionByURN(ctx context.Context, urn string) (PlayerSession, error)
	// LatestPlayerSession returns the most recently created session for the
	// (gameSessionURN, uid) pair.
	LatestPlayerSession(ctx context.Context, gameSessionURN, uid string) (PlayerSession, error)
	// ListPlayerSessionsByUser returns uid's sessions, newest first.
	ListPlayerSessionsByUser(ctx context.Context, uid string) ([]PlayerSession, error)
	UpdatePlayerSessionName(ctx context.Context, id, name string) error
	// TouchPlayerSession moves lastActivityAt forward to at and returns the
	// updated record. An older at never moves the timestamp backwards.
	TouchPlayerSession(ctx context.Context, id string, at time.Time) (PlayerSession, error)
}
