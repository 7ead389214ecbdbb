package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// GameSessionManager owns the active game session concept.
// All methods are safe for concurrent use.
type GameSessionManager struct {
	store    GameSessionStore
	notifier change.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewGameSessionManager creates a GameSessionManager.
//
// Precondition: store, notifier, and logger must be non-nil.
func NewGameSessionManager(store GameSessionStore, notifier change.Notifier, logger *zap.Logger) *GameSessionManager {
	return &GameSessionManager{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (m *GameSessionManager) SetClock(now func() time.Time) { m.now = now }

// Start creates a new active GameSession for the optional game definition gameURN.
//
// Postcondition: Returns the stored session, a ValidationError for a malformed
// gameURN, or a StorageError.
func (m *GameSessionManager) Start(ctx context.Context, gameURN string) (GameSession, error) {
	if gameURN != "" && !urn.Valid(gameURN) {
		return GameSession{}, apperr.Validation("game urn %q is malformed", gameURN)
	}
	g := GameSession{
		URN:       urn.New(urn.NamespaceGameSession),
		GameURN:   gameURN,
		Status:    StatusActive,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.CreateGameSession(ctx, g); err != nil {
		return GameSession{}, fmt.Errorf("creating game session: %w", err)
	}
	m.logger.Info("game session started",
		zap.String("game_session_urn", g.URN),
		zap.String("game_urn", gameURN),
	)
	m.notify(ctx, change.GameSessionStarted, g)
	return g, nil
}

// Get returns the GameSession identified by gameSessionURN.
//
// Postcondition: Returns a ValidationError for a malformed URN or a NotFoundError
// when no session exists.
func (m *GameSessionManager) Get(ctx context.Context, gameSessionURN string) (GameSession, error) {
	if !urn.Valid(gameSessionURN) {
		return GameSession{}, apperr.Validation("gameSessionUrn %q is required to be a valid urn", gameSessionURN)
	}
	g, err := m.store.GetGameSession(ctx, gameSessionURN)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return GameSession{}, apperr.NotFound("game session %q", gameSessionURN)
		}
		return GameSession{}, fmt.Errorf("getting game session: %w", err)
	}
	return g, nil
}

// Active returns the most recently started GameSession that has not ended.
//
// Postcondition: Returns a NotFoundError when no session is active.
func (m *GameSessionManager) Active(ctx context.Context) (GameSession, error) {
	g, err := m.store.LatestGameSessionByStatus(ctx, StatusActive)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return GameSession{}, apperr.NotFound("no active game session")
		}
		return GameSession{}, fmt.Errorf("resolving active game session: %w", err)
	}
	return g, nil
}

// End marks the GameSession ended. Ending an ended session is a no-op.
func (m *GameSessionManager) End(ctx context.Context, gameSessionURN string) (GameSession, error) {
	g, err := m.Get(ctx, gameSessionURN)
	if err != nil {
		return GameSession{}, err
	}
	if g.Status == StatusEnded {
		return g, nil
	}
	if err := m.store.UpdateGameSessionStatus(ctx, g.URN, StatusEnded); err != nil {
		return GameSession{}, fmt.Errorf("ending game session: %w", err)
	}
	g.Status = StatusEnded
	m.logger.Info("game session ended", zap.String("game_session_urn", g.URN))
	m.notify(ctx, change.GameSessionEnded, g)
	return g, nil
}

func (m *GameSessionManager) notify(ctx context.Context, kind change.Kind, g GameSession) {
	if err := m.notifier.Notify(ctx, kind, g.URN, g); err != nil {
		m.logger.Warn("publishing game session change",
			zap.String("kind", string(kind)),
			zap.String("game_session_urn", g.URN),
			zap.Error(err),
		)
	}
}
