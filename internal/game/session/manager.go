package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// GameLookup resolves game sessions by URN.
type GameLookup interface {
	Get(ctx context.Context, gameSessionURN string) (GameSession, error)
}

// Manager owns the player-session lifecycle. It holds no per-session state of
// its own; the store is the source of truth, so all methods are safe for
// concurrent use.
type Manager struct {
	store      PlayerSessionStore
	games      GameLookup
	names      *NameCounter
	notifier   change.Notifier
	logs       audit.Appender
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewManager creates a player session Manager.
//
// Precondition: store, games, names, notifier, logs, and logger must be non-nil.
// Postcondition: staleAfter <= 0 selects DefaultStaleAfter.
func NewManager(
	store PlayerSessionStore,
	games GameLookup,
	names *NameCounter,
	notifier change.Notifier,
	logs audit.Appender,
	staleAfter time.Duration,
	logger *zap.Logger,
) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{
		store:      store,
		games:      games,
		names:      names,
		notifier:   notifier,
		logs:       logs,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Names returns the anonymous-name counter shared with other components.
func (m *Manager) Names() *NameCounter { return m.names }

// StaleAfter returns the configured staleness threshold.
func (m *Manager) StaleAfter() time.Duration { return m.staleAfter }

// FindLatest returns the most recently created PlayerSession for the pair.
//
// Precondition: gameSessionURN must be a valid URN; uid must be non-empty.
// Postcondition: Returns (session, true, nil) when found, (zero, false, nil)
// when the pair has no session, or a ValidationError / StorageError.
func (m *Manager) FindLatest(ctx context.Context, gameSessionURN, uid string) (PlayerSession, bool, error) {
	if err := validatePair(gameSessionURN, uid); err != nil {
		return PlayerSession{}, false, err
	}
	ps, err := m.store.LatestPlayerSession(ctx, gameSessionURN, uid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return PlayerSession{}, false, nil
		}
		return PlayerSession{}, false, fmt.Errorf("finding latest player session: %w", err)
	}
	return ps, true, nil
}

// Create allocates and persists a new PlayerSession. An empty name is
// replaced with the next anonymous name.
//
// Precondition: gameSessionURN must be a valid URN; uid must be non-empty.
// Postcondition: createdAt == lastActivityAt == now. Exactly one store write.
func (m *Manager) Create(ctx context.Context, gameSessionURN, uid, name string) (PlayerSession, error) {
	if err := validatePair(gameSessionURN, uid); err != nil {
		return PlayerSession{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = m.names.Anonymous()
	}
	now := m.now().UTC()
	ps := PlayerSession{
		ID:             uuid.NewString(),
		URN:            urn.New(urn.NamespacePlayerSession),
		Name:           name,
		UID:            uid,
		GameSessionURN: gameSessionURN,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := m.store.CreatePlayerSession(ctx, ps); err != nil {
		return PlayerSession{}, fmt.Errorf("creating player session: %w", err)
	}
	return ps, nil
}

// Join creates a PlayerSession for uid in an existing GameSession, appends a
// join Log entry, and publishes the change.
//
// Postcondition: Returns a NotFoundError when the game session does not exist.
// A Log or publish failure is logged and does not fail the join.
func (m *Manager) Join(ctx context.Context, gameSessionURN, uid, name string) (PlayerSession, error) {
	if err := validatePair(gameSessionURN, uid); err != nil {
		return PlayerSession{}, err
	}
	if _, err := m.games.Get(ctx, gameSessionURN); err != nil {
		return PlayerSession{}, err
	}
	ps, err := m.Create(ctx, gameSessionURN, uid, name)
	if err != nil {
		return PlayerSession{}, err
	}
	m.logger.Info("player joined",
		zap.String("game_session_urn", ps.GameSessionURN),
		zap.String("player_session_urn", ps.URN),
		zap.String("name", ps.Name),
	)
	if _, err := m.logs.Append(ctx, audit.Entry{
		GameSessionURN:   ps.GameSessionURN,
		PlayerSessionURN: ps.URN,
		Kind:             audit.KindJoin,
		Message:          ps.Name + " joined",
	}); err != nil {
		m.logger.Warn("appending join log",
			zap.String("player_session_urn", ps.URN),
			zap.Error(err),
		)
	}
	m.NotifyJoined(ctx, ps)
	return ps, nil
}

// NotifyJoined publishes the joined change for a newly created ps.
func (m *Manager) NotifyJoined(ctx context.Context, ps PlayerSession) {
	m.notify(ctx, change.PlayerSessionJoined, ps)
}

// Get returns the PlayerSession with store id id.
func (m *Manager) Get(ctx context.Context, id string) (PlayerSession, error) {
	if id == "" {
		return PlayerSession{}, apperr.Validation("playerSessionId is required")
	}
	ps, err := m.store.GetPlayerSession(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return PlayerSession{}, apperr.NotFound("player session %q", id)
		}
		return PlayerSession{}, fmt.Errorf("getting player session: %w", err)
	}
	return ps, nil
}

// GetByURN returns the PlayerSession identified by playerSessionURN.
func (m *Manager) GetByURN(ctx context.Context, playerSessionURN string) (PlayerSession, error) {
	if !urn.Valid(playerSessionURN) {
		return PlayerSession{}, apperr.Validation("playerSessionUrn %q is required to be a valid urn", playerSessionURN)
	}
	ps, err := m.store.GetPlayerSessionByURN(ctx, playerSessionURN)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return PlayerSession{}, apperr.NotFound("player session %q", playerSessionURN)
		}
		return PlayerSession{}, fmt.Errorf("getting player session: %w", err)
	}
	return ps, nil
}

// ListForUser returns uid's player sessions newest first.
func (m *Manager) ListForUser(ctx context.Context, uid string) ([]PlayerSession, error) {
	if uid == "" {
		return nil, apperr.Validation("uid is required")
	}
	list, err := m.store.ListPlayerSessionsByUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("listing player sessions: %w", err)
	}
	return list, nil
}

// Rename updates the display name of the PlayerSession with store id id.
//
// Precondition: name must be non-empty after trimming.
// Postcondition: A ValidationError is returned before any store access; a
// NotFoundError when id does not resolve. One store read plus one store write.
func (m *Manager) Rename(ctx context.Context, id, name string) (PlayerSession, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return PlayerSession{}, err
	}
	ps, err := m.Get(ctx, id)
	if err != nil {
		return PlayerSession{}, err
	}
	if err := m.store.UpdatePlayerSessionName(ctx, ps.ID, name); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return PlayerSession{}, apperr.NotFound("player session %q", id)
		}
		return PlayerSession{}, fmt.Errorf("renaming player session: %w", err)
	}
	ps.Name = name
	m.notify(ctx, change.PlayerSessionRenamed, ps)
	return ps, nil
}

// Heartbeat bumps lastActivityAt to now. A stale session is revived.
//
// Postcondition: lastActivityAt never moves backwards. Returns a NotFoundError
// when id does not resolve.
func (m *Manager) Heartbeat(ctx context.Context, id string) (HeartbeatResult, error) {
	ps, err := m.Get(ctx, id)
	if err != nil {
		return HeartbeatResult{}, err
	}
	now := m.now().UTC()
	wasStale := IsStale(ps, now, m.staleAfter)

	updated, err := m.store.TouchPlayerSession(ctx, ps.ID, now)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return HeartbeatResult{}, apperr.NotFound("player session %q", id)
		}
		return HeartbeatResult{}, fmt.Errorf("touching player session: %w", err)
	}
	if wasStale {
		m.logger.Info("player session revived",
			zap.String("player_session_urn", updated.URN),
			zap.Duration("idle", now.Sub(ps.LastActivityAt)),
		)
	}
	m.notify(ctx, change.PlayerSessionActive, updated)
	return HeartbeatResult{Session: updated, WasStale: wasStale}, nil
}

// View annotates ps with its presence at the current time.
func (m *Manager) View(ps PlayerSession) PlayerSessionView {
	return PlayerSessionView{PlayerSession: ps, Stale: IsStale(ps, m.now(), m.staleAfter)}
}

// Views annotates every session in list.
func (m *Manager) Views(list []PlayerSession) []PlayerSessionView {
	now := m.now()
	out := make([]PlayerSessionView, 0, len(list))
	for _, ps := range list {
		out = append(out, PlayerSessionView{PlayerSession: ps, Stale: IsStale(ps, now, m.staleAfter)})
	}
	return out
}

func (m *Manager) notify(ctx context.Context, kind change.Kind, ps PlayerSession) {
	if err := m.notifier.Notify(ctx, kind, ps.GameSessionURN, ps.Public()); err != nil {
		m.logger.Warn("publishing player session change",
			zap.String("kind", string(kind)),
			zap.String("player_session_urn", ps.URN),
			zap.Error(err),
		)
	}
}

func validatePair(gameSessionURN, uid string) error {
	if !urn.Valid(gameSessionURN) {
		return apperr.Validation("gameSessionUrn %q is required to be a valid urn", gameSessionURN)
	}
	if uid == "" {
		return apperr.Validation("uid is required")
	}
	return nil
}
