package postgres

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/session"
)

const gameSessionColumns = `urn, game_urn, status, created_at`

func scanGameSession(row interface{ Scan(...any) error }) (session.GameSession, error) {
	var g session.GameSession
	var status string
	if err := row.Scan(&g.URN, &g.GameURN, &status, &g.CreatedAt); err != nil {
		return session.GameSession{}, err
	}
	g.Status = session.GameStatus(status)
	return g, nil
}

// CreateGameSession implements session.GameSessionStore.
func (s *Store) CreateGameSession(ctx context.Context, g session.GameSession) error {
	if err := g.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO game_sessions (`+gameSessionColumns+`) VALUES ($1, $2, $3, $4)`,
		g.URN, g.GameURN, string(g.Status), g.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return apperr.Storage("create game session", fmt.Errorf("game session %q already exists", g.URN))
		}
		return apperr.Storage("create game session", err)
	}
	return nil
}

// GetGameSession implements session.GameSessionStore.
func (s *Store) GetGameSession(ctx context.Context, urn string) (session.GameSession, error) {
	g, err := scanGameSession(s.db.QueryRow(ctx,
		`SELECT `+gameSessionColumns+` FROM game_sessions WHERE urn = $1`, urn))
	if err != nil {
		return session.GameSession{}, notFoundOr(err, "get game session", "game session %q", urn)
	}
	return g, nil
}

// LatestGameSessionByStatus implements session.GameSessionStore.
func (s *Store) LatestGameSessionByStatus(ctx context.Context, status session.GameStatus) (session.GameSession, error) {
	g, err := scanGameSession(s.db.QueryRow(ctx,
		`SELECT `+gameSessionColumns+` FROM game_sessions
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, string(status)))
	if err != nil {
		return session.GameSession{}, notFoundOr(err, "latest game session", "game session with status %q", status)
	}
	return g, nil
}

// UpdateGameSessionStatus implements session.GameSessionStore.
func (s *Store) UpdateGameSessionStatus(ctx context.Context, urn string, status session.GameStatus) error {
	if !status.Valid() {
		return apperr.Validation("game session status %q is unknown", status)
	}
	tag, err := s.db.Exec(ctx, `UPDATE game_sessions SET status = $2 WHERE urn = $1`, urn, string(status))
	if err != nil {
		return apperr.Storage("update game session", err)
	}
	return requireRow(tag, "game session %q", urn)
}
