package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/session"
)

const playerSessionColumns = `id, urn, name, uid, game_session_urn, created_at, last_activity_at`

func scanPlayerSession(row interface{ Scan(...any) error }) (session.PlayerSession, error) {
	var p session.PlayerSession
	err := row.Scan(&p.ID, &p.URN, &p.Name, &p.UID, &p.GameSessionURN, &p.CreatedAt, &p.LastActivityAt)
	return p, err
}

// CreatePlayerSession implements session.PlayerSessionStore.
func (s *Store) CreatePlayerSession(ctx context.Context, p session.PlayerSession) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO player_sessions (`+playerSessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.URN, p.Name, p.UID, p.GameSessionURN, p.CreatedAt, p.LastActivityAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return apperr.Storage("create player session", fmt.Errorf("player session %q already exists", p.URN))
		}
		return apperr.Storage("create player session", err)
	}
	return nil
}

// GetPlayerSession implements session.PlayerSessionStore.
func (s *Store) GetPlayerSession(ctx context.Context, id string) (session.PlayerSession, error) {
	p, err := scanPlayerSession(s.db.QueryRow(ctx,
		`SELECT `+playerSessionColumns+` FROM player_sessions WHERE id = $1`, id))
	if err != nil {
		return session.PlayerSession{}, notFoundOr(err, "get player session", "player session %q", id)
	}
	return p, nil
}

// GetPlayerSessionByURN implements session.PlayerSessionStore.
func (s *Store) GetPlayerSessionByURN(ctx context.Context, urn string) (session.PlayerSession, error) {
	p, err := scanPlayerSession(s.db.QueryRow(ctx,
		`SELECT `+playerSessionColumns+` FROM player_sessions WHERE urn = $1`, urn))
	if err != nil {
		return session.PlayerSession{}, notFoundOr(err, "get player session", "player session %q", urn)
	}
	return p, nil
}

// LatestPlayerSession implements session.PlayerSessionStore. Insertion order
// breaks createdAt ties.
func (s *Store) LatestPlayerSession(ctx context.Context, gameSessionURN, uid string) (session.PlayerSession, error) {
	p, err := scanPlayerSession(s.db.QueryRow(ctx,
		`SELECT `+playerSessionColumns+` FROM player_sessions
		 WHERE game_session_urn = $1 AND uid = $2
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`, gameSessionURN, uid))
	if err != nil {
		return session.PlayerSession{}, notFoundOr(err, "latest player session", "player session for %q in %q", uid, gameSessionURN)
	}
	return p, nil
}

// ListPlayerSessionsByUser implements session.PlayerSessionStore.
func (s *Store) ListPlayerSessionsByUser(ctx context.Context, uid string) ([]session.PlayerSession, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+playerSessionColumns+` FROM player_sessions
		 WHERE uid = $1
		 ORDER BY created_at DESC, seq DESC`, uid)
	if err != nil {
		return nil, apperr.Storage("list player sessions", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.PlayerSession, error) {
		return scanPlayerSession(row)
	})
	if err != nil {
		return nil, apperr.Storage("list player sessions", err)
	}
	return list, nil
}

// UpdatePlayerSessionName implements session.PlayerSessionStore.
func (s *Store) UpdatePlayerSessionName(ctx context.Context, id, name string) error {
	tag, err := s.db.Exec(ctx, `UPDATE player_sessions SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return apperr.Storage("update player session", err)
	}
	return requireRow(tag, "player session %q", id)
}

// TouchPlayerSession implements session.PlayerSessionStore. GREATEST keeps
// last_activity_at from moving backwards when beats arrive out of order.
func (s *Store) TouchPlayerSession(ctx context.Context, id string, at time.Time) (session.PlayerSession, error) {
	p, err := scanPlayerSession(s.db.QueryRow(ctx,
		`UPDATE player_sessions
		 SET last_activity_at = GREATEST(last_activity_at, $2)
		 WHERE id = $1
		 RETURNING `+playerSessionColumns, id, at))
	if err != nil {
		return session.PlayerSession{}, notFoundOr(err, "touch player session", "player session %q", id)
	}
	return p, nil
}
