package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/capture"
)

// CreateCapture implements capture.Store.
func (s *Store) CreateCapture(ctx context.Context, c capture.Capture) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO session_captures
		   (urn, game_session_urn, player_session_urn, payload, channel, external_id, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.URN, c.GameSessionURN, c.PlayerSessionURN, c.Payload, string(c.Channel), c.ExternalID, c.ReceivedAt,
	)
	if err != nil {
		return apperr.Storage("create capture", err)
	}
	return nil
}

// ListCaptures implements capture.Store.
func (s *Store) ListCaptures(ctx context.Context, gameSessionURN string) ([]capture.Capture, error) {
	rows, err := s.db.Query(ctx,
		`SELECT urn, game_session_urn, player_session_urn, payload, channel, external_id, received_at
		 FROM session_captures
		 WHERE game_session_urn = $1
		 ORDER BY received_at, seq`, gameSessionURN)
	if err != nil {
		return nil, apperr.Storage("list captures", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (capture.Capture, error) {
		var c capture.Capture
		var ch string
		err := row.Scan(&c.URN, &c.GameSessionURN, &c.PlayerSessionURN, &c.Payload, &ch, &c.ExternalID, &c.ReceivedAt)
		c.Channel = capture.Channel(ch)
		return c, err
	})
	if err != nil {
		return nil, apperr.Storage("list captures", err)
	}
	return list, nil
}
