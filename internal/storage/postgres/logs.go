package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
)

// AppendLog implements audit.Store.
func (s *Store) AppendLog(ctx context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding log data: %w", err)
	}
	if e.Data == nil {
		data = []byte("{}")
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO session_logs (urn, game_session_urn, player_session_urn, kind, message, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.URN, e.GameSessionURN, e.PlayerSessionURN, string(e.Kind), e.Message, data, e.CreatedAt,
	)
	if err != nil {
		return apperr.Storage("append log", err)
	}
	return nil
}

// ListLogs implements audit.Store.
func (s *Store) ListLogs(ctx context.Context, gameSessionURN string) ([]audit.Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT urn, game_session_urn, player_session_urn, kind, message, data, created_at
		 FROM session_logs
		 WHERE game_session_urn = $1
		 ORDER BY created_at, seq`, gameSessionURN)
	if err != nil {
		return nil, apperr.Storage("list logs", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Entry, error) {
		var e audit.Entry
		var kind string
		var data []byte
		if err := row.Scan(&e.URN, &e.GameSessionURN, &e.PlayerSessionURN, &kind, &e.Message, &data, &e.CreatedAt); err != nil {
			return audit.Entry{}, err
		}
		e.Kind = audit.Kind(kind)
		if len(data) > 0 && string(data) != "{}" {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return audit.Entry{}, fmt.Errorf("decoding log data: %w", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, apperr.Storage("list logs", err)
	}
	return list, nil
}
