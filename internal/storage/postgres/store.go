package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/capture"
	"github.com/cory-johannsen/tepache/internal/game/session"
)

// Store implements the game session, player session, capture, and log stores
// on one pool. Records are validated before they are written.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the schema migrated.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// notFoundOr maps pgx.ErrNoRows to a NotFoundError built from format and
// args, and every other failure to a StorageError for op.
func notFoundOr(err error, op, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Storage(op, err)
}

// requireRow maps a command that touched no row to a NotFoundError.
func requireRow(tag pgconn.CommandTag, format string, args ...any) error {
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(format, args...)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ session.GameSessionStore   = (*Store)(nil)
	_ session.PlayerSessionStore = (*Store)(nil)
	_ capture.Store              = (*Store)(nil)
	_ audit.Store                = (*Store)(nil)
)
