// Package audit records the append-only Log of facade-observed events
// (joins, captures, disconnects) keyed by GameSession.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// Kind names the event an Entry records.
type Kind string

const (
	KindJoin       Kind = "join"
	KindCapture    Kind = "capture"
	KindDisconnect Kind = "disconnect"
)

// Entry is one Log record. Entries are never updated.
type Entry struct {
	URN              string            `json:"urn"`
	GameSessionURN   string            `json:"gameSessionUrn"`
	PlayerSessionURN string            `json:"playerSessionUrn,omitempty"`
	Kind             Kind              `json:"kind"`
	Message          string            `json:"message,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// Validate checks the entry before it reaches a store.
func (e Entry) Validate() error {
	if !urn.Valid(e.URN) {
		return apperr.Validation("log urn %q is malformed", e.URN)
	}
	if !urn.Valid(e.GameSessionURN) {
		return apperr.Validation("log game session urn %q is malformed", e.GameSessionURN)
	}
	if e.Kind == "" {
		return apperr.Validation("log kind is required")
	}
	if e.CreatedAt.IsZero() {
		return apperr.Validation("log createdAt is required")
	}
	return nil
}

// Store persists Log entries.
type Store interface {
	AppendLog(ctx context.Context, e Entry) error
	// ListLogs returns the entries of gameSessionURN ordered by creation time.
	ListLogs(ctx context.Context, gameSessionURN string) ([]Entry, error)
}

// Appender appends Log entries.
type Appender interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Writer is the Appender used by the session components. It persists each
// entry and, when a Producer is configured, mirrors it best-effort.
type Writer struct {
	store    Store
	producer Producer
	logger   *zap.Logger
	now      func() time.Time
}

// NewWriter creates a Writer.
//
// Precondition: store and logger must be non-nil. producer may be nil.
func NewWriter(store Store, producer Producer, logger *zap.Logger) *Writer {
	return &Writer{store: store, producer: producer, logger: logger, now: time.Now}
}

// Append allocates the entry's URN and timestamp, persists it, and mirrors it.
//
// Postcondition: Returns the stored entry, or a validation or storage error.
// Mirror failures are logged and never returned.
func (w *Writer) Append(ctx context.Context, e Entry) (Entry, error) {
	e.URN = urn.New(urn.NamespaceLog)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = w.now().UTC()
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if err := w.store.AppendLog(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("appending %s log: %w", e.Kind, err)
	}
	if w.producer != nil {
		if err := w.producer.Emit(ctx, e); err != nil {
			w.logger.Warn("mirroring log entry",
				zap.String("log_urn", e.URN),
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
		}
	}
	return e, nil
}
