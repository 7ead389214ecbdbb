// Package memory provides an in-process Session Store. It backs development
// runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/capture"
	"github.com/cory-johannsen/tepache/internal/game/session"
)

// Store implements the game session, player session, capture, and log stores.
// All methods are safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	seq            uint64
	games          map[string]record[session.GameSession]
	players        map[string]record[session.PlayerSession] // id -> session
	playersByURN   map[string]string                        // urn -> id
	captures       []capture.Capture
	logs           []audit.Entry
	writes         atomic.Int64
	failWritesWith error
}

// record pairs a stored value with its insertion sequence, which breaks
// createdAt ties in favour of the later write.
type record[T any] struct {
	seq   uint64
	value T
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		games:        make(map[string]record[session.GameSession]),
		players:      make(map[string]record[session.PlayerSession]),
		playersByURN: make(map[string]string),
	}
}

// Writes returns the number of successful writes since creation.
func (s *Store) Writes() int64 { return s.writes.Load() }

// FailWrites makes every subsequent write fail with err wrapped as a storage
// error. A nil err restores normal behaviour.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWritesWith = err
}

func (s *Store) writeErr(op string) error {
	if s.failWritesWith != nil {
		return apperr.Storage(op, s.failWritesWith)
	}
	return nil
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// CreateGameSession implements session.GameSessionStore.
func (s *Store) CreateGameSession(_ context.Context, g session.GameSession) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("create game session"); err != nil {
		return err
	}
	if _, exists := s.games[g.URN]; exists {
		return apperr.Storage("create game session", errDuplicate(g.URN))
	}
	s.games[g.URN] = record[session.GameSession]{seq: s.nextSeq(), value: g}
	s.writes.Add(1)
	return nil
}

// GetGameSession implements session.GameSessionStore.
func (s *Store) GetGameSession(_ context.Context, urn string) (session.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.games[urn]
	if !ok {
		return session.GameSession{}, apperr.NotFound("game session %q", urn)
	}
	return r.value, nil
}

// LatestGameSessionByStatus implements session.GameSessionStore.
func (s *Store) LatestGameSessionByStatus(_ context.Context, status session.GameStatus) (session.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *record[session.GameSession]
	for _, r := range s.games {
		if r.value.Status != status {
			continue
		}
		if best == nil || later(r.value.CreatedAt, r.seq, best.value.CreatedAt, best.seq) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return session.GameSession{}, apperr.NotFound("game session with status %q", status)
	}
	return best.value, nil
}

// UpdateGameSessionStatus implements session.GameSessionStore.
func (s *Store) UpdateGameSessionStatus(_ context.Context, urn string, status session.GameStatus) error {
	if !status.Valid() {
		return apperr.Validation("game session status %q is unknown", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("update game session"); err != nil {
		return err
	}
	r, ok := s.games[urn]
	if !ok {
		return apperr.NotFound("game session %q", urn)
	}
	r.value.Status = status
	s.games[urn] = r
	s.writes.Add(1)
	return nil
}

// CreatePlayerSession implements session.PlayerSessionStore.
func (s *Store) CreatePlayerSession(_ context.Context, p session.PlayerSession) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("create player session"); err != nil {
		return err
	}
	if _, exists := s.players[p.ID]; exists {
		return apperr.Storage("create player session", errDuplicate(p.ID))
	}
	if _, exists := s.playersByURN[p.URN]; exists {
		return apperr.Storage("create player session", errDuplicate(p.URN))
	}
	s.players[p.ID] = record[session.PlayerSession]{seq: s.nextSeq(), value: p}
	s.playersByURN[p.URN] = p.ID
	s.writes.Add(1)
	return nil
}

// GetPlayerSession implements session.PlayerSessionStore.
func (s *Store) GetPlayerSession(_ context.Context, id string) (session.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.players[id]
	if !ok {
		return session.PlayerSession{}, apperr.NotFound("player session %q", id)
	}
	return r.value, nil
}

// GetPlayerSessionByURN implements session.PlayerSessionStore.
func (s *Store) GetPlayerSessionByURN(_ context.Context, urn string) (session.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.playersByURN[urn]
	if !ok {
		return session.PlayerSession{}, apperr.NotFound("player session %q", urn)
	}
	return s.players[id].value, nil
}

// LatestPlayerSession implements session.PlayerSessionStore.
func (s *Store) LatestPlayerSession(_ context.Context, gameSessionURN, uid string) (session.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *record[session.PlayerSession]
	for _, r := range s.players {
		if r.value.GameSessionURN != gameSessionURN || r.value.UID != uid {
			continue
		}
		if best == nil || later(r.value.CreatedAt, r.seq, best.value.CreatedAt, best.seq) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return session.PlayerSession{}, apperr.NotFound("player session for %q in %q", uid, gameSessionURN)
	}
	return best.value, nil
}

// ListPlayerSessionsByUser implements session.PlayerSessionStore.
func (s *Store) ListPlayerSessionsByUser(_ context.Context, uid string) ([]session.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []record[session.PlayerSession]
	for _, r := range s.players {
		if r.value.UID == uid {
			matches = append(matches, r)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return later(matches[i].value.CreatedAt, matches[i].seq, matches[j].value.CreatedAt, matches[j].seq)
	})
	out := make([]session.PlayerSession, 0, len(matches))
	for _, r := range matches {
		out = append(out, r.value)
	}
	return out, nil
}

// UpdatePlayerSessionName implements session.PlayerSessionStore.
func (s *Store) UpdatePlayerSessionName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("update player session"); err != nil {
		return err
	}
	r, ok := s.players[id]
	if !ok {
		return apperr.NotFound("player session %q", id)
	}
	r.value.Name = name
	s.players[id] = r
	s.writes.Add(1)
	return nil
}

// TouchPlayerSession implements session.PlayerSessionStore.
func (s *Store) TouchPlayerSession(_ context.Context, id string, at time.Time) (session.PlayerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("touch player session"); err != nil {
		return session.PlayerSession{}, err
	}
	r, ok := s.players[id]
	if !ok {
		return session.PlayerSession{}, apperr.NotFound("player session %q", id)
	}
	if at.After(r.value.LastActivityAt) {
		r.value.LastActivityAt = at
	}
	s.players[id] = r
	s.writes.Add(1)
	return r.value, nil
}

// CreateCapture implements capture.Store.
func (s *Store) CreateCapture(_ context.Context, c capture.Capture) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("create capture"); err != nil {
		return err
	}
	s.captures = append(s.captures, c)
	s.writes.Add(1)
	return nil
}

// ListCaptures implements capture.Store.
func (s *Store) ListCaptures(_ context.Context, gameSessionURN string) ([]capture.Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []capture.Capture
	for _, c := range s.captures {
		if c.GameSessionURN == gameSessionURN {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

// AppendLog implements audit.Store.
func (s *Store) AppendLog(_ context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr("append log"); err != nil {
		return err
	}
	s.logs = append(s.logs, e)
	s.writes.Add(1)
	return nil
}

// ListLogs implements audit.Store.
func (s *Store) ListLogs(_ context.Context, gameSessionURN string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.logs {
		if e.GameSessionURN == gameSessionURN {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// later reports whether (a, aSeq) orders after (b, bSeq).
func later(a time.Time, aSeq uint64, b time.Time, bSeq uint64) bool {
	if a.Equal(b) {
		return aSeq > bSeq
	}
	return a.After(b)
}

type errDuplicate string

func (e errDuplicate) Error() string { return "duplicate key " + string(e) }

var (
	_ session.GameSessionStore   = (*Store)(nil)
	_ session.PlayerSessionStore = (*Store)(nil)
	_ capture.Store              = (*Store)(nil)
	_ audit.Store                = (*Store)(nil)
)
