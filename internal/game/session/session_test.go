package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/game/session"
	"github.com/cory-johannsen/tepache/internal/storage/memory"
)

type notified struct {
	kind change.Kind
	game string
	data any
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notified
}

func (r *recordingNotifier) Notify(_ context.Context, kind change.Kind, gameSessionURN string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, notified{kind: kind, game: gameSessionURN, data: data})
	return nil
}

func (r *recordingNotifier) kinds() []change.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]change.Kind, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.kind)
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    *memory.Store
	games    *session.GameSessionManager
	players  *session.Manager
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	n := &recordingNotifier{}
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}

	games := session.NewGameSessionManager(store, n, logger)
	games.SetClock(c.now)
	players := session.NewManager(store, games, session.NewNameCounter(0), n, audit.NewWriter(store, nil, logger), 0, logger)
	players.SetClock(c.now)
	return &fixture{store: store, games: games, players: players, notifier: n, clock: c}
}

func TestGameSessionManager_StartActiveEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.games.Active(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	first, err := f.games.Start(ctx, "")
	require.NoError(t, err)
	f.clock.advance(time.Second)
	second, err := f.games.Start(ctx, "urn:tepache-game:trivia")
	require.NoError(t, err)

	active, err := f.games.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.URN, active.URN)

	ended, err := f.games.End(ctx, second.URN)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, ended.Status)

	active, err = f.games.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.URN, active.URN)

	writes := f.store.Writes()
	_, err = f.games.End(ctx, second.URN)
	require.NoError(t, err)
	assert.Equal(t, writes, f.store.Writes(), "ending an ended session must not write")

	assert.Equal(t, []change.Kind{change.GameSessionStarted, change.GameSessionStarted, change.GameSessionEnded}, f.notifier.kinds())
}

func TestGameSessionManager_StartRejectsMalformedGameURN(t *testing.T) {
	f := newFixture(t)
	_, err := f.games.Start(context.Background(), "not a urn")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, int64(0), f.store.Writes())
}

func TestManager_FindLatest_NotFoundIsAbsence(t *testing.T) {
	f := newFixture(t)
	_, found, err := f.players.FindLatest(context.Background(), "urn:game:abc", "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_FindLatest_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.players.FindLatest(ctx, "abc", "u1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = f.players.FindLatest(ctx, "urn:game:abc", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestManager_FindLatest_ReturnsMostRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.players.Create(ctx, "urn:game:abc", "u1", "Old")
	require.NoError(t, err)
	f.clock.advance(time.Second)
	newer, err := f.players.Create(ctx, "urn:game:abc", "u1", "New")
	require.NoError(t, err)

	got, found, err := f.players.FindLatest(ctx, "urn:game:abc", "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, newer.ID, got.ID)
}

func TestManager_Create_StampsAndNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ps, err := f.players.Create(ctx, "urn:game:abc", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous1", ps.Name)
	assert.Equal(t, ps.CreatedAt, ps.LastActivityAt)
	assert.Equal(t, int64(1), f.store.Writes())

	named, err := f.players.Create(ctx, "urn:game:abc", "u2", "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", named.Name)
	assert.NotEqual(t, ps.URN, named.URN)
}

func TestManager_Join(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.players.Join(ctx, "urn:game:missing", "u1", "Alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(0), f.store.Writes())

	g, err := f.games.Start(ctx, "")
	require.NoError(t, err)
	ps, err := f.players.Join(ctx, g.URN, "u1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, g.URN, ps.GameSessionURN)

	logs, err := f.store.ListLogs(ctx, g.URN)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.KindJoin, logs[0].Kind)
	assert.Equal(t, ps.URN, logs[0].PlayerSessionURN)
	assert.Contains(t, f.notifier.kinds(), change.PlayerSessionJoined)
}

func TestManager_Rename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps, err := f.players.Create(ctx, "urn:game:abc", "u1", "Alice")
	require.NoError(t, err)

	writes := f.store.Writes()
	_, err = f.players.Rename(ctx, ps.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, writes, f.store.Writes())

	_, err = f.players.Rename(ctx, "missing", "Bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	renamed, err := f.players.Rename(ctx, ps.ID, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", renamed.Name)

	stored, err := f.players.Get(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", stored.Name)
	assert.Equal(t, []change.Kind{change.PlayerSessionRenamed}, f.notifier.kinds())
}

func TestManager_HeartbeatRevivesStaleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps, err := f.players.Create(ctx, "urn:game:abc", "u1", "Alice")
	require.NoError(t, err)

	f.clock.advance(10 * time.Second)
	res, err := f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)
	assert.False(t, res.WasStale)
	assert.False(t, f.players.View(res.Session).Stale)

	f.clock.advance(session.DefaultStaleAfter + time.Second)
	assert.True(t, f.players.View(res.Session).Stale)

	res, err = f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)
	assert.True(t, res.WasStale)
	assert.True(t, f.clock.now().Equal(res.Session.LastActivityAt))
	assert.False(t, f.players.View(res.Session).Stale)
}

func TestManager_HeartbeatIsIdempotentWithinAnInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps, err := f.players.Create(ctx, "urn:game:abc", "u1", "Alice")
	require.NoError(t, err)
	f.clock.advance(time.Second)

	first, err := f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)
	second, err := f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Session.LastActivityAt, second.Session.LastActivityAt)
}

func TestManager_HeartbeatNeverRewinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps, err := f.players.Create(ctx, "urn:game:abc", "u1", "Alice")
	require.NoError(t, err)

	f.clock.advance(time.Minute)
	ahead, err := f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)

	f.clock.advance(-30 * time.Second)
	behind, err := f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)
	assert.True(t, ahead.Session.LastActivityAt.Equal(behind.Session.LastActivityAt))
}

func TestManager_HeartbeatUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.players.Heartbeat(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_ListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.players.ListForUser(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.players.Create(ctx, "urn:game:a", "u1", "A")
	require.NoError(t, err)
	f.clock.advance(time.Second)
	b, err := f.players.Create(ctx, "urn:game:b", "u1", "B")
	require.NoError(t, err)

	list, err := f.players.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestManager_BroadcastsOmitUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.games.Start(ctx, "")
	require.NoError(t, err)

	ps, err := f.players.Join(ctx, g.URN, "secret-uid", "Ada")
	require.NoError(t, err)
	_, err = f.players.Rename(ctx, ps.ID, "Grace")
	require.NoError(t, err)
	_, err = f.players.Heartbeat(ctx, ps.ID)
	require.NoError(t, err)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	var checked int
	for _, n := range f.notifier.got {
		if n.kind == change.GameSessionStarted {
			continue
		}
		raw, err := json.Marshal(n.data)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret-uid", n.kind)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "uid", n.kind)
		assert.Equal(t, ps.URN, fields["urn"], n.kind)
		checked++
	}
	assert.Equal(t, 3, checked)
}
