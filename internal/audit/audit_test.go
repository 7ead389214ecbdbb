package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/urn"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *fakeStore) AppendLog(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) ListLogs(_ context.Context, gameSessionURN string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.GameSessionURN == gameSessionURN {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeProducer struct {
	emitted []Entry
	err     error
}

func (p *fakeProducer) Emit(_ context.Context, e Entry) error {
	p.emitted = append(p.emitted, e)
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

func TestWriter_Append(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, nil, zaptest.NewLogger(t))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	e, err := w.Append(context.Background(), Entry{
		GameSessionURN: "urn:game:abc",
		Kind:           KindCapture,
	})
	require.NoError(t, err)
	assert.True(t, urn.Valid(e.URN))
	assert.Equal(t, urn.NamespaceLog, urn.Namespace(e.URN))
	assert.True(t, fixed.Equal(e.CreatedAt))
	require.Len(t, store.entries, 1)
	assert.Equal(t, e, store.entries[0])
}

func TestWriter_AppendRejectsMalformed(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, nil, zaptest.NewLogger(t))

	_, err := w.Append(context.Background(), Entry{GameSessionURN: "bad", Kind: KindJoin})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = w.Append(context.Background(), Entry{GameSessionURN: "urn:game:abc"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, store.entries)
}

func TestWriter_StoreFailureSurfaces(t *testing.T) {
	store := &fakeStore{err: apperr.Storage("append", errors.New("down"))}
	producer := &fakeProducer{}
	w := NewWriter(store, producer, zaptest.NewLogger(t))

	_, err := w.Append(context.Background(), Entry{GameSessionURN: "urn:game:abc", Kind: KindJoin})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Empty(t, producer.emitted, "entries that failed to persist are not mirrored")
}

func TestWriter_MirrorFailureIgnored(t *testing.T) {
	store := &fakeStore{}
	producer := &fakeProducer{err: errors.New("kafka down")}
	w := NewWriter(store, producer, zaptest.NewLogger(t))

	_, err := w.Append(context.Background(), Entry{GameSessionURN: "urn:game:abc", Kind: KindDisconnect})
	require.NoError(t, err)
	assert.Len(t, producer.emitted, 1)
	assert.Len(t, store.entries, 1)
}

func TestNewKafkaProducer_DisabledWithoutBrokers(t *testing.T) {
	assert.Nil(t, NewKafkaProducer(nil, "topic"))
	assert.Nil(t, NewKafkaProducer([]string{"localhost:9092"}, ""))

	var p *KafkaProducer
	assert.NoError(t, p.Emit(context.Background(), Entry{}))
	assert.NoError(t, p.Close())
}
