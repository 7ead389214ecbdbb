package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until Stop, or returns startErr from Start when set.
type blockingService struct {
	started  chan struct{}
	stop     chan struct{}
	once     sync.Once
	stopped  atomic.Bool
	startErr func() error
}

func newBlockingService() *blockingService {
	return &blockingService{started: make(chan struct{}), stop: make(chan struct{})}
}

func (b *blockingService) Start() error {
	close(b.started)
	if b.startErr != nil {
		return b.startErr()
	}
	<-b.stop
	return nil
}

func (b *blockingService) Stop() {
	b.stopped.Store(true)
	b.once.Do(func() { close(b.stop) })
}

func (b *blockingService) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("service did not start in time")
	}
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	facade := newBlockingService()
	api := newBlockingService()
	lc.Add("facade", facade)
	lc.Add("http", api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	facade.awaitStart(t)
	api.awaitStart(t)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, facade.stopped.Load())
	assert.True(t, api.stopped.Load())
}

func TestLifecycleDoesNotWaitForeverOnStuckService(t *testing.T) {
	// The stuck goroutine outlives the test, so it must not log through t.
	lc := NewLifecycle(zap.NewNop())
	lc.stopTimeout = 50 * time.Millisecond
	lc.Add("stuck", &FuncService{
		StartFn: func() error { select {} },
		StopFn:  func() {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run waited past the stop timeout")
	}
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}

	require.NoError(t, svc.Start())
	svc.Stop()
	assert.True(t, started)
	assert.True(t, stopped)
}

func TestLifecycleReturnsServiceFailure(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	healthy := newBlockingService()
	boom := errors.New("subscription dropped")
	failing := newBlockingService()
	failing.startErr = func() error { return boom }
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service failing")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down after a failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"first", "second", "third"} {
		stop := make(chan struct{})
		var once sync.Once
		lc.Add(name, &FuncService{
			StartFn: func() error { <-stop; return nil },
			StopFn: func() {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				once.Do(func() { close(stop) })
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))
	assert.Equal(t, []string{"third", "second", "first"}, order)
}
