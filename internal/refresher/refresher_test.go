package refresher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/event"
	"git.netflux.io/rob/mtxdash/internal/refresher"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu        sync.Mutex
	paths     []domain.CombinedPath
	err       error
	connected bool
	calls     int
}

func (e *fakeEngine) ListCombined(context.Context) ([]domain.CombinedPath, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	return e.paths, e.err
}

func (e *fakeEngine) Healthcheck(context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.connected
}

func (e *fakeEngine) set(paths []domain.CombinedPath, err error, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.paths, e.err, e.connected = paths, err, connected
}

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()

	select {
	case evt := <-ch:
		return evt
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for event")
		return nil
	}
}

func TestRefresher(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	logger := testhelpers.NewTestLogger(t)
	bus := event.NewBus(logger)
	ch := bus.Register()

	engine := &fakeEngine{}
	engine.set([]domain.CombinedPath{{Name: "cam1"}}, nil, true)

	r := refresher.New(refresher.NewParams{
		Engine:   engine,
		Bus:      bus,
		Interval: time.Hour,
		Logger:   logger,
	})

	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	assert.Equal(t, event.MediaServerStatusChangedEvent{Connected: true}, receive(t, ch))
	refreshed := receive(t, ch).(event.PathsRefreshedEvent)
	assert.Equal(t, []domain.CombinedPath{{Name: "cam1"}}, refreshed.Paths)
	assert.True(t, refreshed.Connected)

	snapshot, ok := r.Snapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, refreshed.Paths, snapshot.Paths)
	assert.True(t, snapshot.Connected)

	// On-demand refresh, no status change.
	engine.set([]domain.CombinedPath{{Name: "cam1"}, {Name: "cam2"}}, nil, true)
	r.Refresh()
	refreshed = receive(t, ch).(event.PathsRefreshedEvent)
	assert.Len(t, refreshed.Paths, 2)

	// Failure keeps the last good snapshot.
	engine.set(nil, errors.New("boom"), false)
	r.Refresh()
	assert.Equal(t, event.MediaServerStatusChangedEvent{Connected: false}, receive(t, ch))
	failed := receive(t, ch).(event.PathsRefreshFailedEvent)
	assert.EqualError(t, failed.Err, "boom")

	snapshot, ok = r.Snapshot(ctx)
	require.True(t, ok)
	assert.Len(t, snapshot.Paths, 2)

	cancel()
	require.NoError(t, <-done)
}

func TestSnapshotBeforeFirstRefresh(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	r := refresher.New(refresher.NewParams{
		Engine: &fakeEngine{},
		Bus:    event.NewBus(testhelpers.NewNopLogger()),
		Logger: testhelpers.NewNopLogger(),
	})

	// Not running: blocks until the context is cancelled.
	_, ok := r.Snapshot(ctx)
	assert.False(t, ok)
}
