// Package refresher periodically recomputes the combined path list and
// publishes it on the event bus.
package refresher

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/event"
)

const (
	defaultInterval = 5 * time.Second
	defaultChanSize = 64
)

// Engine computes the combined path list.
type Engine interface {
	ListCombined(context.Context) ([]domain.CombinedPath, error)
	Healthcheck(context.Context) bool
}

// Snapshot is the result of the most recent successful refresh.
type Snapshot struct {
	Paths       []domain.CombinedPath
	RefreshedAt time.Time
	Connected   bool
}

// action is an action to be performed by the actor.
type action func()

// Refresher is an actor which refreshes the combined path list on a fixed
// interval, and on demand.
type Refresher struct {
	actorC   chan action
	refreshC chan struct{}
	engine   Engine
	bus      *event.Bus
	interval time.Duration
	logger   *slog.Logger

	// mutable state
	snapshot  Snapshot
	connected *bool
}

// NewParams contains the parameters for building a new Refresher.
type NewParams struct {
	Engine   Engine
	Bus      *event.Bus
	Interval time.Duration // defaults to 5 seconds
	ChanSize int           // defaults to 64
	Logger   *slog.Logger
}

// New creates a new Refresher. It does nothing until Run is called.
func New(params NewParams) *Refresher {
	return &Refresher{
		actorC:   make(chan action, cmp.Or(params.ChanSize, defaultChanSize)),
		refreshC: make(chan struct{}, 1),
		engine:   params.Engine,
		bus:      params.Bus,
		interval: cmp.Or(params.Interval, defaultInterval),
		logger:   params.Logger.With("component", "refresher"),
	}
}

// Refresh requests an immediate refresh. It never blocks, and requests made
// while a refresh is already pending are coalesced.
func (r *Refresher) Refresh() {
	select {
	case r.refreshC <- struct{}{}:
	default:
	}
}

// Snapshot returns the result of the most recent successful refresh. ok is
// false if no refresh has succeeded yet.
//
// Blocks until the actor is running, or the context is cancelled.
func (r *Refresher) Snapshot(ctx context.Context) (_ Snapshot, ok bool) {
	resultC := make(chan Snapshot, 1)

	select {
	case r.actorC <- func() { resultC <- r.snapshot }:
	case <-ctx.Done():
		return Snapshot{}, false
	}

	select {
	case snapshot := <-resultC:
		return snapshot, !snapshot.RefreshedAt.IsZero()
	case <-ctx.Done():
		return Snapshot{}, false
	}
}

// Run runs the actor loop until the context is cancelled. A first refresh
// is performed immediately.
func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.refresh(ctx)

	for {
		select {
		case <-t.C:
			r.refresh(ctx)
		case <-r.refreshC:
			r.refresh(ctx)
			t.Reset(r.interval)
		case action := <-r.actorC:
			action()
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	connected := r.engine.Healthcheck(ctx)
	if r.connected == nil || *r.connected != connected {
		r.connected = &connected
		r.logger.Info("Media server status changed", "connected", connected)
		r.bus.Send(event.MediaServerStatusChangedEvent{Connected: connected})
	}

	paths, err := r.engine.ListCombined(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		r.logger.Warn("Error refreshing paths", "err", err)
		r.bus.Send(event.PathsRefreshFailedEvent{Err: err})
		return
	}

	r.snapshot = Snapshot{Paths: paths, RefreshedAt: time.Now(), Connected: connected}
	r.bus.Send(event.PathsRefreshedEvent{Paths: paths, RefreshedAt: r.snapshot.RefreshedAt, Connected: connected})
}
