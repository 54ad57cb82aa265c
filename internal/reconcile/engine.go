// Package reconcile reconciles the paths known to the media server with the
// paths persisted in the local store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"golang.org/x/sync/errgroup"
)

// MediaServer is the subset of the media server control API used by the
// engine.
type MediaServer interface {
	ListPaths(context.Context) ([]domain.LivePath, error)
	GetPath(context.Context, string) (domain.LivePath, error)
	ListPathConfigs(context.Context) ([]domain.PathConf, error)
	GetPathConfig(context.Context, string) (domain.PathConf, error)
	AddPathConfig(context.Context, domain.PathConf) error
	PatchPathConfig(context.Context, string, domain.PathConf) error
	DeletePathConfig(context.Context, string) error
}

// Store is the persistent path store.
type Store interface {
	ListPaths(context.Context) ([]domain.PathRecord, error)
	GetPath(context.Context, string) (domain.PathRecord, error)
	InsertPath(context.Context, domain.PathConf) (domain.PathRecord, error)
	UpdatePath(context.Context, domain.PathConf) (domain.PathRecord, error)
	DeletePath(context.Context, string) error
}

// Engine implements the path operations.
//
// Multi-step operations are not transactional. If a step fails after the
// media server has been modified, the error is returned and the resulting
// inconsistency is left for the operator to resolve with Sync or Remove.
type Engine struct {
	mediaServer MediaServer
	store       Store
	logger      *slog.Logger
}

// NewEngineParams contains the parameters for building a new Engine.
type NewEngineParams struct {
	MediaServer MediaServer
	Store       Store
	Logger      *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(params NewEngineParams) *Engine {
	return &Engine{
		mediaServer: params.MediaServer,
		store:       params.Store,
		logger:      params.Logger.With("component", "reconcile"),
	}
}

// ListCombined fetches the three views of the configured paths concurrently
// and merges them. It fails if any fetch fails.
func (e *Engine) ListCombined(ctx context.Context) ([]domain.CombinedPath, error) {
	var src Sources

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if src.Stored, err = e.store.ListPaths(ctx); err != nil {
			return fmt.Errorf("list stored paths: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if src.Live, err = e.mediaServer.ListPaths(ctx); err != nil {
			return fmt.Errorf("list live paths: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if src.Configs, err = e.mediaServer.ListPathConfigs(ctx); err != nil {
			return fmt.Errorf("list path configs: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Merge(src), nil
}

// Create registers a new path with the media server, and persists the
// configuration resolved by the server.
func (e *Engine) Create(ctx context.Context, conf domain.PathConf) (domain.PathRecord, error) {
	if err := conf.Validate(); err != nil {
		return domain.PathRecord{}, err
	}

	if _, err := e.store.GetPath(ctx, conf.Name); err == nil {
		return domain.PathRecord{}, fmt.Errorf("path %q: %w", conf.Name, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.PathRecord{}, fmt.Errorf("get stored path: %w", err)
	}

	if err := e.mediaServer.AddPathConfig(ctx, conf); err != nil {
		return domain.PathRecord{}, fmt.Errorf("add path config: %w", err)
	}

	record, err := e.persistResolved(ctx, conf.Name)
	if err != nil {
		return domain.PathRecord{}, err
	}

	e.logger.Info("Path created", "name", conf.Name, "kind", record.Conf.Kind())

	return record, nil
}

// Sync adopts a path which is known to the media server, but not stored.
func (e *Engine) Sync(ctx context.Context, name string) (domain.PathRecord, error) {
	if _, err := e.store.GetPath(ctx, name); err == nil {
		return domain.PathRecord{}, fmt.Errorf("path %q: %w", name, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.PathRecord{}, fmt.Errorf("get stored path: %w", err)
	}

	_, err := e.mediaServer.GetPathConfig(ctx, name)
	switch {
	case err == nil:
		// The server already holds a configuration for the path.
	case errors.Is(err, domain.ErrNotFound):
		// A publisher-created path, matched only by the catch-all
		// configuration. Register it in its own right before persisting it.
		if _, err = e.mediaServer.GetPath(ctx, name); err != nil {
			return domain.PathRecord{}, fmt.Errorf("get path: %w", err)
		}

		conf := domain.PathConf{Name: name, Source: ptr.New(domain.SourcePublisher)}
		if err = e.mediaServer.AddPathConfig(ctx, conf); err != nil {
			return domain.PathRecord{}, fmt.Errorf("add path config: %w", err)
		}
	default:
		return domain.PathRecord{}, fmt.Errorf("get path config: %w", err)
	}

	record, err := e.persistResolved(ctx, name)
	if err != nil {
		return domain.PathRecord{}, err
	}

	e.logger.Info("Path synced", "name", name)

	return record, nil
}

// persistResolved fetches the configuration of a path which has just been
// registered, and inserts it in the store.
func (e *Engine) persistResolved(ctx context.Context, name string) (domain.PathRecord, error) {
	resolved, err := e.mediaServer.GetPathConfig(ctx, name)
	if err != nil {
		e.logger.Warn("Path registered but not stored", "name", name, "step", "get path config", "err", err)
		return domain.PathRecord{}, fmt.Errorf("get path config: %w", err)
	}

	record, err := e.store.InsertPath(ctx, resolved)
	if err != nil {
		e.logger.Warn("Path registered but not stored", "name", name, "step", "insert path", "err", err)
		return domain.PathRecord{}, fmt.Errorf("insert path: %w", err)
	}

	return record, nil
}

// Remove deletes a stored path from the media server, if registered, and
// then from the store.
func (e *Engine) Remove(ctx context.Context, name string) error {
	if _, err := e.store.GetPath(ctx, name); err != nil {
		return fmt.Errorf("get stored path: %w", err)
	}

	_, err := e.mediaServer.GetPathConfig(ctx, name)
	switch {
	case err == nil:
		if err = e.mediaServer.DeletePathConfig(ctx, name); err != nil {
			return fmt.Errorf("delete path config: %w", err)
		}
	case errors.Is(err, domain.ErrNotFound):
		e.logger.Debug("Path not registered with media server", "name", name)
	default:
		return fmt.Errorf("get path config: %w", err)
	}

	if err = e.store.DeletePath(ctx, name); err != nil {
		e.logger.Warn("Path deregistered but not deleted", "name", name, "step", "delete path", "err", err)
		return fmt.Errorf("delete stored path: %w", err)
	}

	e.logger.Info("Path removed", "name", name)

	return nil
}

// Toggle registers a stored path with the media server, or deregisters it.
// The stored path is never modified.
func (e *Engine) Toggle(ctx context.Context, name string, enabled bool) error {
	if !enabled {
		if err := e.mediaServer.DeletePathConfig(ctx, name); err != nil {
			return fmt.Errorf("delete path config: %w", err)
		}

		e.logger.Info("Path disabled", "name", name)
		return nil
	}

	record, err := e.store.GetPath(ctx, name)
	if err != nil {
		return fmt.Errorf("get stored path: %w", err)
	}

	if err := e.mediaServer.AddPathConfig(ctx, record.Conf); err != nil {
		return fmt.Errorf("add path config: %w", err)
	}

	e.logger.Info("Path enabled", "name", name)

	return nil
}

// GetPathState returns the live state of a path. If the path is not live,
// found is false and err is nil.
func (e *Engine) GetPathState(ctx context.Context, name string) (_ domain.LivePath, found bool, _ error) {
	path, err := e.mediaServer.GetPath(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.LivePath{}, false, nil
	} else if err != nil {
		return domain.LivePath{}, false, fmt.Errorf("get path: %w", err)
	}

	return path, true, nil
}

// Healthcheck returns true if the media server is reachable.
func (e *Engine) Healthcheck(ctx context.Context) bool {
	if _, err := e.mediaServer.ListPaths(ctx); err != nil {
		e.logger.Debug("Healthcheck failed", "err", err)
		return false
	}

	return true
}

// GetPathConfig returns the stored configuration of a path.
func (e *Engine) GetPathConfig(ctx context.Context, name string) (domain.PathRecord, error) {
	record, err := e.store.GetPath(ctx, name)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("get stored path: %w", err)
	}

	return record, nil
}

// Update patches the configuration of a stored path: fields which are not
// set in conf are left unchanged. If the path is registered with the media
// server its configuration is patched too, otherwise only the stored copy is
// updated.
func (e *Engine) Update(ctx context.Context, conf domain.PathConf) (domain.PathRecord, error) {
	if err := conf.Validate(); err != nil {
		return domain.PathRecord{}, err
	}

	existing, err := e.store.GetPath(ctx, conf.Name)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("get stored path: %w", err)
	}

	merged, err := existing.Conf.Patch(conf)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("merge path config: %w", err)
	}

	if err := e.mediaServer.PatchPathConfig(ctx, conf.Name, conf); errors.Is(err, domain.ErrNotFound) {
		e.logger.Debug("Path not registered with media server, updating store only", "name", conf.Name)
	} else if err != nil {
		return domain.PathRecord{}, fmt.Errorf("patch path config: %w", err)
	}

	record, err := e.store.UpdatePath(ctx, merged)
	if err != nil {
		e.logger.Warn("Path patched but not stored", "name", conf.Name, "step", "update path", "err", err)
		return domain.PathRecord{}, fmt.Errorf("update stored path: %w", err)
	}

	e.logger.Info("Path updated", "name", conf.Name)

	return record, nil
}

// ListPublishers returns the live paths which are currently fed by a
// publisher.
func (e *Engine) ListPublishers(ctx context.Context) ([]domain.LivePath, error) {
	paths, err := e.mediaServer.ListPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live paths: %w", err)
	}

	publishers := make([]domain.LivePath, 0, len(paths))
	for _, p := range paths {
		if p.IsPublisher() {
			publishers = append(publishers, p)
		}
	}

	return publishers, nil
}
