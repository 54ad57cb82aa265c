// Package bootstrap pushes the stored configuration to a freshly started
// media server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/store"
)

// MediaServer is the subset of the media server control API used by the
// bootstrapper.
type MediaServer interface {
	WaitReady(context.Context, time.Duration) error
	ListPathConfigs(context.Context) ([]domain.PathConf, error)
	AddPathConfig(context.Context, domain.PathConf) error
	PatchPathConfig(context.Context, string, domain.PathConf) error
	DeletePathConfig(context.Context, string) error
	PatchGlobalConfig(context.Context, domain.GlobalConfig) error
}

// Store is the persistent store.
type Store interface {
	ListPaths(context.Context) ([]domain.PathRecord, error)
	GetConfig(context.Context) (store.ConfigRow, error)
}

// Bootstrapper makes the media server configuration match the store.
type Bootstrapper struct {
	mediaServer   MediaServer
	store         Store
	readyInterval time.Duration
	logger        *slog.Logger
}

// NewParams contains the parameters for building a new Bootstrapper.
type NewParams struct {
	MediaServer   MediaServer
	Store         Store
	ReadyInterval time.Duration // defaults to 1 second
	Logger        *slog.Logger
}

// New creates a new Bootstrapper.
func New(params NewParams) *Bootstrapper {
	return &Bootstrapper{
		mediaServer:   params.MediaServer,
		store:         params.Store,
		readyInterval: params.ReadyInterval,
		logger:        params.Logger.With("component", "bootstrap"),
	}
}

// Run waits for the media server to become ready, pushes the stored global
// configuration, and then synchronizes the path configurations.
//
// A failure to push the global configuration aborts the run. Individual path
// failures are logged and returned together once every path has been
// attempted.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if err := b.mediaServer.WaitReady(ctx, b.readyInterval); err != nil {
		return fmt.Errorf("wait for media server: %w", err)
	}

	b.logger.Info("Starting initial sync")

	if err := b.syncConfig(ctx); err != nil {
		return err
	}

	if err := b.syncPaths(ctx); err != nil {
		return err
	}

	b.logger.Info("Initial sync completed")

	return nil
}

func (b *Bootstrapper) syncConfig(ctx context.Context) error {
	row, err := b.store.GetConfig(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		b.logger.Info("No stored global config, skipping")
		return nil
	} else if err != nil {
		return fmt.Errorf("get stored config: %w", err)
	}

	if err := b.mediaServer.PatchGlobalConfig(ctx, row.Config); err != nil {
		return fmt.Errorf("patch global config: %w", err)
	}

	b.logger.Info("Global config synced")

	return nil
}

func (b *Bootstrapper) syncPaths(ctx context.Context) error {
	records, err := b.store.ListPaths(ctx)
	if err != nil {
		return fmt.Errorf("list stored paths: %w", err)
	}

	confs, err := b.mediaServer.ListPathConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list path configs: %w", err)
	}

	stored := make(map[string]struct{}, len(records))
	for _, record := range records {
		stored[record.Name()] = struct{}{}
	}

	registered := make(map[string]struct{}, len(confs))
	var errs []error

	for _, conf := range confs {
		if conf.Name == domain.CatchAllPathName {
			continue
		}
		if _, ok := stored[conf.Name]; ok {
			registered[conf.Name] = struct{}{}
			continue
		}

		if err := b.mediaServer.DeletePathConfig(ctx, conf.Name); err != nil {
			b.logger.Error("Error deleting path", "name", conf.Name, "err", err)
			errs = append(errs, fmt.Errorf("delete %q: %w", conf.Name, err))
			continue
		}
		b.logger.Info("Deleted unknown path", "name", conf.Name)
	}

	for _, record := range records {
		var err error
		if _, ok := registered[record.Name()]; ok {
			err = b.mediaServer.PatchPathConfig(ctx, record.Name(), record.Conf)
		} else {
			err = b.mediaServer.AddPathConfig(ctx, record.Conf)
		}

		if err != nil {
			b.logger.Error("Error syncing path", "name", record.Name(), "err", err)
			errs = append(errs, fmt.Errorf("sync %q: %w", record.Name(), err))
			continue
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sync paths: %w", errors.Join(errs...))
	}

	b.logger.Info("Paths synced", "count", len(records))

	return nil
}
