// Package globalconfig keeps the global media server configuration and its
// mirror in the local store in sync.
package globalconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/store"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// ErrNoStoredConfig is returned when the mirror is read before any
// configuration has been stored.
var ErrNoStoredConfig = errors.New("no configuration found in database")

// Source selects which side wins a sync.
type Source string

const (
	// SourceMediaMTX overwrites the mirror with the live configuration.
	SourceMediaMTX Source = "mtx"
	// SourceDB pushes the mirrored configuration to the media server.
	SourceDB Source = "db"
)

// MediaServer is the subset of the media server control API used by the
// engine.
type MediaServer interface {
	GetGlobalConfig(context.Context) (domain.GlobalConfig, error)
	PatchGlobalConfig(context.Context, domain.GlobalConfig) error
}

// Store is the configuration mirror.
type Store interface {
	GetConfig(context.Context) (store.ConfigRow, error)
	MergeConfig(context.Context, domain.GlobalConfig) (store.ConfigRow, error)
	ReplaceConfig(context.Context, domain.GlobalConfig) (store.ConfigRow, error)
}

// State is the live configuration, its mirror and the drift between them.
type State struct {
	LiveConfig domain.GlobalConfig `json:"liveConfig"`
	DBConfig   domain.GlobalConfig `json:"dbConfig"`
	Drift      []string            `json:"drift"`
}

// Engine implements the global configuration operations.
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
		logger:      params.Logger.With("component", "globalconfig"),
	}
}

// Get returns the live and mirrored configuration. DBConfig is nil if no
// configuration has been stored.
func (e *Engine) Get(ctx context.Context) (State, error) {
	var state State

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if state.LiveConfig, err = e.mediaServer.GetGlobalConfig(ctx); err != nil {
			return fmt.Errorf("get global config: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		row, err := e.store.GetConfig(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		} else if err != nil {
			return fmt.Errorf("get stored config: %w", err)
		}
		state.DBConfig = row.Config
		return nil
	})

	if err := g.Wait(); err != nil {
		return State{}, err
	}

	state.Drift = Diff(state.LiveConfig, state.DBConfig)

	return state, nil
}

// Update patches the live configuration with partial, and then merges it
// into the mirror.
func (e *Engine) Update(ctx context.Context, partial domain.GlobalConfig) error {
	if len(partial) == 0 {
		errs := make(domain.ValidationErrors)
		errs.Append("config", "At least one field is required")
		return errs
	}

	if err := e.mediaServer.PatchGlobalConfig(ctx, partial); err != nil {
		return fmt.Errorf("patch global config: %w", err)
	}

	if _, err := e.store.MergeConfig(ctx, partial); err != nil {
		e.logger.Warn("Global config patched but not stored", "step", "merge config", "err", err)
		return fmt.Errorf("merge stored config: %w", err)
	}

	e.logger.Info("Global config updated", "fields", slices.Sorted(maps.Keys(partial)))

	return nil
}

// Sync adopts one side of the configuration wholesale.
func (e *Engine) Sync(ctx context.Context, source Source) error {
	switch source {
	case SourceMediaMTX:
		cfg, err := e.mediaServer.GetGlobalConfig(ctx)
		if err != nil {
			return fmt.Errorf("get global config: %w", err)
		}

		if _, err = e.store.ReplaceConfig(ctx, cfg); err != nil {
			return fmt.Errorf("replace stored config: %w", err)
		}
	case SourceDB:
		row, err := e.store.GetConfig(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNoStoredConfig
		} else if err != nil {
			return fmt.Errorf("get stored config: %w", err)
		}

		if err = e.mediaServer.PatchGlobalConfig(ctx, row.Config); err != nil {
			return fmt.Errorf("patch global config: %w", err)
		}
	default:
		errs := make(domain.ValidationErrors)
		errs.Append("source", "Source must be mtx or db")
		return errs
	}

	e.logger.Info("Global config synced", "source", source)

	return nil
}

// Diff returns the sorted top-level keys whose values differ between the
// live and mirrored configuration. A nil mirror differs in every live key.
func Diff(live, db domain.GlobalConfig) []string {
	keys := make(map[string]struct{}, len(live))
	for k := range live {
		keys[k] = struct{}{}
	}
	if db != nil {
		for k := range db {
			keys[k] = struct{}{}
		}
	}

	drift := []string{}
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		liveVal, inLive := live[k]
		dbVal, inDB := db[k]
		if inLive != inDB || !cmp.Equal(liveVal, dbVal) {
			drift = append(drift, k)
		}
	}

	return drift
}
