package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"github.com/google/uuid"
)

// ConfigRow is the mirrored global configuration.
type ConfigRow struct {
	ID        uuid.UUID           `json:"id"`
	Config    domain.GlobalConfig `json:"config"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// GetConfig returns the mirrored global configuration, or an error wrapping
// [domain.ErrNotFound] if none has been stored yet.
func (s *Store) GetConfig(ctx context.Context) (ConfigRow, error) {
	return getConfig(ctx, s.db)
}

// MergeConfig shallow-merges partial into the mirrored configuration,
// inserting it if absent.
func (s *Store) MergeConfig(ctx context.Context, partial domain.GlobalConfig) (ConfigRow, error) {
	return s.writeConfig(ctx, func(existing domain.GlobalConfig) domain.GlobalConfig {
		merged := existing.Clone()
		if merged == nil {
			merged = make(domain.GlobalConfig, len(partial))
		}
		maps.Copy(merged, partial)
		return merged
	})
}

// ReplaceConfig overwrites the mirrored configuration, inserting it if absent.
func (s *Store) ReplaceConfig(ctx context.Context, cfg domain.GlobalConfig) (ConfigRow, error) {
	return s.writeConfig(ctx, func(domain.GlobalConfig) domain.GlobalConfig { return cfg.Clone() })
}

func (s *Store) writeConfig(ctx context.Context, apply func(domain.GlobalConfig) domain.GlobalConfig) (ConfigRow, error) {
	var row ConfigRow

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getConfig(ctx, tx)
		found := err == nil
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		if found {
			row = existing
		} else {
			row = ConfigRow{ID: uuid.New(), CreatedAt: now}
		}
		row.Config = apply(existing.Config)
		row.UpdatedAt = now

		cfgJSON, err := json.Marshal(row.Config)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		if found {
			_, err = tx.ExecContext(
				ctx,
				`UPDATE config SET config = ?, updated_at = ? WHERE id = ?`,
				string(cfgJSON),
				formatTime(row.UpdatedAt),
				row.ID.String(),
			)
		} else {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO config (id, config, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				row.ID.String(),
				string(cfgJSON),
				formatTime(row.CreatedAt),
				formatTime(row.UpdatedAt),
			)
		}
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		return nil
	})
	if err != nil {
		return ConfigRow{}, err
	}

	return row, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getConfig(ctx context.Context, db queryRower) (ConfigRow, error) {
	var (
		row                  ConfigRow
		id, cfg              string
		createdAt, updatedAt string
	)

	err := db.QueryRowContext(
		ctx,
		`SELECT id, config, created_at, updated_at FROM config ORDER BY created_at ASC LIMIT 1`,
	).Scan(&id, &cfg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigRow{}, fmt.Errorf("config: %w", domain.ErrNotFound)
	} else if err != nil {
		return ConfigRow{}, fmt.Errorf("query config: %w", err)
	}

	if row.ID, err = uuid.Parse(id); err != nil {
		return ConfigRow{}, fmt.Errorf("parse id: %w", err)
	}
	if err = json.Unmarshal([]byte(cfg), &row.Config); err != nil {
		return ConfigRow{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if row.CreatedAt, err = parseTime(createdAt); err != nil {
		return ConfigRow{}, fmt.Errorf("parse created_at: %w", err)
	}
	if row.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ConfigRow{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return row, nil
}
