package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"github.com/google/uuid"
)

const selectPaths = `SELECT id, conf, created_at, updated_at FROM paths`

// ListPaths returns every stored path, ordered by name.
func (s *Store) ListPaths(ctx context.Context) ([]domain.PathRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectPaths+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.PathRecord
	for rows.Next() {
		record, err := scanPath(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetPath returns the stored path with the given name, or an error wrapping
// [domain.ErrNotFound].
func (s *Store) GetPath(ctx context.Context, name string) (domain.PathRecord, error) {
	record, err := scanPath(s.db.QueryRowContext(ctx, selectPaths+` WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PathRecord{}, fmt.Errorf("path %q: %w", name, domain.ErrNotFound)
	} else if err != nil {
		return domain.PathRecord{}, err
	}

	return record, nil
}

// InsertPath stores a new path. If a path with the same name exists, an
// error wrapping [domain.ErrAlreadyExists] is returned.
func (s *Store) InsertPath(ctx context.Context, conf domain.PathConf) (domain.PathRecord, error) {
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("marshal: %w", err)
	}

	now := time.Now().UTC()
	record := domain.PathRecord{
		ID:        uuid.New(),
		Conf:      conf,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO paths (id, name, source, record, conf, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(),
		conf.Name,
		conf.Source,
		conf.IsRecording(),
		string(confJSON),
		formatTime(now),
		formatTime(now),
	)
	if isUniqueViolation(err) {
		return domain.PathRecord{}, fmt.Errorf("path %q: %w", conf.Name, domain.ErrAlreadyExists)
	} else if err != nil {
		return domain.PathRecord{}, fmt.Errorf("insert path: %w", err)
	}

	return record, nil
}

// UpdatePath replaces the configuration of the stored path with the same
// name, bumping its updated timestamp.
func (s *Store) UpdatePath(ctx context.Context, conf domain.PathConf) (domain.PathRecord, error) {
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("marshal: %w", err)
	}

	result, err := s.db.ExecContext(
		ctx,
		`UPDATE paths SET source = ?, record = ?, conf = ?, updated_at = ? WHERE name = ?`,
		conf.Source,
		conf.IsRecording(),
		string(confJSON),
		formatTime(time.Now()),
		conf.Name,
	)
	if err != nil {
		return domain.PathRecord{}, fmt.Errorf("update path: %w", err)
	}

	if err := checkAffected(result, conf.Name); err != nil {
		return domain.PathRecord{}, err
	}

	return s.GetPath(ctx, conf.Name)
}

// DeletePath deletes the stored path with the given name.
func (s *Store) DeletePath(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM paths WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete path: %w", err)
	}

	return checkAffected(result, name)
}

func checkAffected(result sql.Result, name string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("path %q: %w", name, domain.ErrNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPath(row scanner) (domain.PathRecord, error) {
	var (
		record               domain.PathRecord
		id, conf             string
		createdAt, updatedAt string
	)

	if err := row.Scan(&id, &conf, &createdAt, &updatedAt); err != nil {
		return domain.PathRecord{}, err
	}

	var err error
	if record.ID, err = uuid.Parse(id); err != nil {
		return domain.PathRecord{}, fmt.Errorf("parse id: %w", err)
	}
	if err = json.Unmarshal([]byte(conf), &record.Conf); err != nil {
		return domain.PathRecord{}, fmt.Errorf("unmarshal conf: %w", err)
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.PathRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.PathRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return record, nil
}
