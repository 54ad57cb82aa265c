package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"git.netflux.io/rob/mtxdash/internal/store"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mtxdash.db")

	s, err := store.Open(ctx, path, testhelpers.NewTestLogger(t))
	require.NoError(t, err)
	_, err = s.InsertPath(ctx, domain.PathConf{Name: "cam1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, path, testhelpers.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Ping(ctx))
	records, err := s.ListPaths(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cam1", records[0].Name())
}

func TestPaths(t *testing.T) {
	ctx := context.Background()
	s := testhelpers.NewTestStore(t)

	records, err := s.ListPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	conf := domain.PathConf{
		Name:         "cams/front",
		Source:       ptr.New("rtsp://10.0.0.1/stream"),
		Record:       ptr.New(true),
		RecordFormat: ptr.New("fmp4"),
		MaxReaders:   ptr.New(5),
		Extra:        map[string]any{"rpiCameraWidth": float64(1920)},
	}

	inserted, err := s.InsertPath(ctx, conf)
	require.NoError(t, err)
	assert.NotZero(t, inserted.ID)
	assert.WithinDuration(t, time.Now(), inserted.CreatedAt, 5*time.Second)
	assert.Equal(t, inserted.CreatedAt, inserted.UpdatedAt)

	_, err = s.InsertPath(ctx, domain.PathConf{Name: "cams/front"})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = s.InsertPath(ctx, domain.PathConf{Name: "a-publisher"})
	require.NoError(t, err)

	got, err := s.GetPath(ctx, "cams/front")
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, got.ID)
	assert.Equal(t, conf, got.Conf)
	assert.True(t, inserted.CreatedAt.Equal(got.CreatedAt))

	records, err = s.ListPaths(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a-publisher", records[0].Name())
	assert.Equal(t, "cams/front", records[1].Name())

	updatedConf := conf
	updatedConf.Record = ptr.New(false)
	updated, err := s.UpdatePath(ctx, updatedConf)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, updated.ID)
	assert.False(t, updated.Conf.IsRecording())
	assert.True(t, inserted.CreatedAt.Equal(updated.CreatedAt))
	assert.False(t, updated.UpdatedAt.Before(inserted.UpdatedAt))

	_, err = s.UpdatePath(ctx, domain.PathConf{Name: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.DeletePath(ctx, "cams/front"))
	require.ErrorIs(t, s.DeletePath(ctx, "cams/front"), domain.ErrNotFound)

	_, err = s.GetPath(ctx, "cams/front")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, `path "cams/front": not found`)
}

func TestNewTestStoreSeedsPaths(t *testing.T) {
	s := testhelpers.NewTestStore(t, domain.PathConf{Name: "b"}, domain.PathConf{Name: "a"})

	records, err := s.ListPaths(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Name())
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	s := testhelpers.NewTestStore(t)

	_, err := s.GetConfig(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	row, err := s.MergeConfig(ctx, domain.GlobalConfig{"rtsp": true})
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalConfig{"rtsp": true}, row.Config)

	merged, err := s.MergeConfig(ctx, domain.GlobalConfig{"rtspAddress": ":8554"})
	require.NoError(t, err)
	assert.Equal(t, row.ID, merged.ID)
	assert.Equal(t, domain.GlobalConfig{"rtsp": true, "rtspAddress": ":8554"}, merged.Config)

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, merged.Config, got.Config)
	assert.True(t, row.CreatedAt.Equal(got.CreatedAt))

	replaced, err := s.ReplaceConfig(ctx, domain.GlobalConfig{"rtmp": false})
	require.NoError(t, err)
	assert.Equal(t, row.ID, replaced.ID)

	got, err = s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalConfig{"rtmp": false}, got.Config)
}

func TestReplaceConfigInsertsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := testhelpers.NewTestStore(t)

	row, err := s.ReplaceConfig(ctx, domain.GlobalConfig{"logLevel": "info"})
	require.NoError(t, err)
	assert.NotZero(t, row.ID)

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalConfig{"logLevel": "info"}, got.Config)
}
