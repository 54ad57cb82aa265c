package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/shortid"
	"git.netflux.io/rob/mtxdash/internal/store"
	"github.com/stretchr/testify/require"
)

// NewTestStore creates a new SQLite store, isolated in a temporary directory,
// for testing. Any given paths are inserted before it is returned.
func NewTestStore(t *testing.T, paths ...domain.PathConf) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test-"+shortid.New().String()+".db")
	s, err := store.Open(context.Background(), path, NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, conf := range paths {
		_, err := s.InsertPath(context.Background(), conf)
		require.NoError(t, err)
	}

	return s
}
