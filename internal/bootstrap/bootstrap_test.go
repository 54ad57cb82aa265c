package bootstrap_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"git.netflux.io/rob/mtxdash/internal/bootstrap"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"git.netflux.io/rob/mtxdash/internal/store"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBootstrapper(t *testing.T, mtx *testhelpers.FakeMediaMTX, s *store.Store) *bootstrap.Bootstrapper {
	t.Helper()

	logger := testhelpers.NewTestLogger(t)
	client, err := mediaserver.NewClient(mediaserver.NewClientParams{APIURL: mtx.URL, Logger: logger})
	require.NoError(t, err)

	return bootstrap.New(bootstrap.NewParams{
		MediaServer:   client,
		Store:         s,
		ReadyInterval: 10 * time.Millisecond,
		Logger:        logger,
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.SetGlobalConfig(domain.GlobalConfig{"rtsp": true, "hls": true})
	mtx.AddPathConf(domain.PathConf{Name: domain.CatchAllPathName})
	mtx.AddPathConf(domain.PathConf{Name: "stale"})
	mtx.AddPathConf(domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://old")})

	s := testhelpers.NewTestStore(
		t,
		domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://new")},
		domain.PathConf{Name: "cam2", Source: ptr.New(domain.SourcePublisher)},
	)
	_, err := s.ReplaceConfig(ctx, domain.GlobalConfig{"rtsp": false})
	require.NoError(t, err)

	require.NoError(t, newBootstrapper(t, mtx, s).Run(ctx))

	assert.Equal(t, domain.GlobalConfig{"rtsp": false, "hls": true}, mtx.GlobalConfig())
	assert.ElementsMatch(t, []string{domain.CatchAllPathName, "cam1", "cam2"}, mtx.PathConfNames())

	conf, ok := mtx.PathConf("cam1")
	require.True(t, ok)
	assert.Equal(t, ptr.New("rtsp://new"), conf.Source)
}

func TestRunWithoutStoredConfig(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	s := testhelpers.NewTestStore(t, domain.PathConf{Name: "cam1"})

	require.NoError(t, newBootstrapper(t, mtx, s).Run(t.Context()))

	assert.Zero(t, mtx.CountRequests(http.MethodPatch, "/v3/config/global/patch"))
	assert.Equal(t, []string{"cam1"}, mtx.PathConfNames())
}

func TestRunWaitsForMediaServer(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.SetUnavailable(true)
	s := testhelpers.NewTestStore(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		mtx.SetUnavailable(false)
	}()

	require.NoError(t, newBootstrapper(t, mtx, s).Run(t.Context()))
	assert.Greater(t, mtx.CountRequests(http.MethodGet, "/v3/config/paths/list"), 1)
}

func TestRunCancelled(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.SetUnavailable(true)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := newBootstrapper(t, mtx, testhelpers.NewTestStore(t)).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunPathFailures(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.FailRequests(http.MethodPost, "/v3/config/paths/add/bad", http.StatusBadRequest)
	s := testhelpers.NewTestStore(t, domain.PathConf{Name: "bad1"}, domain.PathConf{Name: "bad2"}, domain.PathConf{Name: "good"})

	err := newBootstrapper(t, mtx, s).Run(t.Context())
	require.Error(t, err)
	assert.ErrorContains(t, err, `sync "bad1": unexpected status code: 400: injected failure`)
	assert.ErrorContains(t, err, `sync "bad2": unexpected status code: 400: injected failure`)

	assert.Equal(t, []string{"good"}, mtx.PathConfNames(), "remaining paths are still attempted")
}

func TestRunConfigFailureAborts(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.FailRequests(http.MethodPatch, "/v3/config/global/patch", http.StatusInternalServerError)
	s := testhelpers.NewTestStore(t, domain.PathConf{Name: "cam1"})
	_, err := s.ReplaceConfig(t.Context(), domain.GlobalConfig{"rtsp": false})
	require.NoError(t, err)

	err = newBootstrapper(t, mtx, s).Run(t.Context())
	require.ErrorContains(t, err, "patch global config")
	assert.Empty(t, mtx.PathConfNames())
}
