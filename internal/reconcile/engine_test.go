package reconcile_test

import (
	"context"
	"net/http"
	"testing"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"git.netflux.io/rob/mtxdash/internal/reconcile"
	"git.netflux.io/rob/mtxdash/internal/store"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *reconcile.Engine
	mtx    *testhelpers.FakeMediaMTX
	store  *store.Store
}

func setup(t *testing.T, stored ...domain.PathConf) fixture {
	t.Helper()

	logger := testhelpers.NewTestLogger(t)
	mtx := testhelpers.NewFakeMediaMTX(t)
	client, err := mediaserver.NewClient(mediaserver.NewClientParams{APIURL: mtx.URL, Logger: logger})
	require.NoError(t, err)

	s := testhelpers.NewTestStore(t, stored...)

	return fixture{
		engine: reconcile.NewEngine(reconcile.NewEngineParams{MediaServer: client, Store: s, Logger: logger}),
		mtx:    mtx,
		store:  s,
	}
}

func TestListCombinedScenarios(t *testing.T) {
	t.Run("stored path absent from server", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")})

		rows, err := f.engine.ListCombined(t.Context())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "cam1", rows[0].Name)
		assert.True(t, rows[0].IsInDB)
		assert.False(t, rows[0].IsActive)
	})

	t.Run("live publisher path", func(t *testing.T) {
		f := setup(t)
		f.mtx.AddLivePath(domain.LivePath{Name: "pub1", ConfName: domain.CatchAllPathName})
		f.mtx.AddPathConf(domain.PathConf{Name: domain.CatchAllPathName})

		rows, err := f.engine.ListCombined(t.Context())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "pub1", rows[0].Name)
		assert.True(t, rows[0].IsActive)
		assert.False(t, rows[0].IsInDB)
		assert.Equal(t, domain.PathKindSession, rows[0].Kind)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1"}, domain.PathConf{Name: "cam2"})
		f.mtx.AddLivePath(domain.LivePath{Name: "cam2", Ready: true})
		f.mtx.AddPathConf(domain.PathConf{Name: "cam3", Source: ptr.New("srt://y")})

		first, err := f.engine.ListCombined(t.Context())
		require.NoError(t, err)
		second, err := f.engine.ListCombined(t.Context())
		require.NoError(t, err)

		assert.Len(t, first, 3)
		assert.Equal(t, first, second)
	})

	t.Run("fetch failure", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1"})
		f.mtx.FailRequests(http.MethodGet, "/v3/config/paths/list", http.StatusInternalServerError)

		_, err := f.engine.ListCombined(t.Context())
		require.ErrorContains(t, err, "list path configs: unexpected status code: 500")
	})
}

func TestCreate(t *testing.T) {
	testCases := []struct {
		name         string
		conf         domain.PathConf
		failRequests func(*testhelpers.FakeMediaMTX)
		wantErr      string
		wantStored   bool
		wantOnServer bool
	}{
		{
			name:         "session path",
			conf:         domain.PathConf{Name: "pub2"},
			wantStored:   true,
			wantOnServer: true,
		},
		{
			name:         "proxy path",
			conf:         domain.PathConf{Name: "cams/front", Source: ptr.New("rtsp://10.0.0.1"), Record: ptr.New(true)},
			wantStored:   true,
			wantOnServer: true,
		},
		{
			name:    "empty name",
			conf:    domain.PathConf{Name: ""},
			wantErr: "validation failed: name: Name is required",
		},
		{
			name: "add rejected",
			conf: domain.PathConf{Name: "cam1"},
			failRequests: func(f *testhelpers.FakeMediaMTX) {
				f.FailRequests(http.MethodPost, "/v3/config/paths/add/", http.StatusBadRequest)
			},
			wantErr: "add path config: unexpected status code: 400: injected failure",
		},
		{
			name: "resolve fails after add",
			conf: domain.PathConf{Name: "cam1"},
			failRequests: func(f *testhelpers.FakeMediaMTX) {
				f.FailRequests(http.MethodGet, "/v3/config/paths/get/", http.StatusInternalServerError)
			},
			wantErr:      "get path config: unexpected status code: 500: injected failure",
			wantOnServer: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			if tc.failRequests != nil {
				tc.failRequests(f.mtx)
			}

			record, err := f.engine.Create(t.Context(), tc.conf)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.conf.Name, record.Name())
				assert.NotNil(t, record.Conf.Source, "resolved config is persisted")
			}

			_, err = f.store.GetPath(t.Context(), tc.conf.Name)
			assert.Equal(t, tc.wantStored, err == nil)

			_, ok := f.mtx.PathConf(tc.conf.Name)
			assert.Equal(t, tc.wantOnServer, ok)
		})
	}
}

func TestCreateAlreadyStored(t *testing.T) {
	// cam1 is stored but disabled, so it is absent from the server.
	f := setup(t, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")})

	_, err := f.engine.Create(t.Context(), domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://y")})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, ok := f.mtx.PathConf("cam1")
	assert.False(t, ok, "path must not be registered")
	assert.Zero(t, f.mtx.CountRequests(http.MethodPost, "/v3/config/paths/add/"))

	record, err := f.store.GetPath(t.Context(), "cam1")
	require.NoError(t, err)
	assert.Equal(t, ptr.New("rtsp://x"), record.Conf.Source)
}

func TestCreateValidationMakesNoRequests(t *testing.T) {
	f := setup(t)

	_, err := f.engine.Create(t.Context(), domain.PathConf{Name: "/bad"})
	var validationErrs domain.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Equal(t, []string{"Name cannot begin with a slash"}, validationErrs["name"])
	assert.Empty(t, f.mtx.Requests())
}

func TestSync(t *testing.T) {
	t.Run("configured path", func(t *testing.T) {
		f := setup(t)
		f.mtx.AddPathConf(domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")})

		record, err := f.engine.Sync(t.Context(), "cam1")
		require.NoError(t, err)
		assert.Equal(t, ptr.New("rtsp://x"), record.Conf.Source)
		assert.Zero(t, f.mtx.CountRequests(http.MethodPost, "/v3/config/paths/add/"))
	})

	t.Run("publisher path without config", func(t *testing.T) {
		f := setup(t)
		f.mtx.AddLivePath(domain.LivePath{Name: "pub1", ConfName: domain.CatchAllPathName, Source: &domain.SourceRef{Type: "rtmpConn"}})

		record, err := f.engine.Sync(t.Context(), "pub1")
		require.NoError(t, err)
		assert.Equal(t, ptr.New(domain.SourcePublisher), record.Conf.Source)

		conf, ok := f.mtx.PathConf("pub1")
		require.True(t, ok)
		assert.Equal(t, domain.PathKindSession, conf.Kind())

		rows, err := f.engine.ListCombined(t.Context())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsActive)
		assert.True(t, rows[0].IsInDB)
	})

	t.Run("already stored", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1"})

		_, err := f.engine.Sync(t.Context(), "cam1")
		require.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("unknown path", func(t *testing.T) {
		f := setup(t)

		_, err := f.engine.Sync(t.Context(), "ghost")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRemove(t *testing.T) {
	t.Run("absent from store", func(t *testing.T) {
		f := setup(t)

		err := f.engine.Remove(t.Context(), "ghost")
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, f.mtx.Requests(), "no external call")
	})

	t.Run("absent from server", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")})

		require.NoError(t, f.engine.Remove(t.Context(), "cam1"))

		_, err := f.store.GetPath(t.Context(), "cam1")
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 1, f.mtx.CountRequests(http.MethodGet, "/v3/config/paths/get/cam1"))
		assert.Zero(t, f.mtx.CountRequests(http.MethodDelete, "/"))
	})

	t.Run("registered", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1"})
		f.mtx.AddPathConf(domain.PathConf{Name: "cam1"})

		require.NoError(t, f.engine.Remove(t.Context(), "cam1"))

		_, ok := f.mtx.PathConf("cam1")
		assert.False(t, ok)
		_, err := f.store.GetPath(t.Context(), "cam1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("probe fails", func(t *testing.T) {
		f := setup(t, domain.PathConf{Name: "cam1"})
		f.mtx.FailRequests(http.MethodGet, "/v3/config/paths/get/", http.StatusInternalServerError)

		require.Error(t, f.engine.Remove(t.Context(), "cam1"))

		_, err := f.store.GetPath(t.Context(), "cam1")
		require.NoError(t, err, "store row kept")
	})
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x"), Record: ptr.New(true)})

	before, err := f.store.GetPath(ctx, "cam1")
	require.NoError(t, err)

	require.NoError(t, f.engine.Toggle(ctx, "cam1", true))
	conf, ok := f.mtx.PathConf("cam1")
	require.True(t, ok)
	assert.Equal(t, ptr.New("rtsp://x"), conf.Source)
	assert.True(t, conf.IsRecording())

	require.NoError(t, f.engine.Toggle(ctx, "cam1", false))
	_, ok = f.mtx.PathConf("cam1")
	assert.False(t, ok, "server reports path absent")

	after, err := f.store.GetPath(ctx, "cam1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "store row unchanged")

	require.ErrorIs(t, f.engine.Toggle(ctx, "cam1", false), domain.ErrNotFound)
	require.ErrorIs(t, f.engine.Toggle(ctx, "ghost", true), domain.ErrNotFound)
}

func TestGetPathState(t *testing.T) {
	f := setup(t)
	f.mtx.AddLivePath(domain.LivePath{Name: "cam1", Ready: true, Tracks: []string{"H264"}})

	path, found, err := f.engine.GetPathState(t.Context(), "cam1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, path.Ready)
	assert.Equal(t, []string{"H264"}, path.Tracks)

	_, found, err = f.engine.GetPathState(t.Context(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)

	f.mtx.SetUnavailable(true)
	_, _, err = f.engine.GetPathState(t.Context(), "cam1")
	require.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	f := setup(t)
	assert.True(t, f.engine.Healthcheck(t.Context()))

	f.mtx.SetUnavailable(true)
	assert.False(t, f.engine.Healthcheck(t.Context()))
}

func TestGetPathConfigAndUpdate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")}, domain.PathConf{Name: "cam2"})
	f.mtx.AddPathConf(domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://x")})

	_, err := f.engine.GetPathConfig(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)

	record, err := f.engine.Update(ctx, domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://y"), Record: ptr.New(true)})
	require.NoError(t, err)
	assert.True(t, record.Conf.IsRecording())

	conf, ok := f.mtx.PathConf("cam1")
	require.True(t, ok)
	assert.Equal(t, ptr.New("rtsp://y"), conf.Source)

	got, err := f.engine.GetPathConfig(ctx, "cam1")
	require.NoError(t, err)
	assert.Equal(t, ptr.New("rtsp://y"), got.Conf.Source)

	// cam2 is stored but disabled: only the stored copy is updated.
	_, err = f.engine.Update(ctx, domain.PathConf{Name: "cam2", MaxReaders: ptr.New(3)})
	require.NoError(t, err)
	_, ok = f.mtx.PathConf("cam2")
	assert.False(t, ok)

	_, err = f.engine.Update(ctx, domain.PathConf{Name: "ghost"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Update(ctx, domain.PathConf{Name: "cam1", RecordFormat: ptr.New("avi")})
	require.EqualError(t, err, "validation failed: recordFormat: Record format must be fmp4 or mpegts")
}

func TestUpdatePartial(t *testing.T) {
	testCases := []struct {
		name       string
		registered bool
	}{
		{name: "registered", registered: true},
		{name: "stored only"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := domain.PathConf{
				Name:       "cam1",
				Source:     ptr.New("rtsp://x"),
				MaxReaders: ptr.New(5),
				Extra:      map[string]any{"rpiCameraWidth": float64(1920)},
			}
			f := setup(t, conf)
			if tc.registered {
				f.mtx.AddPathConf(conf)
			}

			record, err := f.engine.Update(t.Context(), domain.PathConf{Name: "cam1", Record: ptr.New(true)})
			require.NoError(t, err)
			assert.True(t, record.Conf.IsRecording())
			assert.Equal(t, ptr.New("rtsp://x"), record.Conf.Source)
			assert.Equal(t, ptr.New(5), record.Conf.MaxReaders)
			assert.Equal(t, map[string]any{"rpiCameraWidth": float64(1920)}, record.Conf.Extra)

			stored, err := f.store.GetPath(t.Context(), "cam1")
			require.NoError(t, err)
			assert.Equal(t, record.Conf, stored.Conf)

			if tc.registered {
				onServer, ok := f.mtx.PathConf("cam1")
				require.True(t, ok)
				assert.Equal(t, onServer.Source, stored.Conf.Source)
				assert.Equal(t, onServer.Record, stored.Conf.Record)
			}

			// Enabling registers the merged proxy path.
			if tc.registered {
				require.NoError(t, f.engine.Toggle(t.Context(), "cam1", false))
			}
			require.NoError(t, f.engine.Toggle(t.Context(), "cam1", true))
			onServer, ok := f.mtx.PathConf("cam1")
			require.True(t, ok)
			assert.Equal(t, domain.PathKindProxy, onServer.Kind())
			assert.True(t, onServer.IsRecording())
		})
	}
}

func TestListPublishers(t *testing.T) {
	f := setup(t)
	f.mtx.AddLivePath(domain.LivePath{Name: "pub1", Source: &domain.SourceRef{Type: "rtmpConn"}})
	f.mtx.AddLivePath(domain.LivePath{Name: "cam1", Source: &domain.SourceRef{Type: "rtspSource"}})
	f.mtx.AddLivePath(domain.LivePath{Name: "idle"})
	f.mtx.AddLivePath(domain.LivePath{Name: "pub2", Source: &domain.SourceRef{Type: "webRTCSession"}})

	publishers, err := f.engine.ListPublishers(t.Context())
	require.NoError(t, err)
	require.Len(t, publishers, 2)
	assert.Equal(t, "pub1", publishers[0].Name)
	assert.Equal(t, "pub2", publishers[1].Name)
}
