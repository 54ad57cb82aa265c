package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/config"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/httphelpers"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"git.netflux.io/rob/mtxdash/internal/store"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildConfig(t *testing.T, mtx *testhelpers.FakeMediaMTX) config.Config {
	t.Helper()

	return config.Config{
		MediaMTX: config.MediaMTX{
			APIURL:     mtx.URL,
			MetricsURL: mtx.URL + "/metrics",
			Timeout:    time.Second,
		},
		Database: config.Database{Path: filepath.Join(t.TempDir(), "mtxdash.db")},
		Refresh:  config.Refresh{Interval: time.Second},
	}
}

// startApp runs the app in the background, and returns its base URL. The app
// is stopped when the test ends.
func startApp(t *testing.T, cfg config.Config, bootstrap bool) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := New(Params{
		Config:       cfg,
		ListenerFunc: WithListener(lis),
		Bootstrap:    bootstrap,
		BuildInfo:    domain.BuildInfo{Version: "0.0.1"},
		Logger:       testhelpers.NewTestLogger(t),
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("timed out waiting for app to exit")
		}
	})

	scheme := "http"
	if cfg.TLS.Enabled() {
		scheme = "https"
	}

	return scheme + "://" + lis.Addr().String()
}

func TestAppRun(t *testing.T) {
	testCases := []struct {
		name  string
		tls   config.TLS
		proto string
	}{
		{
			name:  "h2c",
			proto: "HTTP/2.0",
		},
		{
			name:  "self-signed TLS",
			tls:   config.TLS{SelfSigned: true},
			proto: "HTTP/2.0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mtx := testhelpers.NewFakeMediaMTX(t)
			mtx.AddLivePath(domain.LivePath{Name: "pub1", Source: &domain.SourceRef{Type: "rtmpConn"}})

			cfg := buildConfig(t, mtx)
			cfg.TLS = tc.tls
			baseURL := startApp(t, cfg, false)

			httpClient, err := httphelpers.NewH2Client(t.Context(), baseURL, true)
			require.NoError(t, err)

			client := connect.NewClient[api.ListCombinedRequest, api.ListCombinedResponse](
				httpClient,
				baseURL+api.PathServiceListCombinedProcedure,
				connect.WithCodec(api.JSONCodec{}),
			)
			resp, err := client.CallUnary(t.Context(), connect.NewRequest(&api.ListCombinedRequest{}))
			require.NoError(t, err)
			require.Len(t, resp.Msg.Paths, 1)
			assert.Equal(t, "pub1", resp.Msg.Paths[0].Name)

			httpResp, err := httpClient.Get(baseURL + "/healthz")
			require.NoError(t, err)
			defer httpResp.Body.Close()
			assert.Equal(t, http.StatusOK, httpResp.StatusCode)
			assert.Equal(t, tc.proto, httpResp.Proto)

			metricsResp, err := httpClient.Get(baseURL + "/metrics")
			require.NoError(t, err)
			defer metricsResp.Body.Close()
			body, err := io.ReadAll(metricsResp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `mtxdash_rpc_request_duration_seconds_count{code="ok",procedure="/mtxdash.v1.PathService/ListCombined"} 1`)
			assert.Contains(t, string(body), "mtxdash_mediamtx_request_duration_seconds")
		})
	}
}

func TestAppRunBootstrap(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	mtx.AddPathConf(domain.PathConf{Name: "stale", Source: ptr.New(domain.SourcePublisher)})
	cfg := buildConfig(t, mtx)

	st, err := store.Open(t.Context(), cfg.Database.Path, testhelpers.NewNopLogger())
	require.NoError(t, err)
	_, err = st.InsertPath(t.Context(), domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://camera.local/stream")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	startApp(t, cfg, true)

	require.Eventually(
		t,
		func() bool {
			names := mtx.PathConfNames()
			return len(names) == 1 && names[0] == "cam1"
		},
		5*time.Second,
		50*time.Millisecond,
		"stored paths were not pushed to the media server",
	)
}

func TestAppBootstrap(t *testing.T) {
	mtx := testhelpers.NewFakeMediaMTX(t)
	cfg := buildConfig(t, mtx)

	st, err := store.Open(t.Context(), cfg.Database.Path, testhelpers.NewNopLogger())
	require.NoError(t, err)
	_, err = st.InsertPath(t.Context(), domain.PathConf{Name: "cam1", Source: ptr.New("rtsp://camera.local/stream")})
	require.NoError(t, err)
	_, err = st.ReplaceConfig(t.Context(), domain.GlobalConfig{"hls": false})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	app := New(Params{Config: cfg, Logger: testhelpers.NewTestLogger(t)})
	require.NoError(t, app.Bootstrap(t.Context()))

	assert.Equal(t, []string{"cam1"}, mtx.PathConfNames())
	assert.Equal(t, domain.GlobalConfig{"hls": false}, mtx.GlobalConfig())
}
