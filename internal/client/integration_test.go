//go:build integration

package client_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"git.netflux.io/rob/mtxdash/internal/client"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"git.netflux.io/rob/mtxdash/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const waitTime = time.Minute

// mediaMTXContainer is a MediaMTX instance running in a container.
type mediaMTXContainer struct {
	apiURL     string
	metricsURL string
	rtmpURL    string
}

func startMediaMTX(ctx context.Context, t *testing.T) mediaMTXContainer {
	t.Helper()

	cfg, err := mediaserver.NewConfig(mediaserver.NewConfigParams{
		APIURL:     "http://localhost:9997",
		MetricsURL: "http://localhost:9998/metrics",
	})
	require.NoError(t, err)
	cfgBytes, err := cfg.Marshal()
	require.NoError(t, err)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "bluenviron/mediamtx:latest",
			ExposedPorts: []string{"1935/tcp", "9997/tcp", "9998/tcp"},
			Files: []testcontainers.ContainerFile{
				{
					Reader:            bytes.NewReader(cfgBytes),
					ContainerFilePath: "/mediamtx.yml",
					FileMode:          0o644,
				},
			},
			WaitingFor: wait.ForHTTP("/v3/paths/list").WithPort("9997/tcp").WithStartupTimeout(waitTime),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	apiURL, err := container.PortEndpoint(ctx, "9997/tcp", "http")
	require.NoError(t, err)
	metricsURL, err := container.PortEndpoint(ctx, "9998/tcp", "http")
	require.NoError(t, err)
	rtmpURL, err := container.PortEndpoint(ctx, "1935/tcp", "rtmp")
	require.NoError(t, err)

	return mediaMTXContainer{
		apiURL:     apiURL,
		metricsURL: metricsURL + "/metrics",
		rtmpURL:    rtmpURL,
	}
}

func TestIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Minute)
	defer cancel()

	mtx := startMediaMTX(ctx, t)
	serverURL := startServerWithConfig(t, mtx.apiURL, mtx.metricsURL)

	var out syncBuffer
	app := client.New(client.NewParams{
		ServerURL: serverURL,
		Out:       &out,
		Logger:    testhelpers.NewTestLogger(t).With("component", "integration"),
	})

	require.NoError(t, app.Health(ctx))
	assert.Equal(t, "Media server is reachable.\n", out.String())

	// A proxy path, which is registered with MediaMTX and stored.
	out.Reset()
	require.NoError(t, app.CreatePath(ctx, domain.PathConf{
		Name:           "cam1",
		Source:         ptr.New("rtsp://camera.invalid/stream"),
		SourceOnDemand: ptr.New(true),
	}))

	// A publisher path, fed by ffmpeg.
	require.NoError(t, app.CreatePath(ctx, domain.PathConf{Name: "pub1"}))
	testhelpers.PublishTestStream(t, mtx.rtmpURL+"/pub1")

	require.EventuallyWithT(
		t,
		func(c *assert.CollectT) {
			out.Reset()
			if !assert.NoError(c, app.ListPublishers(ctx)) {
				return
			}
			assert.Contains(c, out.String(), "pub1")
			assert.Contains(c, out.String(), "H264")
		},
		waitTime,
		time.Second,
		"expected pub1 to be published",
	)

	out.Reset()
	require.NoError(t, app.ListPaths(ctx))
	t.Log(out.String())
	assert.Contains(t, out.String(), "cam1")
	assert.Contains(t, out.String(), "pub1")

	out.Reset()
	require.NoError(t, app.ListSessions(ctx, domain.ProtocolRTMP))
	assert.Contains(t, out.String(), "pub1")

	require.EventuallyWithT(
		t,
		func(c *assert.CollectT) {
			out.Reset()
			if !assert.NoError(c, app.Metrics(ctx)) {
				return
			}
			assert.Contains(c, out.String(), "pub1")
		},
		waitTime,
		time.Second,
		"expected metrics for pub1",
	)

	// Disabling the path removes it from MediaMTX but keeps it stored.
	out.Reset()
	require.NoError(t, app.TogglePath(ctx, "cam1", false))
	out.Reset()
	require.NoError(t, app.GetPath(ctx, "cam1"))
	assert.Contains(t, out.String(), "rtsp://camera.invalid/stream")

	require.NoError(t, app.TogglePath(ctx, "cam1", true))
	require.NoError(t, app.RemovePath(ctx, "cam1"))
	err := app.GetPath(ctx, "cam1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	// Global config round trip.
	require.NoError(t, app.SetConfig(ctx, domain.GlobalConfig{"logLevel": "debug"}))
	require.NoError(t, app.SyncConfig(ctx, "mtx"))
	out.Reset()
	require.NoError(t, app.GetConfig(ctx))
	assert.NotContains(t, out.String(), "differ")
	assert.Contains(t, out.String(), fmt.Sprintf("%q", "debug"))
}
