package api_test

import (
	"testing"

	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec(t *testing.T) {
	var codec api.JSONCodec
	assert.Equal(t, "json", codec.Name())

	t.Run("path conf extras survive", func(t *testing.T) {
		req := api.CreatePathRequest{Conf: domain.PathConf{
			Name:   "cam1",
			Source: ptr.New("rtsp://camera"),
			Extra:  map[string]any{"rpiCameraWidth": 1920.0},
		}}

		b, err := codec.Marshal(req)
		require.NoError(t, err)
		assert.JSONEq(t, `{"conf":{"name":"cam1","source":"rtsp://camera","rpiCameraWidth":1920}}`, string(b))

		var got api.CreatePathRequest
		require.NoError(t, codec.Unmarshal(b, &got))
		assert.Equal(t, req, got)
	})

	t.Run("empty body", func(t *testing.T) {
		var got api.ListCombinedRequest
		require.NoError(t, codec.Unmarshal(nil, &got))
	})

	t.Run("invalid body", func(t *testing.T) {
		var got api.SyncPathRequest
		require.ErrorContains(t, codec.Unmarshal([]byte(`{"name":1}`), &got), "unmarshal *api.SyncPathRequest:")
	})
}
