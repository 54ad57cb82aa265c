package httphelpers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"git.netflux.io/rob/mtxdash/internal/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewH2Client(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	})

	t.Run("TLS", func(t *testing.T) {
		srv := httptest.NewUnstartedServer(handler)
		srv.EnableHTTP2 = true
		srv.StartTLS()
		t.Cleanup(srv.Close)

		client, err := httphelpers.NewH2Client(t.Context(), srv.URL, true)
		require.NoError(t, err)

		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "HTTP/2.0", string(body))
	})

	t.Run("TLS with verification", func(t *testing.T) {
		srv := httptest.NewTLSServer(handler)
		t.Cleanup(srv.Close)

		_, err := httphelpers.NewH2Client(t.Context(), srv.URL, false)
		require.ErrorContains(t, err, "test TLS connection:")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := httphelpers.NewH2Client(t.Context(), "ftp://localhost:8080", false)
		require.EqualError(t, err, `unsupported scheme "ftp" (must be http or https)`)
	})
}
