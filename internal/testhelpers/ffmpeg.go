package testhelpers

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// PublishTestStream publishes a generated test pattern to destURL with
// ffmpeg, until the test ends. The container format is chosen from the URL
// scheme. The test is skipped if ffmpeg is not installed.
func PublishTestStream(t *testing.T, destURL string) {
	t.Helper()

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}

	format := "flv"
	switch {
	case strings.HasPrefix(destURL, "rtsp://"):
		format = "rtsp"
	case strings.HasPrefix(destURL, "srt://"):
		format = "mpegts"
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-re",
		"-f", "lavfi",
		"-i", "testsrc=size=640x360:rate=30",
		"-vcodec", "libx264",
		"-g", "30", // one key frame per second
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-f", format,
		destURL,
	)
	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGINT)
		}
		cancel()
		_ = cmd.Wait()
	})
}
