package xdg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

// CreateAppStateDir creates the application state directory, which holds the
// database and log file. It is at:
//
//   - Linux: $XDG_STATE_HOME/mtxdash, or ~/.local/state/mtxdash
//   - macOS: ~/Library/Caches/mtxdash
func CreateAppStateDir() (string, error) {
	dir, err := appStateDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0744); err != nil {
		return "", fmt.Errorf("mkdir all: %w", err)
	}

	return dir, nil
}

func appStateDir() (string, error) {
	if runtime.GOOS == "windows" {
		// TODO: Windows support
		return "", errors.New("not implemented")
	}

	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" && runtime.GOOS != "darwin" {
		return filepath.Join(stateHome, domain.AppName), nil
	}

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(userHomeDir, "Library", "Caches", domain.AppName), nil
	}

	return filepath.Join(userHomeDir, ".local", "state", domain.AppName), nil
}
