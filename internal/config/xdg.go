package config

import (
	"fmt"
	"os"
	"path/filepath"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

func createAppConfigDir(configDir string) (string, error) {
	path := filepath.Join(configDir, domain.AppName)
	if err := os.MkdirAll(path, 0744); err != nil {
		return "", fmt.Errorf("mkdir all: %w", err)
	}

	return path, nil
}
