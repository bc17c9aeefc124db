//go:build windows

package appdirs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// RuntimeDir returns the directory used for runtime state (socket/token/pid/logs).
func RuntimeDir() (string, error) {
	if override := os.Getenv(runtimeDirEnv); override != "" {
		return ensureDir(override)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return ensureDir(filepath.Join(dir, appName))
}

// DataDir returns the directory used for persistent state (session history).
func DataDir() (string, error) {
	if override := os.Getenv(dataDirEnv); override != "" {
		return ensureDir(override)
	}
	return ensureDir(filepath.Join(xdg.DataHome, appName))
}

func ensureDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("app dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create app dir: %w", err)
	}
	return dir, nil
}
