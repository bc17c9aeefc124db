// Package appdirs resolves the per-user directories hearth stores runtime
// and persistent state in.
package appdirs

import (
	"path/filepath"

	"github.com/hearthdev/hearth/internal/identity"
)

const (
	appName = identity.AppSlug

	runtimeDirEnv = "HEARTH_RUNTIME_DIR"
	dataDirEnv    = "HEARTH_DATA_DIR"
)

// SocketPath returns the daemon's unix socket path.
func SocketPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.sock"), nil
}

// TokenPath returns the path of the shared-secret token file.
func TokenPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.token"), nil
}

// PidPath returns the daemon pid file path.
func PidPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.pid"), nil
}

// SpawnLockPath returns the client-side daemon spawn lock path.
func SpawnLockPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.spawn.lock"), nil
}

// LogPath returns the daemon log file path.
func LogPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.log"), nil
}

// HistoryDir returns the root directory for per-session scrollback history.
func HistoryDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// ConfigPath returns the daemon config file path.
func ConfigPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, identity.GlobalConfigFile), nil
}
