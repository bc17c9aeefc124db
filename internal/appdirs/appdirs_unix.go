//go:build !windows

package appdirs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/adrg/xdg"
)

var dirPermsWarnOnce sync.Once

// RuntimeDir returns the directory used for runtime state (socket/token/pid/logs).
func RuntimeDir() (string, error) {
	if override := os.Getenv(runtimeDirEnv); override != "" {
		return ensureDir(override, true)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return ensureDir(filepath.Join(dir, appName), false)
}

// DataDir returns the directory used for persistent state (session history).
func DataDir() (string, error) {
	if override := os.Getenv(dataDirEnv); override != "" {
		return ensureDir(override, true)
	}
	return ensureDir(filepath.Join(xdg.DataHome, appName), false)
}

func ensureDir(dir string, isOverride bool) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("app dir is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat app dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create app dir: %w", err)
		}
		return dir, nil
	}
	if !info.IsDir() {
		return "", fmt.Errorf("app dir %q is not a directory", dir)
	}
	mode := info.Mode().Perm()
	if mode&0o077 == 0 {
		return dir, nil
	}
	if isOverride {
		dirPermsWarnOnce.Do(func() {
			slog.Warn("app dir is group/world accessible; consider chmod 0700", "path", dir, "mode", mode.String())
		})
		return dir, nil
	}
	if ownedByCurrentUser(info) {
		if err := os.Chmod(dir, 0o700); err != nil {
			return "", fmt.Errorf("chmod app dir: %w", err)
		}
		return dir, nil
	}
	dirPermsWarnOnce.Do(func() {
		slog.Warn("app dir is not owned by current user; permissions unchanged", "path", dir, "mode", mode.String())
	})
	return dir, nil
}

func ownedByCurrentUser(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Uid == uint32(os.Getuid())
}
