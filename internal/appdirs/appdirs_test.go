package appdirs

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRuntimeDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(runtimeDirEnv, dir)

	got, err := RuntimeDir()
	if err != nil {
		t.Fatalf("RuntimeDir: %v", err)
	}
	if got != dir {
		t.Fatalf("RuntimeDir = %q, want %q", got, dir)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(dataDirEnv, dir)

	got, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if got != dir {
		t.Fatalf("DataDir = %q, want %q", got, dir)
	}
}

func TestRuntimePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(runtimeDirEnv, dir)
	t.Setenv(dataDirEnv, dir)

	cases := []struct {
		name string
		fn   func() (string, error)
		base string
	}{
		{"socket", SocketPath, "daemon.sock"},
		{"token", TokenPath, "daemon.token"},
		{"pid", PidPath, "daemon.pid"},
		{"spawn lock", SpawnLockPath, "daemon.spawn.lock"},
		{"log", LogPath, "daemon.log"},
		{"history", HistoryDir, "history"},
		{"config", ConfigPath, "config.yaml"},
	}
	for _, tc := range cases {
		path, err := tc.fn()
		if err != nil {
			t.Fatalf("%s path: %v", tc.name, err)
		}
		if filepath.Base(path) != tc.base {
			t.Fatalf("%s path = %q, want base %q", tc.name, path, tc.base)
		}
		if !strings.HasPrefix(path, dir) {
			t.Fatalf("%s path %q not under %q", tc.name, path, dir)
		}
	}
}
