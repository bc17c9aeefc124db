package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSpawnLockStale is how old a spawn lock may be before another
	// client treats it as abandoned.
	DefaultSpawnLockStale = 10 * time.Second

	// DefaultSocketWait bounds the poll for the daemon socket after a
	// spawn attempt.
	DefaultSocketWait = 2 * time.Second

	socketPollInterval = 50 * time.Millisecond
)

// acquireSpawnLock takes the create-or-fail spawn lock. It approximates
// mutual exclusion between client instances racing to spawn the daemon; a
// lock older than stale is treated as abandoned and replaced.
func acquireSpawnLock(path string, stale time.Duration) (func(), bool) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(path) }, true
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}
		if time.Since(info.ModTime()) < stale {
			return nil, false
		}
		slog.Warn("removing stale daemon spawn lock", slog.String("lock", path))
		_ = os.Remove(path)
	}
	return nil, false
}

// spawnDaemon starts the daemon as a detached background process running
// the current binary's daemon subcommand.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("client: resolve executable: %w", err)
	}
	cmd := exec.Command(exe, "daemon")
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachDaemonCommand(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("client: spawn daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}
	return nil
}

// socketAlive reports whether something accepts connections on the socket.
func socketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// waitForSocket polls until the daemon socket accepts connections.
func waitForSocket(ctx context.Context, path string, bound time.Duration) error {
	deadline := time.NewTimer(bound)
	defer deadline.Stop()
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: socket %s did not appear", ErrDaemonUnavailable, path)
		case <-ticker.C:
			if socketAlive(path) {
				return nil
			}
		}
	}
}

// StopDaemon signals the daemon named by the pid file and waits for its
// socket to disappear.
func StopDaemon(ctx context.Context, socketPath, pidPath string) error {
	if !socketAlive(socketPath) {
		return nil
	}
	pid, err := readPidFile(pidPath)
	if err != nil {
		return err
	}
	if err := signalDaemonStop(pid); err != nil {
		return fmt.Errorf("client: signal daemon: %w", err)
	}
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("client: daemon did not stop")
		case <-ticker.C:
			if _, err := os.Stat(socketPath); os.IsNotExist(err) {
				return nil
			}
		}
	}
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("client: read pid file: %w", err)
	}
	value := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("client: pid file %s holds %q", path, value)
	}
	return pid, nil
}
