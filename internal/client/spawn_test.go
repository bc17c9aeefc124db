package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSpawnLockExclusive(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "spawn.lock")

	release, acquired := acquireSpawnLock(lock, time.Minute)
	if !acquired {
		t.Fatal("first acquire should win")
	}
	if _, again := acquireSpawnLock(lock, time.Minute); again {
		t.Fatal("second acquire should lose while the lock is held")
	}

	release()
	release2, acquired := acquireSpawnLock(lock, time.Minute)
	if !acquired {
		t.Fatal("acquire after release should win")
	}
	release2()
}

func TestSpawnLockStaleReplaced(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "spawn.lock")
	if err := os.WriteFile(lock, []byte("12345"), 0o600); err != nil {
		t.Fatalf("plant lock: %v", err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lock, old, old); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	release, acquired := acquireSpawnLock(lock, 10*time.Second)
	if !acquired {
		t.Fatal("stale lock should be replaced")
	}
	data, err := os.ReadFile(lock)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if string(data) == "12345" {
		t.Fatal("lock still holds the stale owner's pid")
	}
	release()
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Fatalf("lock not removed on release: %v", err)
	}
}
