package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoHistory is returned when a session has no persisted metadata.
var ErrNoHistory = errors.New("history: no persisted session")

// Reader inspects persisted session history. It is stateless; every call
// reads from disk.
type Reader struct {
	baseDir string
}

func NewReader(baseDir string) *Reader {
	return &Reader{baseDir: baseDir}
}

// Exists reports whether session metadata is present on disk.
func (r *Reader) Exists(workspaceID, paneID string) bool {
	dir, err := sessionDir(r.baseDir, workspaceID, paneID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, metaFileName))
	return err == nil
}

// ReadMeta loads a session's metadata record.
func (r *Reader) ReadMeta(workspaceID, paneID string) (SessionMeta, error) {
	dir, err := sessionDir(r.baseDir, workspaceID, paneID)
	if err != nil {
		return SessionMeta{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return SessionMeta{}, ErrNoHistory
		}
		return SessionMeta{}, fmt.Errorf("history: read metadata: %w", err)
	}
	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SessionMeta{}, fmt.Errorf("history: decode metadata: %w", err)
	}
	return meta, nil
}

// ReadScrollback returns the raw scrollback log. A session with metadata but
// no log yields an empty slice.
func (r *Reader) ReadScrollback(workspaceID, paneID string) ([]byte, error) {
	dir, err := sessionDir(r.baseDir, workspaceID, paneID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, scrollbackFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read scrollback: %w", err)
	}
	return data, nil
}

// UncleanShutdown reports whether the session's last run never closed
// gracefully: metadata exists and endedAt is absent.
func (r *Reader) UncleanShutdown(workspaceID, paneID string) bool {
	meta, err := r.ReadMeta(workspaceID, paneID)
	if err != nil {
		return false
	}
	return meta.Unclean()
}

// Delete removes a session's history directory. Used for explicit history
// deletion, never as part of normal close.
func (r *Reader) Delete(workspaceID, paneID string) error {
	dir, err := sessionDir(r.baseDir, workspaceID, paneID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("history: delete session dir: %w", err)
	}
	return nil
}
