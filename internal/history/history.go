// Package history persists per-session scrollback and metadata so a
// session's content survives daemon restarts. Each session owns a directory
// keyed by workspace then pane, holding a raw scrollback log and a JSON
// metadata file.
package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	scrollbackFileName = "scrollback.log"
	metaFileName       = "meta.json"
)

// SessionMeta is the on-disk record for one session. EndedAt is written only
// on graceful close; its absence after a restart marks an unclean shutdown.
type SessionMeta struct {
	WorkspaceID    string     `json:"workspaceId"`
	PaneID         string     `json:"paneId"`
	Cwd            string     `json:"cwd,omitempty"`
	Shell          string     `json:"shell,omitempty"`
	Cols           int        `json:"cols"`
	Rows           int        `json:"rows"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastAttachedAt time.Time  `json:"lastAttachedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	ExitCode       *int       `json:"exitCode,omitempty"`
}

// Unclean reports whether this record describes a session that never closed
// gracefully.
func (m SessionMeta) Unclean() bool { return m.EndedAt == nil }

func sessionDir(baseDir, workspaceID, paneID string) (string, error) {
	ws, err := sanitizeID(workspaceID)
	if err != nil {
		return "", err
	}
	pane, err := sanitizeID(paneID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, ws, pane), nil
}

func sanitizeID(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("history: id is required")
	}
	for _, r := range value {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			continue
		}
		return "", fmt.Errorf("history: invalid id %q", value)
	}
	if strings.HasPrefix(value, ".") {
		return "", fmt.Errorf("history: invalid id %q", value)
	}
	return value, nil
}
