// Package sessionpolicy validates the client-supplied identifiers and paths
// that cross the daemon boundary.
package sessionpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxIDLength bounds identifiers so they stay usable as directory names.
const MaxIDLength = 128

func validateID(label, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if len(value) > MaxIDLength {
		return "", fmt.Errorf("%s exceeds %d characters", label, MaxIDLength)
	}
	for _, r := range value {
		if r == 0 || unicode.IsControl(r) {
			return "", fmt.Errorf("invalid %s %q", label, value)
		}
	}
	return value, nil
}

func ValidateSessionID(id string) (string, error) {
	return validateID("sessionId", id)
}

func ValidateWorkspaceID(id string) (string, error) {
	return validateID("workspaceId", id)
}

func ValidatePaneID(id string) (string, error) {
	return validateID("paneId", id)
}

// NormalizeCwd expands a leading ~ and resolves the working directory to an
// absolute path. Empty stays empty; the agent falls back to its own cwd.
func NormalizeCwd(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	path = expandHome(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}

// expandHome rewrites a leading ~ or ~/ to the daemon's home directory.
// Other ~user forms pass through untouched; the shell never sent them
// expanded either.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
