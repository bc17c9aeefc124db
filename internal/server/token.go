package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// writeTokenFile creates the shared-secret token, readable only by the
// owning user. A fresh token is minted on every daemon start so a leaked
// one does not outlive the process.
func writeTokenFile(path string) (string, error) {
	token := uuid.NewString()
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("server: write token file: %w", err)
	}
	return token, nil
}

// ReadToken loads the daemon's token for the client-side handshake.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("server: read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("server: token file %s is empty", path)
	}
	return token, nil
}
