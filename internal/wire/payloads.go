package wire

import (
	"time"

	"github.com/hearthdev/hearth/internal/vt"
)

// HelloRequest authenticates a connection. Token is the pre-shared secret
// from the daemon's token file.
type HelloRequest struct {
	Token           string `json:"token"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// HelloResult reports the daemon's identity after a successful handshake.
type HelloResult struct {
	ProtocolVersion int `json:"protocolVersion"`
	DaemonPID       int `json:"daemonPid"`
}

// CreateOrAttachRequest creates a session or attaches to a live one. The
// session ID is chosen by the client as a stable pane identifier.
type CreateOrAttachRequest struct {
	SessionID       string   `json:"sessionId"`
	WorkspaceID     string   `json:"workspaceId"`
	PaneID          string   `json:"paneId"`
	TabID           string   `json:"tabId,omitempty"`
	Cwd             string   `json:"cwd,omitempty"`
	Shell           string   `json:"shell,omitempty"`
	Cols            int      `json:"cols"`
	Rows            int      `json:"rows"`
	InitialCommands []string `json:"initialCommands,omitempty"`
}

// CreateOrAttachResult carries the attach outcome and the snapshot needed to
// redraw the session.
type CreateOrAttachResult struct {
	IsNew    bool        `json:"isNew"`
	Snapshot vt.Snapshot `json:"snapshot"`
	PID      *int        `json:"pid,omitempty"`
}

type WriteRequest struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"data"`
}

type ResizeRequest struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

type DetachRequest struct {
	SessionID string `json:"sessionId"`
}

type KillRequest struct {
	SessionID     string `json:"sessionId"`
	DeleteHistory bool   `json:"deleteHistory,omitempty"`
}

type ClearScrollbackRequest struct {
	SessionID string `json:"sessionId"`
}

// SessionInfo is one entry in a listSessions result. PID is nullable so that
// older daemons omitting it normalize to the same shape.
type SessionInfo struct {
	SessionID      string    `json:"sessionId"`
	WorkspaceID    string    `json:"workspaceId"`
	PaneID         string    `json:"paneId"`
	TabID          string    `json:"tabId,omitempty"`
	Cwd            string    `json:"cwd,omitempty"`
	Cols           int       `json:"cols"`
	Rows           int       `json:"rows"`
	PID            *int      `json:"pid,omitempty"`
	IsAlive        bool      `json:"isAlive"`
	IsTerminating  bool      `json:"isTerminating"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type ListSessionsResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

type KillAllResult struct {
	Killed int `json:"killed"`
}

// DataEventPayload carries raw PTY output bytes, in production order.
type DataEventPayload struct {
	Data []byte `json:"data"`
}

// ExitEventPayload reports process exit. ExitCode is nil when the exit
// status could not be determined.
type ExitEventPayload struct {
	ExitCode *int `json:"exitCode"`
}

// ErrorEventPayload is a session-scoped error with a machine-readable code.
type ErrorEventPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
