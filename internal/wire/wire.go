// Package wire defines the two framed channels of the daemon: length-prefixed
// binary frames on the daemon/agent boundary and newline-delimited JSON on
// the client/daemon socket, plus the typed payloads carried over both.
package wire

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the client/daemon protocol version. A client must refuse
// to operate against a daemon reporting a different version.
const ProtocolVersion = 1

// Operation names carried in Request.Type.
const (
	OpHello           = "hello"
	OpCreateOrAttach  = "createOrAttach"
	OpWrite           = "write"
	OpResize          = "resize"
	OpDetach          = "detach"
	OpKill            = "kill"
	OpKillAll         = "killAll"
	OpListSessions    = "listSessions"
	OpClearScrollback = "clearScrollback"
	OpShutdown        = "shutdown"
)

var knownOps = map[string]bool{
	OpHello:           true,
	OpCreateOrAttach:  true,
	OpWrite:           true,
	OpResize:          true,
	OpDetach:          true,
	OpKill:            true,
	OpKillAll:         true,
	OpListSessions:    true,
	OpClearScrollback: true,
	OpShutdown:        true,
}

// KnownOp reports whether t is a defined operation. Unknown tags are rejected
// at the decode boundary rather than default-cased.
func KnownOp(t string) bool { return knownOps[t] }

// Event names carried in Event.Event.
const (
	EventData  = "data"
	EventExit  = "exit"
	EventError = "error"
)

// Machine-readable error codes on responses and error events.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeVersionMismatch      = "version_mismatch"
	CodeUnknownOp            = "unknown_op"
	CodeBadPayload           = "bad_payload"
	CodeSessionNotFound      = "session_not_found"
	CodeSessionNotAttachable = "session_not_attachable"
	CodeSpawnFailed          = "spawn_failed"
	CodeWriteFailed          = "write_failed"
	CodeQueueFull            = "queue_full"
	CodeInternal             = "internal"
)

// Error is a protocol-level error with a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// ErrSessionNotFound and ErrSessionNotAttachable are the named session
// errors a client distinguishes to drive cold-restore bookkeeping.
var (
	ErrSessionNotFound      = &Error{Code: CodeSessionNotFound, Message: "Session not found"}
	ErrSessionNotAttachable = &Error{Code: CodeSessionNotAttachable, Message: "Session not attachable"}
)

// MarshalPayload encodes an operation payload for embedding in a frame.
func MarshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes an operation payload. A nil payload leaves v
// untouched.
func UnmarshalPayload(data json.RawMessage, v any) error {
	if v == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: decode payload: %w", err)
	}
	return nil
}
