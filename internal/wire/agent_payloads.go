package wire

// Payloads carried inside binary frames on the daemon/agent channel. All are
// JSON; raw PTY bytes travel in AgentData.

// AgentSpawn asks the agent to start a PTY for a session.
type AgentSpawn struct {
	SessionID string   `json:"sessionId"`
	Shell     string   `json:"shell,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Cols      int      `json:"cols"`
	Rows      int      `json:"rows"`
	Env       []string `json:"env,omitempty"`
}

// AgentWrite delivers input bytes to a session's PTY.
type AgentWrite struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"data"`
}

type AgentResize struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// AgentKill requests graceful termination; the agent escalates to SIGKILL
// after the grace period.
type AgentKill struct {
	SessionID string `json:"sessionId"`
	GraceMS   int    `json:"graceMs,omitempty"`
}

// AgentDispose forcibly kills and forgets a session without grace. Used on
// kill-then-attach recreate races.
type AgentDispose struct {
	SessionID string `json:"sessionId"`
}

// AgentSpawned confirms a spawn with the child PID.
type AgentSpawned struct {
	SessionID string `json:"sessionId"`
	PID       int    `json:"pid"`
}

// AgentData carries PTY output. Frames for one session are emitted in read
// order; the channel must not reorder them.
type AgentData struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"data"`
}

// AgentExit reports that a session's process exited.
type AgentExit struct {
	SessionID string `json:"sessionId"`
	ExitCode  *int   `json:"exitCode"`
}

// AgentError is a session-scoped failure (spawn failure, queue overflow).
type AgentError struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
