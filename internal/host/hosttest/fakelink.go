// Package hosttest provides a fake agent link for tests that drive the
// session lifecycle without real PTY processes.
package hosttest

import (
	"bytes"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/wire"
)

// Write is one recorded input chunk.
type Write struct {
	SessionID string
	Data      []byte
}

// FakeLink implements host.Link in memory. Spawn immediately confirms (or
// fails, when FailSpawn is set; after SpawnDelay, when set) and Kill
// reports a zero exit when ExitOnKill is true. Configure fields before
// handing the link to a host.
type FakeLink struct {
	FailSpawn  bool
	ExitOnKill bool
	SpawnDelay time.Duration

	mu       sync.Mutex
	nextPID  int
	spawns   []wire.AgentSpawn
	writes   []Write
	kills    []string
	disposes []string
	closed   bool

	events chan wire.Frame
}

func NewFakeLink() *FakeLink {
	return &FakeLink{
		ExitOnKill: true,
		nextPID:    4000,
		events:     make(chan wire.Frame, 64),
	}
}

// Push injects an agent-to-daemon frame, as if the agent had emitted it.
func (l *FakeLink) Push(t wire.FrameType, v any) {
	payload, err := wire.MarshalPayload(v)
	if err != nil {
		panic(err)
	}
	l.events <- wire.Frame{Type: t, Payload: payload}
}

// PushData injects a PTY output frame.
func (l *FakeLink) PushData(sessionID string, data []byte) {
	l.Push(wire.FrameData, wire.AgentData{SessionID: sessionID, Data: data})
}

// PushExit injects a process exit frame.
func (l *FakeLink) PushExit(sessionID string, exitCode *int) {
	l.Push(wire.FrameExit, wire.AgentExit{SessionID: sessionID, ExitCode: exitCode})
}

func (l *FakeLink) Spawn(req wire.AgentSpawn) error {
	l.mu.Lock()
	l.spawns = append(l.spawns, req)
	fail := l.FailSpawn
	delay := l.SpawnDelay
	l.nextPID++
	pid := l.nextPID
	l.mu.Unlock()
	confirm := func() {
		if fail {
			l.Push(wire.FrameError, wire.AgentError{
				SessionID: req.SessionID,
				Code:      wire.CodeSpawnFailed,
				Message:   "no such shell",
			})
			return
		}
		l.Push(wire.FrameSpawned, wire.AgentSpawned{SessionID: req.SessionID, PID: pid})
	}
	if delay > 0 {
		time.AfterFunc(delay, confirm)
	} else {
		confirm()
	}
	return nil
}

func (l *FakeLink) Write(sessionID string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, Write{SessionID: sessionID, Data: append([]byte(nil), data...)})
	return nil
}

func (l *FakeLink) Resize(sessionID string, cols, rows int) error { return nil }

func (l *FakeLink) Kill(sessionID string, grace time.Duration) error {
	l.mu.Lock()
	l.kills = append(l.kills, sessionID)
	exit := l.ExitOnKill
	l.mu.Unlock()
	if exit {
		code := 0
		l.PushExit(sessionID, &code)
	}
	return nil
}

func (l *FakeLink) Dispose(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposes = append(l.disposes, sessionID)
	return nil
}

func (l *FakeLink) Events() <-chan wire.Frame { return l.events }

// Close ends the event stream, as a crashed agent would.
func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

func (l *FakeLink) SpawnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spawns)
}

func (l *FakeLink) Disposed(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.disposes {
		if id == sessionID {
			return true
		}
	}
	return false
}

// WroteInput reports whether exactly this input chunk reached the session.
func (l *FakeLink) WroteInput(sessionID, input string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writes {
		if w.SessionID == sessionID && bytes.Equal(w.Data, []byte(input)) {
			return true
		}
	}
	return false
}
