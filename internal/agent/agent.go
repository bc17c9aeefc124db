// Package agent implements the PTY host subprocess. The daemon starts one
// agent and speaks length-prefixed binary frames with it over stdin/stdout:
// control frames in (spawn, write, resize, kill, dispose), event frames out
// (ready, spawned, data, exit, error). Keeping PTYs in a child process keeps
// the daemon's accept loop isolated from PTY I/O stalls.
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/muesli/cancelreader"

	"github.com/hearthdev/hearth/internal/wire"
)

// Agent hosts PTY sessions and relays frames. One Agent serves one daemon.
type Agent struct {
	out   io.Writer
	outMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*ptySession
}

// Run drives the agent until the control stream closes or ctx is canceled.
// All hosted processes are force-killed on the way out.
func Run(ctx context.Context, in io.Reader, out io.Writer) error {
	a := &Agent{
		out:      out,
		sessions: make(map[string]*ptySession),
	}

	cr, err := cancelreader.NewReader(in)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { cr.Cancel() })
	defer stop()
	defer a.killAll()

	a.emit(wire.FrameReady, nil)

	for {
		frame, err := wire.ReadFrame(cr)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, cancelreader.ErrCanceled) {
				return nil
			}
			return err
		}
		a.dispatch(frame)
	}
}

func (a *Agent) dispatch(frame wire.Frame) {
	switch frame.Type {
	case wire.FrameSpawn:
		var req wire.AgentSpawn
		if !a.decode(frame, "", &req) {
			return
		}
		a.handleSpawn(req)
	case wire.FrameWrite:
		var req wire.AgentWrite
		if !a.decode(frame, "", &req) {
			return
		}
		a.handleWrite(req)
	case wire.FrameResize:
		var req wire.AgentResize
		if !a.decode(frame, "", &req) {
			return
		}
		if s := a.session(req.SessionID); s != nil {
			s.resize(req.Cols, req.Rows)
		}
	case wire.FrameKill:
		var req wire.AgentKill
		if !a.decode(frame, "", &req) {
			return
		}
		if s := a.session(req.SessionID); s != nil {
			s.kill(req.GraceMS)
		}
	case wire.FrameDispose:
		var req wire.AgentDispose
		if !a.decode(frame, "", &req) {
			return
		}
		if s := a.remove(req.SessionID); s != nil {
			s.dispose()
		}
	default:
		slog.Warn("agent: unexpected frame", slog.String("type", frame.Type.String()))
	}
}

func (a *Agent) handleSpawn(req wire.AgentSpawn) {
	s, err := a.spawn(req)
	if err != nil {
		a.emitError(req.SessionID, wire.CodeSpawnFailed, err.Error())
		return
	}
	a.mu.Lock()
	if old := a.sessions[req.SessionID]; old != nil {
		// A respawn for an id we still hold means the daemon already
		// disposed it logically; make the OS agree.
		go old.dispose()
	}
	a.sessions[req.SessionID] = s
	a.mu.Unlock()

	a.emitPayload(wire.FrameSpawned, wire.AgentSpawned{
		SessionID: req.SessionID,
		PID:       s.pid(),
	})
}

func (a *Agent) handleWrite(req wire.AgentWrite) {
	s := a.session(req.SessionID)
	if s == nil {
		a.emitError(req.SessionID, wire.CodeSessionNotFound, "no such session")
		return
	}
	if !s.queueWrite(req.Data) {
		a.emitError(req.SessionID, wire.CodeQueueFull, "input dropped, write queue full")
	}
}

func (a *Agent) session(id string) *ptySession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[id]
}

func (a *Agent) remove(id string) *ptySession {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sessions[id]
	delete(a.sessions, id)
	return s
}

func (a *Agent) killAll() {
	a.mu.Lock()
	sessions := make([]*ptySession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[string]*ptySession)
	a.mu.Unlock()
	for _, s := range sessions {
		s.dispose()
	}
}

func (a *Agent) decode(frame wire.Frame, sessionID string, v any) bool {
	if err := wire.UnmarshalPayload(frame.Payload, v); err != nil {
		a.emitError(sessionID, wire.CodeBadPayload, err.Error())
		return false
	}
	return true
}

func (a *Agent) emit(t wire.FrameType, payload []byte) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if err := wire.WriteFrame(a.out, t, payload); err != nil {
		slog.Warn("agent: emit failed",
			slog.String("type", t.String()),
			slog.String("error", err.Error()))
	}
}

func (a *Agent) emitPayload(t wire.FrameType, v any) {
	data, err := wire.MarshalPayload(v)
	if err != nil {
		slog.Warn("agent: encode failed", slog.String("error", err.Error()))
		return
	}
	a.emit(t, data)
}

func (a *Agent) emitError(sessionID, code, message string) {
	a.emitPayload(wire.FrameError, wire.AgentError{
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}
