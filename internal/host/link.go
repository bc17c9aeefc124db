package host

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/wire"
)

// Link is the host's channel to the PTY subprocess. Control frames go down,
// event frames come back on Events. Tests substitute a fake.
type Link interface {
	Spawn(req wire.AgentSpawn) error
	Write(sessionID string, data []byte) error
	Resize(sessionID string, cols, rows int) error
	Kill(sessionID string, grace time.Duration) error
	Dispose(sessionID string) error
	Events() <-chan wire.Frame
	Close() error
}

const agentReadyTimeout = 10 * time.Second

// processLink runs the agent as a child process and frames its stdin/stdout.
type processLink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
	events  chan wire.Frame

	closeOnce sync.Once
}

// StartAgent launches the agent subprocess (the running binary invoked with
// the hidden agent subcommand) and waits for its ready frame.
func StartAgent() (Link, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("host: resolve executable: %w", err)
	}
	cmd := exec.Command(exe, "agent")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host: agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host: agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("host: start agent: %w", err)
	}

	l := &processLink{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		events: make(chan wire.Frame, 256),
	}
	if err := l.awaitReady(); err != nil {
		_ = l.Close()
		return nil, err
	}
	go l.readLoop()
	return l, nil
}

func (l *processLink) awaitReady() error {
	type result struct {
		frame wire.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := wire.ReadFrame(l.stdout)
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("host: agent handshake: %w", r.err)
		}
		if r.frame.Type != wire.FrameReady {
			return fmt.Errorf("host: agent sent %s before ready", r.frame.Type)
		}
		return nil
	case <-time.After(agentReadyTimeout):
		return fmt.Errorf("host: agent not ready after %s", agentReadyTimeout)
	}
}

func (l *processLink) readLoop() {
	defer close(l.events)
	for {
		frame, err := wire.ReadFrame(l.stdout)
		if err != nil {
			return
		}
		l.events <- frame
	}
}

func (l *processLink) send(t wire.FrameType, v any) error {
	payload, err := wire.MarshalPayload(v)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return wire.WriteFrame(l.stdin, t, payload)
}

func (l *processLink) Spawn(req wire.AgentSpawn) error {
	return l.send(wire.FrameSpawn, req)
}

func (l *processLink) Write(sessionID string, data []byte) error {
	return l.send(wire.FrameWrite, wire.AgentWrite{SessionID: sessionID, Data: data})
}

func (l *processLink) Resize(sessionID string, cols, rows int) error {
	return l.send(wire.FrameResize, wire.AgentResize{SessionID: sessionID, Cols: cols, Rows: rows})
}

func (l *processLink) Kill(sessionID string, grace time.Duration) error {
	return l.send(wire.FrameKill, wire.AgentKill{SessionID: sessionID, GraceMS: int(grace.Milliseconds())})
}

func (l *processLink) Dispose(sessionID string) error {
	return l.send(wire.FrameDispose, wire.AgentDispose{SessionID: sessionID})
}

func (l *processLink) Events() <-chan wire.Frame {
	return l.events
}

// Close ends the control stream. The agent force-kills its sessions and
// exits when stdin closes; escalate to SIGKILL if it lingers.
func (l *processLink) Close() error {
	l.closeOnce.Do(func() {
		_ = l.stdin.Close()
		done := make(chan struct{})
		go func() {
			_ = l.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if l.cmd.Process != nil {
				_ = l.cmd.Process.Kill()
			}
			<-done
		}
	})
	return nil
}
