package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	xpty "github.com/charmbracelet/x/xpty"
	"github.com/kballard/go-shellquote"

	"github.com/hearthdev/hearth/internal/wire"
)

const (
	defaultCols = 80
	defaultRows = 24

	// writeQueueSize bounds pending PTY input chunks. A stalled child that
	// stops draining its PTY overflows this instead of blocking the agent.
	writeQueueSize = 256

	defaultKillGrace = 5 * time.Second
)

// ptySession is one hosted PTY process.
type ptySession struct {
	id    string
	agent *Agent

	cmd *exec.Cmd
	pty xpty.Pty

	writeCh chan []byte
	done    chan struct{}
	closed  atomic.Bool
}

func (a *Agent) spawn(req wire.AgentSpawn) (*ptySession, error) {
	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	shell := strings.TrimSpace(req.Shell)
	if shell == "" {
		shell = detectShell()
	}
	words, err := shellquote.Split(shell)
	if err != nil || len(words) == 0 {
		return nil, fmt.Errorf("agent: parse shell %q: %w", shell, err)
	}

	// #nosec G204 - the command is user-controlled by design.
	cmd := exec.Command(words[0], words[1:]...)
	if strings.TrimSpace(req.Cwd) != "" {
		cmd.Dir = req.Cwd
	}

	env := append([]string{}, os.Environ()...)
	if len(req.Env) > 0 {
		env = mergeEnv(env, req.Env)
	}
	if !hasEnv(env, "TERM") {
		env = append(env, "TERM=xterm-256color")
	}
	if !hasEnv(env, "COLORTERM") {
		env = append(env, "COLORTERM=truecolor")
	}
	env = append(env,
		"TERM_PROGRAM=HEARTH",
		"HEARTH_SESSION_ID="+req.SessionID,
	)
	cmd.Env = env

	setupPTYCommand(cmd)

	pty, err := xpty.NewPty(cols, rows)
	if err != nil {
		return nil, fmt.Errorf("agent: create pty: %w", err)
	}
	if err := pty.Start(cmd); err != nil {
		_ = pty.Close()
		return nil, fmt.Errorf("agent: start process: %w", err)
	}
	_ = pty.Resize(cols, rows)

	s := &ptySession{
		id:      req.SessionID,
		agent:   a,
		cmd:     cmd,
		pty:     pty,
		writeCh: make(chan []byte, writeQueueSize),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	go s.waitExit()
	return s, nil
}

func (s *ptySession) pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// readLoop relays PTY output in read order; the single goroutine is what
// guarantees per-session frame ordering.
func (s *ptySession) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.agent.emitPayload(wire.FrameData, wire.AgentData{
				SessionID: s.id,
				Data:      data,
			})
		}
		if err != nil {
			return
		}
	}
}

// writeLoop relays queued input until the process is reaped. Selecting on
// done is what lets the goroutine exit; nothing ever closes writeCh.
func (s *ptySession) writeLoop() {
	for {
		select {
		case data := <-s.writeCh:
			if _, err := s.pty.Write(data); err != nil {
				if !s.closed.Load() {
					s.agent.emitError(s.id, wire.CodeWriteFailed, err.Error())
				}
				return
			}
		case <-s.done:
			return
		}
	}
}

// queueWrite enqueues input without blocking. Returns false when the queue
// is full and the chunk was dropped.
func (s *ptySession) queueWrite(data []byte) bool {
	if s.closed.Load() {
		return true
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case s.writeCh <- buf:
		return true
	default:
		return false
	}
}

func (s *ptySession) resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	_ = s.pty.Resize(cols, rows)
}

// kill signals graceful termination and escalates to a forced kill after the
// grace period if the process has not exited.
func (s *ptySession) kill(graceMS int) {
	grace := defaultKillGrace
	if graceMS > 0 {
		grace = time.Duration(graceMS) * time.Millisecond
	}
	pid := s.pid()
	if pid <= 0 {
		return
	}
	terminateProcess(pid)
	go func() {
		select {
		case <-s.done:
		case <-time.After(grace):
			forceKillProcess(pid)
		}
	}()
}

// dispose force-kills immediately and releases the PTY. Exit reporting still
// happens through waitExit.
func (s *ptySession) dispose() {
	if s.closed.Swap(true) {
		return
	}
	if pid := s.pid(); pid > 0 {
		forceKillProcess(pid)
	}
	_ = s.pty.Close()
}

func (s *ptySession) waitExit() {
	err := xpty.WaitProcess(context.Background(), s.cmd)
	close(s.done)
	if s.closed.Swap(true) {
		// Disposed sessions were already removed; the daemon has no
		// session to route an exit to.
		return
	}
	_ = s.pty.Close()
	s.agent.remove(s.id)

	var exitCode *int
	if state := s.cmd.ProcessState; state != nil {
		if code := state.ExitCode(); code >= 0 {
			exitCode = &code
		}
	} else if err == nil {
		zero := 0
		exitCode = &zero
	}
	s.agent.emitPayload(wire.FrameExit, wire.AgentExit{
		SessionID: s.id,
		ExitCode:  exitCode,
	})
}

func detectShell() string {
	if shell := strings.TrimSpace(os.Getenv("SHELL")); shell != "" {
		return shell
	}
	return "/bin/sh"
}

func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}
	return false
}

// mergeEnv overlays overrides onto base, replacing same-keyed entries.
func mergeEnv(base, overrides []string) []string {
	out := append([]string{}, base...)
	for _, kv := range overrides {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		prefix := kv[:eq+1]
		replaced := false
		for i, existing := range out {
			if strings.HasPrefix(existing, prefix) {
				out[i] = kv
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, kv)
		}
	}
	return out
}
