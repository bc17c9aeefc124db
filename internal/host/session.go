package host

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/history"
	"github.com/hearthdev/hearth/internal/vt"
	"github.com/hearthdev/hearth/internal/wire"
)

type sessionState int

const (
	stateCreating sessionState = iota
	stateAttachable
	stateTerminating
	stateExited
)

func (s sessionState) String() string {
	switch s {
	case stateCreating:
		return "creating"
	case stateAttachable:
		return "attachable"
	case stateTerminating:
		return "terminating"
	case stateExited:
		return "exited"
	}
	return "unknown"
}

// outputQueueLen bounds buffered PTY output chunks per session. The worker
// only does in-memory emulator writes and non-blocking history writes, so
// the queue drains faster than a PTY can fill it.
const outputQueueLen = 512

// session couples one PTY process, one emulator, and the attached client
// set. Control fields are guarded by the owning Host's mutex; the emulator
// and history writer carry their own synchronization and are driven by the
// session's worker goroutine.
type session struct {
	host *Host

	id          string
	workspaceID string
	paneID      string
	tabID       string
	cwd         string
	shell       string

	cols, rows   int
	createdAt    time.Time
	lastActivity time.Time

	state               sessionState
	pid                 *int
	exitCode            *int
	attached            map[string]struct{}
	deleteHistoryOnExit bool

	initialCommands []string
	commandsQueued  bool

	emu        *vt.Emulator
	hist       *history.Writer
	histClosed bool
	// histDone closes once the history writer is fully finalized (or was
	// never opened). A recreate for the same workspace/pane must not open
	// a new log before the old writer has let go of the directory.
	histDone chan struct{}

	output   chan []byte
	quit     chan struct{}
	stopOnce sync.Once

	killTimer    *time.Timer
	cleanupTimer *time.Timer
}

func (s *session) attachable() bool {
	return s.state == stateAttachable
}

func (s *session) alive() bool {
	switch s.state {
	case stateCreating, stateAttachable, stateTerminating:
		return true
	}
	return false
}

// run is the session worker. It is the only goroutine feeding the emulator
// and history writer, which preserves per-session output ordering.
func (s *session) run() {
	for {
		select {
		case data := <-s.output:
			_, _ = s.emu.Write(data)
			if s.hist != nil {
				_, _ = s.hist.Write(data)
			}
			s.host.emit(Event{
				Name:      wire.EventData,
				SessionID: s.id,
				Payload:   wire.DataEventPayload{Data: data},
			})
			s.maybeQueueInitialCommands()
		case <-s.quit:
			return
		}
	}
}

// enqueueOutput hands a PTY output chunk to the worker without ever parking
// the host's dispatch loop on a stopped session.
func (s *session) enqueueOutput(data []byte) {
	select {
	case s.output <- data:
	case <-s.quit:
	}
}

func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// maybeQueueInitialCommands releases queued initial commands once, after the
// first output chunk suggests the shell is up, with a short settle delay.
func (s *session) maybeQueueInitialCommands() {
	h := s.host
	h.mu.Lock()
	if s.commandsQueued || len(s.initialCommands) == 0 {
		h.mu.Unlock()
		return
	}
	s.commandsQueued = true
	commands := s.initialCommands
	delay := h.cfg.InitialCommandDelay
	h.mu.Unlock()

	time.AfterFunc(delay, func() {
		h.mu.Lock()
		ok := s.attachable()
		h.mu.Unlock()
		if !ok {
			return
		}
		for _, cmd := range commands {
			if err := h.link.Write(s.id, []byte(cmd+"\r")); err != nil {
				slog.Warn("initial command write failed",
					slog.String("session", s.id),
					slog.Any("error", err))
				return
			}
		}
	})
}

func (s *session) stopTimersLocked() {
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
}

// takeHistoryLocked detaches the history writer so the caller can close it
// after releasing the host mutex. Writer.Close waits out a bounded drain,
// which must never run while other sessions are blocked on h.mu.
func (s *session) takeHistoryLocked() *history.Writer {
	if s.hist == nil || s.histClosed {
		return nil
	}
	s.histClosed = true
	return s.hist
}

func (s *session) info() wire.SessionInfo {
	return wire.SessionInfo{
		SessionID:      s.id,
		WorkspaceID:    s.workspaceID,
		PaneID:         s.paneID,
		TabID:          s.tabID,
		Cwd:            s.currentCwd(),
		Cols:           s.cols,
		Rows:           s.rows,
		PID:            s.pid,
		IsAlive:        s.alive(),
		IsTerminating:  s.state == stateTerminating,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}

// currentCwd prefers the emulator's tracked directory report over the spawn
// directory.
func (s *session) currentCwd() string {
	if cwd := s.emu.CWD(); cwd != "" {
		return cwd
	}
	return s.cwd
}
