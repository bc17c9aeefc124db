// Package host owns the daemon's session registry and lifecycle. Sessions
// move Creating -> Attachable -> Terminating -> Exited; a create-or-attach
// that lands on a terminating session force-disposes it and builds a fresh
// one instead of waiting for the OS to confirm exit. PTY processes live in
// the agent subprocess, reached through a Link.
package host

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/history"
	"github.com/hearthdev/hearth/internal/limits"
	"github.com/hearthdev/hearth/internal/sessionpolicy"
	"github.com/hearthdev/hearth/internal/vt"
	"github.com/hearthdev/hearth/internal/wire"
)

// Defaults for the lifecycle timers.
const (
	DefaultSpawnTimeout        = 10 * time.Second
	DefaultKillGrace           = 5 * time.Second
	DefaultKillFailSafe        = 5 * time.Second
	DefaultExitRetention       = 5 * time.Second
	DefaultInitialCommandDelay = 500 * time.Millisecond
)

// Config tunes the host. Zero fields take the documented defaults.
type Config struct {
	// HistoryDir is the base directory for per-session scrollback logs.
	// Empty disables history persistence.
	HistoryDir string

	ScrollbackLines int

	// SpawnTimeout bounds the wait for the agent's spawned confirmation.
	SpawnTimeout time.Duration

	// KillGrace is the SIGTERM-to-SIGKILL escalation window in the agent.
	KillGrace time.Duration

	// KillFailSafe force-disposes a terminating session whose exit the OS
	// never reports.
	KillFailSafe time.Duration

	// ExitRetention keeps an exited session listed so attached clients can
	// observe the exit status before it is dropped.
	ExitRetention time.Duration

	InitialCommandDelay time.Duration

	History history.WriterConfig
}

func (c Config) normalized() Config {
	if c.ScrollbackLines <= 0 {
		c.ScrollbackLines = vt.DefaultScrollbackLines
	}
	if c.SpawnTimeout <= 0 {
		c.SpawnTimeout = DefaultSpawnTimeout
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.KillFailSafe <= 0 {
		c.KillFailSafe = DefaultKillFailSafe
	}
	if c.ExitRetention <= 0 {
		c.ExitRetention = DefaultExitRetention
	}
	if c.InitialCommandDelay <= 0 {
		c.InitialCommandDelay = DefaultInitialCommandDelay
	}
	return c
}

// Event is a session-scoped event for fan-out to attached clients.
type Event struct {
	Name      string
	SessionID string
	Payload   any
}

type spawnOutcome struct {
	pid int
	err error
}

// spawnWaiter publishes one spawn outcome to every caller attached to an
// in-flight creation. The outcome is written before done is closed and
// never mutated afterwards.
type spawnWaiter struct {
	outcome spawnOutcome
	done    chan struct{}
}

// Host owns the session registry. One Host serves one daemon process; the
// registry is instance state, never a package global.
type Host struct {
	cfg  Config
	link Link

	mu       sync.Mutex
	sessions map[string]*session
	pending  map[string]*spawnWaiter
	closed   bool

	events chan Event
	done   chan struct{}
}

// New builds a Host over an established agent link and starts consuming its
// event frames.
func New(link Link, cfg Config) *Host {
	h := &Host{
		cfg:      cfg.normalized(),
		link:     link,
		sessions: make(map[string]*session),
		pending:  make(map[string]*spawnWaiter),
		events:   make(chan Event, 1024),
		done:     make(chan struct{}),
	}
	go h.dispatchLoop()
	return h
}

// Events delivers data/exit/error events in per-session production order.
func (h *Host) Events() <-chan Event {
	return h.events
}

func (h *Host) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Host) dispatchLoop() {
	for frame := range h.link.Events() {
		switch frame.Type {
		case wire.FrameSpawned:
			var p wire.AgentSpawned
			if err := wire.UnmarshalPayload(frame.Payload, &p); err != nil {
				slog.Warn("bad spawned frame", slog.Any("error", err))
				continue
			}
			h.resolveSpawn(p.SessionID, spawnOutcome{pid: p.PID})
		case wire.FrameData:
			var p wire.AgentData
			if err := wire.UnmarshalPayload(frame.Payload, &p); err != nil {
				slog.Warn("bad data frame", slog.Any("error", err))
				continue
			}
			h.routeData(p.SessionID, p.Data)
		case wire.FrameExit:
			var p wire.AgentExit
			if err := wire.UnmarshalPayload(frame.Payload, &p); err != nil {
				slog.Warn("bad exit frame", slog.Any("error", err))
				continue
			}
			h.handleExit(p.SessionID, p.ExitCode)
		case wire.FrameError:
			var p wire.AgentError
			if err := wire.UnmarshalPayload(frame.Payload, &p); err != nil {
				slog.Warn("bad error frame", slog.Any("error", err))
				continue
			}
			h.handleAgentError(p)
		case wire.FrameReady:
			// Link start already consumed the handshake; a second ready
			// frame is harmless.
		default:
			slog.Warn("unexpected agent frame", slog.String("type", frame.Type.String()))
		}
	}
	h.linkLost()
}

// linkLost marks every live session exited when the agent dies. Each loses
// its PTY with the agent process, so clients see a normal exit event.
func (h *Host) linkLost() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	var lost []string
	for id, s := range h.sessions {
		if s.alive() {
			lost = append(lost, id)
		}
	}
	h.mu.Unlock()
	if len(lost) > 0 {
		slog.Error("agent link lost, marking sessions exited", slog.Int("sessions", len(lost)))
	}
	for _, id := range lost {
		h.handleExit(id, nil)
	}
}

// resolveSpawn publishes a spawn outcome. On success it also flips the
// session to attachable in the same critical section, so a creating session
// with no pending waiter can only mean a failed or abandoned spawn.
func (h *Host) resolveSpawn(sessionID string, out spawnOutcome) {
	h.mu.Lock()
	w := h.pending[sessionID]
	delete(h.pending, sessionID)
	if w != nil && out.err == nil {
		if s := h.sessions[sessionID]; s != nil && s.state == stateCreating {
			s.state = stateAttachable
			pid := out.pid
			s.pid = &pid
		}
	}
	h.mu.Unlock()
	if w == nil {
		slog.Warn("spawn outcome for unknown request", slog.String("session", sessionID))
		return
	}
	w.outcome = out
	close(w.done)
}

func (h *Host) routeData(sessionID string, data []byte) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	h.mu.Unlock()
	if s == nil {
		return
	}
	s.enqueueOutput(data)
}

func (h *Host) handleAgentError(p wire.AgentError) {
	if p.Code == wire.CodeSpawnFailed {
		h.mu.Lock()
		_, isPending := h.pending[p.SessionID]
		h.mu.Unlock()
		if isPending {
			h.resolveSpawn(p.SessionID, spawnOutcome{err: &wire.Error{Code: p.Code, Message: p.Message}})
			return
		}
	}
	h.emit(Event{
		Name:      wire.EventError,
		SessionID: p.SessionID,
		Payload:   wire.ErrorEventPayload{Code: p.Code, Message: p.Message},
	})
}

// CreateOrAttach attaches clientID to a live session or creates a new one.
// A terminating target is force-disposed first so a kill-then-reopen race
// yields a brand-new session instead of a dying one. Concurrent calls for
// the same new ID share a single spawn rather than racing two processes.
func (h *Host) CreateOrAttach(req wire.CreateOrAttachRequest, clientID string) (wire.CreateOrAttachResult, error) {
	sessionID, err := sessionpolicy.ValidateSessionID(req.SessionID)
	if err != nil {
		return wire.CreateOrAttachResult{}, &wire.Error{Code: wire.CodeBadPayload, Message: err.Error()}
	}
	req.SessionID = sessionID
	if cwd, err := sessionpolicy.NormalizeCwd(req.Cwd); err == nil {
		req.Cwd = cwd
	}
	now := time.Now()

	h.mu.Lock()
	if s := h.sessions[req.SessionID]; s != nil {
		if s.attachable() {
			s.attached[clientID] = struct{}{}
			s.lastActivity = now
			emu, hist, pid := s.emu, s.hist, s.pid
			h.mu.Unlock()
			if hist != nil {
				if err := hist.Touch(now); err != nil {
					slog.Warn("history touch failed", slog.String("session", s.id), slog.Any("error", err))
				}
			}
			return wire.CreateOrAttachResult{
				IsNew:    false,
				Snapshot: emu.Snapshot(),
				PID:      pid,
			}, nil
		}
		if s.state == stateCreating {
			// Another client is mid-spawn for the same ID. Join its
			// outcome instead of disposing the half-built session.
			w := h.pending[s.id]
			h.mu.Unlock()
			return h.joinSpawn(req.SessionID, clientID, w)
		}
		// Recreating path. The stale writer must finish before a new one
		// reopens the same history directory, but it may not close under
		// the lock, so the registration below re-checks the registry.
		slog.Info("replacing stale session",
			slog.String("session", req.SessionID),
			slog.String("state", s.state.String()))
		hc := h.disposeLocked(s)
		h.mu.Unlock()
		hc.run()
		<-s.histDone
		h.mu.Lock()
		if h.sessions[req.SessionID] != nil {
			// Recreated by someone else while the old history closed;
			// start over as a plain attach.
			h.mu.Unlock()
			return h.CreateOrAttach(req, clientID)
		}
	}

	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	cols, rows = limits.Clamp(cols, rows)

	s := &session{
		host:            h,
		id:              req.SessionID,
		workspaceID:     req.WorkspaceID,
		paneID:          req.PaneID,
		tabID:           req.TabID,
		cwd:             req.Cwd,
		shell:           req.Shell,
		cols:            cols,
		rows:            rows,
		createdAt:       now,
		lastActivity:    now,
		state:           stateCreating,
		attached:        map[string]struct{}{clientID: {}},
		initialCommands: req.InitialCommands,
		emu:             vt.NewEmulatorWithScrollback(cols, rows, h.cfg.ScrollbackLines),
		output:          make(chan []byte, outputQueueLen),
		quit:            make(chan struct{}),
		histDone:        make(chan struct{}),
	}
	s.hist = h.openHistory(s, now)
	if s.hist == nil {
		close(s.histDone)
	}

	wait := &spawnWaiter{done: make(chan struct{})}
	h.sessions[s.id] = s
	h.pending[s.id] = wait
	h.mu.Unlock()

	go s.run()

	err = h.link.Spawn(wire.AgentSpawn{
		SessionID: s.id,
		Shell:     s.shell,
		Cwd:       s.cwd,
		Cols:      cols,
		Rows:      rows,
	})
	var out spawnOutcome
	if err != nil {
		out = spawnOutcome{err: &wire.Error{Code: wire.CodeSpawnFailed, Message: err.Error()}}
	} else {
		select {
		case <-wait.done:
			out = wait.outcome
		case <-time.After(h.cfg.SpawnTimeout):
			out = spawnOutcome{err: &wire.Error{Code: wire.CodeSpawnFailed, Message: "timed out waiting for process spawn"}}
		}
	}

	h.mu.Lock()
	delete(h.pending, s.id)
	if out.err != nil && s.state == stateCreating {
		if h.sessions[s.id] == s {
			delete(h.sessions, s.id)
		}
		hc := historyCloser{s: s, w: s.takeHistoryLocked()}
		h.mu.Unlock()
		hc.run()
		s.stop()
		return wire.CreateOrAttachResult{}, out.err
	}
	// resolveSpawn flipped the session attachable; a timeout that lost the
	// race to a successful outcome lands here too.
	pid := s.pid
	h.mu.Unlock()

	return wire.CreateOrAttachResult{
		IsNew:    true,
		Snapshot: s.emu.Snapshot(),
		PID:      pid,
	}, nil
}

// historyCloser finalizes one writer detached via takeHistoryLocked. Close
// blocks for up to the writer's drain window, so run happens off h.mu.
// Running also releases the session's history directory for reuse.
type historyCloser struct {
	s    *session
	w    *history.Writer
	code *int
}

func (c historyCloser) run() {
	if c.w == nil {
		return
	}
	if err := c.w.Close(c.code); err != nil {
		slog.Warn("history close failed",
			slog.String("session", c.s.id),
			slog.Any("error", err))
	}
	close(c.s.histDone)
}

// joinSpawn waits for another client's in-flight creation of sessionID and
// attaches clientID once the process lands. Every concurrent caller for one
// ID shares the single spawn.
func (h *Host) joinSpawn(sessionID, clientID string, w *spawnWaiter) (wire.CreateOrAttachResult, error) {
	if w == nil {
		// A creating session with no waiter means the spawn already failed
		// and its creator is mid-teardown.
		return wire.CreateOrAttachResult{}, &wire.Error{Code: wire.CodeSpawnFailed, Message: "session creation failed"}
	}
	select {
	case <-w.done:
	case <-time.After(h.cfg.SpawnTimeout):
		return wire.CreateOrAttachResult{}, &wire.Error{Code: wire.CodeSpawnFailed, Message: "timed out waiting for process spawn"}
	}
	if w.outcome.err != nil {
		return wire.CreateOrAttachResult{}, w.outcome.err
	}

	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil || !s.attachable() {
		h.mu.Unlock()
		return wire.CreateOrAttachResult{}, &wire.Error{Code: wire.CodeSpawnFailed, Message: "session ended during creation"}
	}
	s.attached[clientID] = struct{}{}
	s.lastActivity = time.Now()
	emu, pid := s.emu, s.pid
	h.mu.Unlock()

	return wire.CreateOrAttachResult{
		IsNew:    false,
		Snapshot: emu.Snapshot(),
		PID:      pid,
	}, nil
}

func (h *Host) openHistory(s *session, now time.Time) *history.Writer {
	if h.cfg.HistoryDir == "" {
		return nil
	}
	w, err := history.NewWriter(h.cfg.HistoryDir, history.SessionMeta{
		WorkspaceID:    s.workspaceID,
		PaneID:         s.paneID,
		Cwd:            s.cwd,
		Shell:          s.shell,
		Cols:           s.cols,
		Rows:           s.rows,
		CreatedAt:      now.UTC(),
		LastAttachedAt: now.UTC(),
	}, h.cfg.History)
	if err != nil {
		// History is best effort; the session still runs without it.
		slog.Warn("history writer unavailable",
			slog.String("session", s.id),
			slog.Any("error", err))
		return nil
	}
	return w
}

// Write sends input to an attachable session.
func (h *Host) Write(sessionID string, data []byte) error {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil {
		h.mu.Unlock()
		return wire.ErrSessionNotFound
	}
	if !s.attachable() {
		h.mu.Unlock()
		return wire.ErrSessionNotAttachable
	}
	s.lastActivity = time.Now()
	h.mu.Unlock()
	return h.link.Write(sessionID, data)
}

// Resize is a silent no-op on missing or non-attachable sessions so that
// concurrent kill and layout reconciliation do not produce noise.
func (h *Host) Resize(sessionID string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	cols, rows = limits.Clamp(cols, rows)
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil || !s.attachable() {
		h.mu.Unlock()
		return nil
	}
	s.cols, s.rows = cols, rows
	h.mu.Unlock()
	s.emu.Resize(cols, rows)
	return h.link.Resize(sessionID, cols, rows)
}

// Detach removes clientID from a session. Detaching the last client from an
// exited session disposes it immediately.
func (h *Host) Detach(sessionID, clientID string) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil {
		h.mu.Unlock()
		return
	}
	delete(s.attached, clientID)
	hc := h.maybeDisposeExitedLocked(s)
	h.mu.Unlock()
	hc.run()
}

// DetachClient removes clientID from every session, for a closed socket.
func (h *Host) DetachClient(clientID string) {
	var closers []historyCloser
	h.mu.Lock()
	for _, s := range h.sessions {
		if _, ok := s.attached[clientID]; !ok {
			continue
		}
		delete(s.attached, clientID)
		if hc := h.maybeDisposeExitedLocked(s); hc.w != nil {
			closers = append(closers, hc)
		}
	}
	h.mu.Unlock()
	for _, hc := range closers {
		hc.run()
	}
}

func (h *Host) maybeDisposeExitedLocked(s *session) historyCloser {
	if s.state == stateExited && len(s.attached) == 0 {
		return h.disposeLocked(s)
	}
	return historyCloser{}
}

// Kill requests termination. The agent escalates SIGTERM to SIGKILL after
// the grace window; a fail-safe timer disposes the session if the OS never
// reports exit.
func (h *Host) Kill(req wire.KillRequest) error {
	h.mu.Lock()
	s := h.sessions[req.SessionID]
	if s == nil {
		h.mu.Unlock()
		return wire.ErrSessionNotFound
	}
	if s.state == stateTerminating || s.state == stateExited {
		h.mu.Unlock()
		return nil
	}
	s.state = stateTerminating
	s.deleteHistoryOnExit = req.DeleteHistory
	id := s.id
	s.killTimer = time.AfterFunc(h.cfg.KillFailSafe, func() { h.failSafeDispose(id) })
	h.mu.Unlock()

	return h.link.Kill(id, h.cfg.KillGrace)
}

// KillAll terminates every live session and reports how many were signaled.
func (h *Host) KillAll(deleteHistory bool) int {
	h.mu.Lock()
	var ids []string
	for id, s := range h.sessions {
		if s.alive() {
			ids = append(ids, id)
		}
	}
	h.mu.Unlock()

	killed := 0
	for _, id := range ids {
		if err := h.Kill(wire.KillRequest{SessionID: id, DeleteHistory: deleteHistory}); err == nil {
			killed++
		}
	}
	return killed
}

func (h *Host) failSafeDispose(sessionID string) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil || s.state != stateTerminating {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	slog.Warn("kill fail-safe fired, force-disposing session", slog.String("session", sessionID))
	_ = h.link.Dispose(sessionID)
	h.handleExit(sessionID, nil)
}

// handleExit finalizes a session whose process ended: history is closed (or
// deleted), clients get an exit event, and the record is retained for a
// grace window so late observers still see the status.
func (h *Host) handleExit(sessionID string, exitCode *int) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil || s.state == stateExited {
		h.mu.Unlock()
		return
	}
	s.stopTimersLocked()
	s.state = stateExited
	s.pid = nil
	s.exitCode = exitCode
	deleteHistory := s.deleteHistoryOnExit
	hist := s.takeHistoryLocked()
	id := s.id
	s.cleanupTimer = time.AfterFunc(h.cfg.ExitRetention, func() { h.cleanup(id) })
	h.mu.Unlock()

	// The writer's drain wait must not stall the dispatch loop, and the
	// on-disk delete has to follow the close, so both run off to the side.
	// histDone stays open until the delete finishes; a recreate of the
	// same pane waits on it before opening a fresh log.
	if hist != nil {
		workspaceID, paneID := s.workspaceID, s.paneID
		go func() {
			if err := hist.Close(exitCode); err != nil {
				slog.Warn("history close failed", slog.String("session", id), slog.Any("error", err))
			}
			if deleteHistory && h.cfg.HistoryDir != "" {
				if err := history.NewReader(h.cfg.HistoryDir).Delete(workspaceID, paneID); err != nil {
					slog.Warn("history delete failed", slog.String("session", id), slog.Any("error", err))
				}
			}
			close(s.histDone)
		}()
	}

	h.emit(Event{
		Name:      wire.EventExit,
		SessionID: id,
		Payload:   wire.ExitEventPayload{ExitCode: exitCode},
	})
}

// cleanup drops an exited session once its retention window elapses. While
// clients remain attached it reschedules instead of cutting them off.
func (h *Host) cleanup(sessionID string) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil || s.state != stateExited {
		h.mu.Unlock()
		return
	}
	if len(s.attached) > 0 {
		s.cleanupTimer = time.AfterFunc(h.cfg.ExitRetention, func() { h.cleanup(sessionID) })
		h.mu.Unlock()
		return
	}
	hc := h.disposeLocked(s)
	h.mu.Unlock()
	hc.run()
}

// disposeLocked removes a session from the registry and releases its
// resources. The caller holds h.mu and runs the returned closer after
// unlocking; the history writer never closes under the lock.
func (h *Host) disposeLocked(s *session) historyCloser {
	s.stopTimersLocked()
	if s.alive() {
		_ = h.link.Dispose(s.id)
	}
	hc := historyCloser{s: s, w: s.takeHistoryLocked(), code: s.exitCode}
	if h.sessions[s.id] == s {
		delete(h.sessions, s.id)
	}
	delete(h.pending, s.id)
	s.stop()
	return hc
}

// ClearScrollback wipes the emulator scrollback and restarts the on-disk
// log. The metadata keeps no end marker; the session is still running.
func (h *Host) ClearScrollback(sessionID string) error {
	h.mu.Lock()
	s := h.sessions[sessionID]
	if s == nil {
		h.mu.Unlock()
		return wire.ErrSessionNotFound
	}
	if !s.attachable() {
		h.mu.Unlock()
		return wire.ErrSessionNotAttachable
	}
	hist := s.hist
	h.mu.Unlock()

	s.emu.ClearScrollback()
	if hist != nil {
		if err := hist.Reinitialize(); err != nil {
			slog.Warn("history reinitialize failed", slog.String("session", sessionID), slog.Any("error", err))
		}
	}
	return nil
}

// List reports every registered session, oldest first.
func (h *Host) List() []wire.SessionInfo {
	h.mu.Lock()
	infos := make([]wire.SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		infos = append(infos, s.info())
	}
	h.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].SessionID < infos[j].SessionID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Snapshot recomputes the derived snapshot for a session.
func (h *Host) Snapshot(sessionID string) (vt.Snapshot, error) {
	h.mu.Lock()
	s := h.sessions[sessionID]
	h.mu.Unlock()
	if s == nil {
		return vt.Snapshot{}, wire.ErrSessionNotFound
	}
	return s.emu.Snapshot(), nil
}

// Close shuts the host down: sessions are disposed, their histories closed
// gracefully, and the agent link is torn down.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	closers := make([]historyCloser, 0, len(sessions))
	for _, s := range sessions {
		if hc := h.disposeLocked(s); hc.w != nil {
			closers = append(closers, hc)
		}
	}
	h.mu.Unlock()

	for _, hc := range closers {
		hc.run()
	}

	close(h.done)
	_ = h.link.Close()
}
