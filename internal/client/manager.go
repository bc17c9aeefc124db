// Package client implements the UI-side connection manager: it discovers or
// spawns the daemon, authenticates, correlates requests with responses,
// fans events out per session, and keeps the cold-restore bookkeeping that
// decides when on-disk history must stand in for a lost daemon.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/diag"
	"github.com/hearthdev/hearth/internal/history"
	"github.com/hearthdev/hearth/internal/server"
	"github.com/hearthdev/hearth/internal/wire"
)

const (
	// DefaultConnectTimeout bounds how long a caller observing another
	// caller's in-flight connection attempt will wait for it.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultAttachConcurrency gates concurrent create-or-attach calls.
	DefaultAttachConcurrency = 3

	connectPollInterval = 50 * time.Millisecond
)

// EventDisconnected is the synthetic event delivered to session
// subscribers when the daemon connection drops.
const EventDisconnected = "disconnected"

// State is the manager's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Config wires the manager to one daemon instance.
type Config struct {
	SocketPath    string
	TokenPath     string
	SpawnLockPath string

	// HistoryDir enables cold-restore reads. Empty disables them.
	HistoryDir string

	ConnectTimeout    time.Duration
	SocketWait        time.Duration
	SpawnLockStale    time.Duration
	AttachConcurrency int

	// SpawnDaemon overrides how the daemon process is started. Tests
	// substitute one that runs an in-process server.
	SpawnDaemon func() error
}

func (c Config) normalized() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SocketWait <= 0 {
		c.SocketWait = DefaultSocketWait
	}
	if c.SpawnLockStale <= 0 {
		c.SpawnLockStale = DefaultSpawnLockStale
	}
	if c.AttachConcurrency <= 0 {
		c.AttachConcurrency = DefaultAttachConcurrency
	}
	if c.SpawnDaemon == nil {
		c.SpawnDaemon = spawnDaemon
	}
	return c
}

// ColdRestore is scrollback recovered from disk after the daemon did not
// survive. It stays keyed by session ID until acknowledged, so duplicate
// near-simultaneous attaches observe the same recovered data.
type ColdRestore struct {
	SessionID  string
	Meta       history.SessionMeta
	Scrollback []byte
}

// AttachResult couples the daemon's answer with any pending cold restore.
type AttachResult struct {
	wire.CreateOrAttachResult

	// Restore is non-nil when on-disk history recorded an unclean
	// shutdown and the daemon did not already know the session.
	Restore *ColdRestore
}

// Manager is the per-UI-process connection manager.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	state      State
	conn       *Conn
	knownAlive map[string]bool
	hydrated   bool
	restores   map[string]*ColdRestore

	subsMu  sync.Mutex
	subs    map[string]map[uint64]chan wire.Event
	subSeq  uint64
	attachs *prioritySemaphore

	reader *history.Reader
}

// NewManager builds a manager. It does not connect; connection is
// established lazily by the first operation.
func NewManager(cfg Config) *Manager {
	cfg = cfg.normalized()
	m := &Manager{
		cfg:        cfg,
		knownAlive: make(map[string]bool),
		restores:   make(map[string]*ColdRestore),
		subs:       make(map[string]map[uint64]chan wire.Event),
		attachs:    newPrioritySemaphore(cfg.AttachConcurrency),
	}
	if cfg.HistoryDir != "" {
		m.reader = history.NewReader(cfg.HistoryDir)
	}
	return m
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close drops the daemon connection. Sessions keep running in the daemon.
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// ensureConnected returns a live authenticated connection, establishing one
// if needed. Safe for concurrent use: one caller connects, the others poll
// for the outcome instead of racing a second attempt.
func (m *Manager) ensureConnected(ctx context.Context) (*Conn, error) {
	deadline := time.Now().Add(m.cfg.ConnectTimeout)
	for {
		m.mu.Lock()
		switch m.state {
		case StateConnected:
			conn := m.conn
			m.mu.Unlock()
			return conn, nil
		case StateConnecting:
			m.mu.Unlock()
			if time.Now().After(deadline) {
				return nil, ErrConnectTimeout
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(connectPollInterval):
			}
			continue
		}
		m.state = StateConnecting
		m.mu.Unlock()

		conn, err := m.connect(ctx)

		m.mu.Lock()
		if err != nil {
			m.state = StateDisconnected
			m.mu.Unlock()
			return nil, err
		}
		m.state = StateConnected
		m.conn = conn
		m.mu.Unlock()
		go m.pumpEvents(conn)
		return conn, nil
	}
}

// connect dials the daemon, spawning it first when nothing listens on the
// socket.
func (m *Manager) connect(ctx context.Context) (*Conn, error) {
	if !socketAlive(m.cfg.SocketPath) {
		if err := m.startDaemon(ctx); err != nil {
			return nil, err
		}
	}
	token, err := server.ReadToken(m.cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	conn, err := DialConn(ctx, m.cfg.SocketPath, token)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) startDaemon(ctx context.Context) error {
	release, acquired := acquireSpawnLock(m.cfg.SpawnLockPath, m.cfg.SpawnLockStale)
	if acquired {
		defer release()
		if err := m.cfg.SpawnDaemon(); err != nil {
			return err
		}
	} else {
		slog.Debug("another client is spawning the daemon, waiting for socket")
	}
	return waitForSocket(ctx, m.cfg.SocketPath, m.cfg.SocketWait)
}

// pumpEvents dispatches daemon events to session subscribers until the
// connection dies, then invalidates the connection-scoped caches.
func (m *Manager) pumpEvents(conn *Conn) {
	for ev := range conn.Events() {
		m.dispatch(ev)
	}

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.state = StateDisconnected
		m.knownAlive = make(map[string]bool)
		m.hydrated = false
	}
	m.mu.Unlock()

	m.subsMu.Lock()
	for sessionID, subs := range m.subs {
		for _, ch := range subs {
			select {
			case ch <- wire.Event{Event: EventDisconnected, SessionID: sessionID}:
			default:
			}
		}
	}
	m.subsMu.Unlock()
}

func (m *Manager) dispatch(ev wire.Event) {
	m.subsMu.Lock()
	subs := m.subs[ev.SessionID]
	targets := make([]chan wire.Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	m.subsMu.Unlock()
	diag.Logf("client: event %s session=%s subscribers=%d", ev.Event, ev.SessionID, len(targets))
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			diag.LogEvery("slow-subscriber:"+ev.SessionID, time.Second,
				"client: dropping %s event for slow subscriber on %s", ev.Event, ev.SessionID)
			slog.Warn("dropping event for slow subscriber",
				slog.String("session", ev.SessionID),
				slog.String("event", ev.Event))
		}
	}
}

// Subscribe delivers events for one session. The returned cancel func must
// be called to release the subscription.
func (m *Manager) Subscribe(sessionID string) (<-chan wire.Event, func()) {
	ch := make(chan wire.Event, 128)
	m.subsMu.Lock()
	m.subSeq++
	id := m.subSeq
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[uint64]chan wire.Event)
	}
	m.subs[sessionID][id] = ch
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		if subs := m.subs[sessionID]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(m.subs, sessionID)
			}
		}
		m.subsMu.Unlock()
	}
	return ch, cancel
}

// AttachOptions influence admission when many panes reconnect at once.
type AttachOptions struct {
	// Focused marks the pane the user is looking at; it is admitted ahead
	// of background panes.
	Focused bool
}

// CreateOrAttach creates or reattaches a session, performing cold-restore
// bookkeeping: on-disk history is consulted only when the daemon does not
// already report the session alive.
func (m *Manager) CreateOrAttach(ctx context.Context, req wire.CreateOrAttachRequest, opts AttachOptions) (AttachResult, error) {
	if err := m.attachs.acquire(ctx, opts.Focused); err != nil {
		return AttachResult{}, err
	}
	defer m.attachs.release()

	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return AttachResult{}, err
	}
	if err := m.hydrateKnownAlive(ctx, conn); err != nil {
		return AttachResult{}, err
	}
	m.maybeRecoverHistory(req)

	var res wire.CreateOrAttachResult
	if err := conn.Call(ctx, wire.OpCreateOrAttach, req, &res); err != nil {
		m.noteOpError(req.SessionID, err)
		return AttachResult{}, err
	}

	m.mu.Lock()
	m.knownAlive[req.SessionID] = true
	restore := m.restores[req.SessionID]
	m.mu.Unlock()

	return AttachResult{CreateOrAttachResult: res, Restore: restore}, nil
}

// hydrateKnownAlive seeds the daemon-known-alive set once per connection.
func (m *Manager) hydrateKnownAlive(ctx context.Context, conn *Conn) error {
	m.mu.Lock()
	if m.hydrated {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	var list wire.ListSessionsResult
	if err := conn.Call(ctx, wire.OpListSessions, nil, &list); err != nil {
		return err
	}
	m.mu.Lock()
	if !m.hydrated {
		m.hydrated = true
		for _, info := range list.Sessions {
			if info.IsAlive {
				m.knownAlive[info.SessionID] = true
			}
		}
	}
	m.mu.Unlock()
	return nil
}

// maybeRecoverHistory stores a sticky cold-restore record when the daemon
// does not know the session and its on-disk metadata reads as unclean. An
// ordinary reattach to a daemon-alive session never re-triggers this.
func (m *Manager) maybeRecoverHistory(req wire.CreateOrAttachRequest) {
	if m.reader == nil {
		return
	}
	m.mu.Lock()
	alive := m.knownAlive[req.SessionID]
	_, pending := m.restores[req.SessionID]
	m.mu.Unlock()
	if alive || pending {
		return
	}
	if !m.reader.UncleanShutdown(req.WorkspaceID, req.PaneID) {
		return
	}
	meta, err := m.reader.ReadMeta(req.WorkspaceID, req.PaneID)
	if err != nil {
		return
	}
	scrollback, err := m.reader.ReadScrollback(req.WorkspaceID, req.PaneID)
	if err != nil {
		slog.Warn("cold restore read failed",
			slog.String("session", req.SessionID),
			slog.Any("error", err))
		return
	}
	m.mu.Lock()
	if _, exists := m.restores[req.SessionID]; !exists {
		m.restores[req.SessionID] = &ColdRestore{
			SessionID:  req.SessionID,
			Meta:       meta,
			Scrollback: scrollback,
		}
	}
	m.mu.Unlock()
}

// AcknowledgeRestore drops the sticky cold-restore record once the caller
// has consumed it.
func (m *Manager) AcknowledgeRestore(sessionID string) {
	m.mu.Lock()
	delete(m.restores, sessionID)
	m.mu.Unlock()
}

// noteOpError maintains the caches that keep the next attach honest.
func (m *Manager) noteOpError(sessionID string, err error) {
	if IsSessionNotFound(err) {
		m.mu.Lock()
		delete(m.knownAlive, sessionID)
		m.mu.Unlock()
		return
	}
	if IsConnectionError(err) {
		m.mu.Lock()
		m.knownAlive = make(map[string]bool)
		m.hydrated = false
		m.mu.Unlock()
	}
}

// Write sends input and waits for the daemon's acknowledgment.
func (m *Manager) Write(ctx context.Context, sessionID string, data []byte) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	err = conn.Call(ctx, wire.OpWrite, wire.WriteRequest{SessionID: sessionID, Data: data}, nil)
	if err != nil {
		m.noteOpError(sessionID, err)
	}
	return err
}

// WriteNotify sends input without waiting, for high-frequency keystroke and
// paste traffic.
func (m *Manager) WriteNotify(ctx context.Context, sessionID string, data []byte) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return conn.Notify(wire.OpWrite, wire.WriteRequest{SessionID: sessionID, Data: data})
}

func (m *Manager) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return conn.Call(ctx, wire.OpResize, wire.ResizeRequest{SessionID: sessionID, Cols: cols, Rows: rows}, nil)
}

func (m *Manager) Detach(ctx context.Context, sessionID string) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return conn.Call(ctx, wire.OpDetach, wire.DetachRequest{SessionID: sessionID}, nil)
}

func (m *Manager) Kill(ctx context.Context, req wire.KillRequest) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	err = conn.Call(ctx, wire.OpKill, req, nil)
	if err != nil {
		m.noteOpError(req.SessionID, err)
	}
	return err
}

func (m *Manager) KillAll(ctx context.Context, deleteHistory bool) (int, error) {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return 0, err
	}
	var res wire.KillAllResult
	if err := conn.Call(ctx, wire.OpKillAll, wire.KillRequest{DeleteHistory: deleteHistory}, &res); err != nil {
		return 0, err
	}
	return res.Killed, nil
}

// ListSessions reports the daemon's sessions. Absent optional fields from
// an older daemon normalize to their zero values (a missing pid is nil).
func (m *Manager) ListSessions(ctx context.Context) ([]wire.SessionInfo, error) {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	var res wire.ListSessionsResult
	if err := conn.Call(ctx, wire.OpListSessions, nil, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

func (m *Manager) ClearScrollback(ctx context.Context, sessionID string) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	err = conn.Call(ctx, wire.OpClearScrollback, wire.ClearScrollbackRequest{SessionID: sessionID}, nil)
	if err != nil {
		m.noteOpError(sessionID, err)
	}
	return err
}

// Shutdown asks the daemon to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	conn, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return conn.Call(ctx, wire.OpShutdown, nil, nil)
}
