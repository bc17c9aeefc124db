// Package server exposes the terminal host over a local unix socket. Each
// connection must complete a hello handshake carrying the shared token and
// the protocol version before any operation is dispatched; session events
// fan out to every authenticated connection.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearthdev/hearth/internal/diag"
	"github.com/hearthdev/hearth/internal/host"
	"github.com/hearthdev/hearth/internal/wire"
)

const (
	socketCheckTimeout = 2 * time.Second
	eventWriteTimeout  = 5 * time.Second
)

// Config names the filesystem contact points of one daemon instance.
type Config struct {
	SocketPath string
	TokenPath  string
	PidPath    string
}

// Server accepts client connections and routes operations to the host.
type Server struct {
	host  *host.Host
	cfg   Config
	token string

	listenerMu sync.Mutex
	listener   net.Listener

	clientsMu sync.RWMutex
	clients   map[uint64]*client
	clientSeq atomic.Uint64

	closing atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds a server over an existing host.
func New(h *host.Host, cfg Config) *Server {
	return &Server{
		host:    h,
		cfg:     cfg,
		clients: make(map[uint64]*client),
		stop:    make(chan struct{}),
	}
}

// Start binds the socket, writes the token and pid files, and begins
// accepting connections. A live daemon already bound to the socket is a
// fatal error; a dead one's leftover socket is removed.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("server: create socket dir: %w", err)
	}
	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	token, err := writeTokenFile(s.cfg.TokenPath)
	if err != nil {
		return err
	}
	s.token = token

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o700); err != nil {
		_ = listener.Close()
		return fmt.Errorf("server: chmod socket: %w", err)
	}
	if err := s.writePidFile(); err != nil {
		_ = listener.Close()
		return err
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop(listener)
	go s.eventLoop()

	slog.Info("daemon listening", slog.String("socket", s.cfg.SocketPath))
	return nil
}

// Wait blocks until the server stops.
func (s *Server) Wait() {
	<-s.stop
	s.wg.Wait()
}

// Stop closes the listener, disconnects all clients, and removes the
// socket, pid, and token files. Safe to call more than once.
func (s *Server) Stop() {
	if s.closing.Swap(true) {
		return
	}
	close(s.stop)

	s.listenerMu.Lock()
	listener := s.listener
	s.listener = nil
	s.listenerMu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}

	s.clientsMu.Lock()
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.clients = make(map[uint64]*client)
	s.clientsMu.Unlock()

	s.wg.Wait()

	_ = os.Remove(s.cfg.SocketPath)
	_ = os.Remove(s.cfg.PidPath)
	_ = os.Remove(s.cfg.TokenPath)
}

// Stopping reports whether shutdown has begun.
func (s *Server) Stopping() bool { return s.closing.Load() }

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", slog.Any("error", err))
			continue
		}
		c := s.registerClient(conn)
		s.wg.Add(1)
		go s.serveClient(c)
	}
}

// eventLoop fans host events out to the authenticated client set, computed
// at emit time.
func (s *Server) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.host.Events():
			s.broadcast(ev)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcast(ev host.Event) {
	payload, err := wire.MarshalPayload(ev.Payload)
	if err != nil {
		slog.Warn("encode event failed", slog.String("event", ev.Name), slog.Any("error", err))
		return
	}
	msg := wire.Event{Event: ev.Name, SessionID: ev.SessionID, Payload: payload}

	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.authed.Load() {
			targets = append(targets, c)
		}
	}
	s.clientsMu.RUnlock()

	diag.Logf("server: broadcast %s session=%s clients=%d", ev.Name, ev.SessionID, len(targets))
	for _, c := range targets {
		_ = c.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := c.enc.Encode(msg); err != nil {
			slog.Warn("dropping unresponsive client",
				slog.Uint64("client", c.id),
				slog.Any("error", err))
			_ = c.conn.Close()
		}
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
}

func (s *Server) registerClient(conn net.Conn) *client {
	c := &client{
		id:   s.clientSeq.Add(1),
		conn: conn,
		enc:  wire.NewEncoder(conn),
	}
	s.clientsMu.Lock()
	s.clients[c.id] = c
	if s.closing.Load() {
		_ = conn.Close()
	}
	s.clientsMu.Unlock()
	return c
}

func (s *Server) unregisterClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	s.host.DetachClient(c.hostID())
	_ = c.conn.Close()
}

func (s *Server) writePidFile() error {
	if s.cfg.PidPath == "" {
		return nil
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.cfg.PidPath, []byte(pid), 0o600); err != nil {
		return fmt.Errorf("server: write pid file: %w", err)
	}
	return nil
}

// removeStaleSocket checks an existing socket file. A connectable socket
// means another daemon owns this path; anything else is debris from an
// unclean shutdown.
func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.cfg.SocketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("server: stat socket: %w", err)
	}
	conn, err := net.DialTimeout("unix", s.cfg.SocketPath, socketCheckTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("server: daemon already running on %s", s.cfg.SocketPath)
	}
	slog.Info("removing stale socket", slog.String("socket", s.cfg.SocketPath))
	if err := os.Remove(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("server: remove stale socket: %w", err)
	}
	return nil
}
