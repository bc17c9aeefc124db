package server

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/hearthdev/hearth/internal/wire"
)

// client is one accepted connection. Responses and events share the
// encoder, which serializes writes per message.
type client struct {
	id     uint64
	conn   net.Conn
	enc    *wire.Encoder
	authed atomic.Bool
}

// hostID identifies this connection in the host's attached-client sets.
func (c *client) hostID() string {
	return fmt.Sprintf("conn-%d", c.id)
}

func (s *Server) serveClient(c *client) {
	defer s.wg.Done()
	defer s.unregisterClient(c)

	dec := wire.NewDecoder(c.conn)
	for {
		req, err := dec.NextRequest()
		if err != nil {
			return
		}
		start := time.Now()
		s.handleRequest(c, req)
		slog.Debug("handled request",
			slog.String("op", req.Type),
			slog.Uint64("client", c.id),
			slog.Duration("took", time.Since(start)))
		if s.closing.Load() {
			return
		}
	}
}

func (s *Server) handleRequest(c *client, req wire.Request) {
	if !wire.KnownOp(req.Type) {
		s.respondError(c, req, &wire.Error{
			Code:    wire.CodeUnknownOp,
			Message: fmt.Sprintf("unknown operation %q", req.Type),
		})
		return
	}
	if req.Type == wire.OpHello {
		s.handleHello(c, req)
		return
	}
	if !c.authed.Load() {
		s.respondError(c, req, &wire.Error{
			Code:    wire.CodeUnauthenticated,
			Message: "hello required before any operation",
		})
		return
	}

	switch req.Type {
	case wire.OpCreateOrAttach:
		var p wire.CreateOrAttachRequest
		if !s.decode(c, req, &p) {
			return
		}
		res, err := s.host.CreateOrAttach(p, c.hostID())
		s.respond(c, req, res, err)
	case wire.OpWrite:
		var p wire.WriteRequest
		if !s.decode(c, req, &p) {
			return
		}
		err := s.host.Write(p.SessionID, p.Data)
		s.respond(c, req, struct{}{}, err)
	case wire.OpResize:
		var p wire.ResizeRequest
		if !s.decode(c, req, &p) {
			return
		}
		err := s.host.Resize(p.SessionID, p.Cols, p.Rows)
		s.respond(c, req, struct{}{}, err)
	case wire.OpDetach:
		var p wire.DetachRequest
		if !s.decode(c, req, &p) {
			return
		}
		s.host.Detach(p.SessionID, c.hostID())
		s.respond(c, req, struct{}{}, nil)
	case wire.OpKill:
		var p wire.KillRequest
		if !s.decode(c, req, &p) {
			return
		}
		err := s.host.Kill(p)
		s.respond(c, req, struct{}{}, err)
	case wire.OpKillAll:
		var p wire.KillRequest
		if !s.decode(c, req, &p) {
			return
		}
		killed := s.host.KillAll(p.DeleteHistory)
		s.respond(c, req, wire.KillAllResult{Killed: killed}, nil)
	case wire.OpListSessions:
		s.respond(c, req, wire.ListSessionsResult{Sessions: s.host.List()}, nil)
	case wire.OpClearScrollback:
		var p wire.ClearScrollbackRequest
		if !s.decode(c, req, &p) {
			return
		}
		err := s.host.ClearScrollback(p.SessionID)
		s.respond(c, req, struct{}{}, err)
	case wire.OpShutdown:
		s.respond(c, req, struct{}{}, nil)
		go s.Stop()
	}
}

func (s *Server) handleHello(c *client, req wire.Request) {
	var p wire.HelloRequest
	if !s.decode(c, req, &p) {
		return
	}
	if p.ProtocolVersion != wire.ProtocolVersion {
		s.respondError(c, req, &wire.Error{
			Code: wire.CodeVersionMismatch,
			Message: fmt.Sprintf("daemon speaks protocol %d, client sent %d",
				wire.ProtocolVersion, p.ProtocolVersion),
		})
		return
	}
	if subtle.ConstantTimeCompare([]byte(p.Token), []byte(s.token)) != 1 {
		s.respondError(c, req, &wire.Error{
			Code:    wire.CodeUnauthenticated,
			Message: "invalid token",
		})
		return
	}
	c.authed.Store(true)
	s.respond(c, req, wire.HelloResult{
		ProtocolVersion: wire.ProtocolVersion,
		DaemonPID:       os.Getpid(),
	}, nil)
}

// decode unmarshals the request payload, answering bad_payload on failure.
func (s *Server) decode(c *client, req wire.Request, v any) bool {
	if err := wire.UnmarshalPayload(req.Payload, v); err != nil {
		s.respondError(c, req, &wire.Error{
			Code:    wire.CodeBadPayload,
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (s *Server) respond(c *client, req wire.Request, result any, err error) {
	if err != nil {
		werr, ok := err.(*wire.Error)
		if !ok {
			werr = &wire.Error{Code: wire.CodeInternal, Message: err.Error()}
		}
		s.respondError(c, req, werr)
		return
	}
	if req.IsNotification() {
		return
	}
	payload, merr := wire.MarshalPayload(result)
	if merr != nil {
		s.respondError(c, req, &wire.Error{Code: wire.CodeInternal, Message: merr.Error()})
		return
	}
	s.send(c, wire.Response{ID: req.ID, OK: true, Payload: payload})
}

func (s *Server) respondError(c *client, req wire.Request, werr *wire.Error) {
	if req.IsNotification() {
		return
	}
	s.send(c, wire.Response{ID: req.ID, OK: false, Error: werr})
}

func (s *Server) send(c *client, resp wire.Response) {
	if err := c.enc.Encode(resp); err != nil {
		slog.Warn("response write failed",
			slog.Uint64("client", c.id),
			slog.Any("error", err))
	}
}
