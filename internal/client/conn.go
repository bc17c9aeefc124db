package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearthdev/hearth/internal/wire"
)

const dialTimeout = 2 * time.Second

// Conn is one authenticated daemon connection. Requests are correlated to
// responses by ID; unsolicited events are delivered on Events in arrival
// order.
type Conn struct {
	conn net.Conn
	enc  *wire.Encoder

	pendingMu sync.Mutex
	pending   map[uint64]chan wire.Response
	nextID    atomic.Uint64

	events chan wire.Event

	hello wire.HelloResult

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// DialConn connects to the daemon socket and completes the hello handshake.
func DialConn(ctx context.Context, socketPath, token string) (*Conn, error) {
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	nc, err := d.DialContext(dctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	c := &Conn{
		conn:    nc,
		enc:     wire.NewEncoder(nc),
		pending: make(map[uint64]chan wire.Response),
		events:  make(chan wire.Event, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if err := c.Call(ctx, wire.OpHello, wire.HelloRequest{
		Token:           token,
		ProtocolVersion: wire.ProtocolVersion,
	}, &c.hello); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Hello returns the handshake result from the daemon.
func (c *Conn) Hello() wire.HelloResult { return c.hello }

// Events returns the inbound event stream. It is closed when the
// connection drops.
func (c *Conn) Events() <-chan wire.Event { return c.events }

// Close tears the connection down and fails all in-flight calls.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	dec := wire.NewDecoder(c.conn)
	for {
		resp, ev, err := dec.NextServerMessage()
		if err != nil {
			_ = c.Close()
			return
		}
		if ev != nil {
			select {
			case c.events <- *ev:
			case <-c.done:
				return
			}
			continue
		}
		c.pendingMu.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.pendingMu.Unlock()
		if ch != nil {
			ch <- *resp
		}
	}
}

// Call issues a request and decodes the matching response into result.
// Daemon-reported failures come back as *wire.Error.
func (c *Conn) Call(ctx context.Context, op string, payload, result any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	data, err := wire.MarshalPayload(payload)
	if err != nil {
		return err
	}
	id := c.nextID.Add(1)
	ch := make(chan wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.enc.Encode(wire.Request{ID: id, Type: op, Payload: data}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClientClosed
		}
		if !resp.OK {
			if resp.Error != nil {
				return resp.Error
			}
			return fmt.Errorf("client: %s failed without error detail", op)
		}
		return wire.UnmarshalPayload(resp.Payload, result)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// Notify sends a request without waiting for a response, trading delivery
// confirmation for throughput on high-frequency input.
func (c *Conn) Notify(op string, payload any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	data, err := wire.MarshalPayload(payload)
	if err != nil {
		return err
	}
	return c.enc.Encode(wire.Request{ID: 0, Type: op, Payload: data})
}
