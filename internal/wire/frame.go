package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameType tags a binary frame on the daemon/agent channel.
type FrameType byte

// Daemon-to-agent control frames.
const (
	FrameSpawn FrameType = iota + 1
	FrameWrite
	FrameResize
	FrameKill
	FrameDispose
)

// Agent-to-daemon event frames.
const (
	FrameReady FrameType = iota + 0x80
	FrameSpawned
	FrameData
	FrameExit
	FrameError
)

func (t FrameType) String() string {
	switch t {
	case FrameSpawn:
		return "spawn"
	case FrameWrite:
		return "write"
	case FrameResize:
		return "resize"
	case FrameKill:
		return "kill"
	case FrameDispose:
		return "dispose"
	case FrameReady:
		return "ready"
	case FrameSpawned:
		return "spawned"
	case FrameData:
		return "data"
	case FrameExit:
		return "exit"
	case FrameError:
		return "error"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

func (t FrameType) valid() bool {
	return (t >= FrameSpawn && t <= FrameDispose) || (t >= FrameReady && t <= FrameError)
}

// MaxFramePayload caps a single frame payload. A declared length beyond this
// is a protocol violation and the connection must fail closed.
const MaxFramePayload = 64 << 20

// ErrFrameTooLarge is returned for frames whose declared payload length
// exceeds MaxFramePayload.
var ErrFrameTooLarge = errors.New("wire: frame payload exceeds 64 MiB cap")

// ErrUnknownFrameType is returned for a frame whose type tag is outside the
// defined set.
var ErrUnknownFrameType = errors.New("wire: unknown frame type")

const frameHeaderLen = 5

// Frame is one decoded binary frame.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// WriteFrame writes one frame: 1-byte type, 4-byte little-endian payload
// length, payload. Header and payload go out in a single Write so concurrent
// writers guarded by a caller-held lock never interleave.
func WriteFrame(w io.Writer, t FrameType, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = byte(t)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame, failing closed on oversized or unknown frames.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("wire: read frame header: %w", err)
	}
	t := FrameType(hdr[0])
	if !t.valid() {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownFrameType, hdr[0])
	}
	n := binary.LittleEndian.Uint32(hdr[1:5])
	if n > MaxFramePayload {
		return Frame{}, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return Frame{Type: t, Payload: payload}, nil
}
