package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Request is one client-to-daemon operation. ID zero marks a notification:
// the daemon processes the request but writes no response.
type Request struct {
	ID      uint64          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsNotification reports whether the sender expects no response.
func (r Request) IsNotification() bool { return r.ID == 0 }

// Response answers the request with the matching ID. Exactly one of Payload
// and Error is meaningful, selected by OK.
type Response struct {
	ID      uint64          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Event is an unsolicited daemon-to-client push, delivered to every
// authenticated connection.
type Event struct {
	Event     string          `json:"event"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Encoder writes newline-delimited JSON messages. It is safe for concurrent
// use; each message goes out as a single Write.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode message: %w", err)
	}
	data = append(data, '\n')
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("wire: write message: %w", err)
	}
	return nil
}

// MaxLineBytes caps one JSON line on the wire. A line that outgrows the cap
// is discarded through its newline and skipped, so a broken or hostile peer
// cannot grow the read buffer without bound.
const MaxLineBytes = 1 << 20

// Decoder reads newline-delimited JSON messages. Partial lines split across
// reads are buffered until the terminating newline arrives; malformed or
// oversized lines are logged and skipped rather than killing the connection.
type Decoder struct {
	br *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{br: bufio.NewReaderSize(r, MaxLineBytes)}
}

// nextLine returns the next non-empty line without its newline. The
// returned slice is a copy; it stays valid across subsequent reads.
func (d *Decoder) nextLine() ([]byte, error) {
	for {
		line, err := d.br.ReadSlice('\n')
		switch {
		case err == nil:
		case err == bufio.ErrBufferFull:
			slog.Warn("skipping oversized message line", slog.Int("limit", MaxLineBytes))
			if derr := d.discardLine(); derr != nil {
				return nil, derr
			}
			continue
		case err == io.EOF && len(bytes.TrimSpace(line)) > 0:
			// A final unterminated line is still a message.
			return append([]byte(nil), bytes.TrimSpace(line)...), nil
		default:
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return append([]byte(nil), line...), nil
		}
	}
}

// discardLine drops buffered input up to and including the next newline.
func (d *Decoder) discardLine() error {
	for {
		_, err := d.br.ReadSlice('\n')
		switch err {
		case nil:
			return nil
		case bufio.ErrBufferFull:
			continue
		default:
			return err
		}
	}
}

// NextRequest decodes the next request. Unknown operation tags are returned
// with ErrUnknownOp wrapped so the server can answer with a typed error
// instead of guessing.
func (d *Decoder) NextRequest() (Request, error) {
	for {
		line, err := d.nextLine()
		if err != nil {
			return Request{}, err
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Warn("skipping malformed request line", slog.String("error", err.Error()))
			continue
		}
		if req.Type == "" {
			slog.Warn("skipping request without type tag")
			continue
		}
		return req, nil
	}
}

// NextServerMessage decodes the next daemon-to-client message, which is
// either a response or an event, distinguished by the event tag.
func (d *Decoder) NextServerMessage() (*Response, *Event, error) {
	for {
		line, err := d.nextLine()
		if err != nil {
			return nil, nil, err
		}
		var tag struct {
			Event *string `json:"event"`
		}
		if err := json.Unmarshal(line, &tag); err != nil {
			slog.Warn("skipping malformed server line", slog.String("error", err.Error()))
			continue
		}
		if tag.Event != nil {
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				slog.Warn("skipping malformed event", slog.String("error", err.Error()))
				continue
			}
			return nil, &ev, nil
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("skipping malformed response", slog.String("error", err.Error()))
			continue
		}
		return &resp, nil, nil
	}
}
